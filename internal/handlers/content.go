package handlers

import (
	"crypto/sha256"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/fitmarket/api/internal/domain"
	"github.com/fitmarket/api/internal/platform/auth"
	"github.com/fitmarket/api/internal/platform/httpx"
	"github.com/fitmarket/api/internal/services"
)

const (
	contentCacheControl = "public, max-age=300"
	maxContentBodySize  = 512 * 1024
)

// ContentHandlers serves blog posts and interviews, and lets editors manage
// them.
type ContentHandlers struct {
	authn   *auth.Authenticator
	content services.ContentService
}

// NewContentHandlers constructs ContentHandlers. authn guards the admin routes.
func NewContentHandlers(authn *auth.Authenticator, content services.ContentService) *ContentHandlers {
	return &ContentHandlers{authn: authn, content: content}
}

// Routes registers the public /content endpoints.
func (h *ContentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{kind}", h.listContent)
	r.Get("/{kind}/{slug}", h.getContent)
}

// AdminRoutes registers /admin/content endpoints for admins and editors.
func (h *ContentHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(admin chi.Router) {
		admin.Use(h.authn.RequireRoles(auth.RoleAdmin, auth.RoleEditor))
		admin.Put("/{kind}/{slug}", h.putContent)
		admin.Delete("/{kind}/{slug}", h.deleteContent)
		admin.Post("/{kind}/{slug}:rename", h.renameContent)
	})
}

type contentSummaryPayload struct {
	Kind      string             `json:"kind"`
	Slug      string             `json:"slug"`
	Path      string             `json:"path"`
	Meta      domain.FrontMatter `json:"frontMatter"`
	UpdatedAt string             `json:"updatedAt,omitempty"`
}

type contentListResponse struct {
	Items []contentSummaryPayload `json:"items"`
}

type contentItemResponse struct {
	contentSummaryPayload
	Markdown string `json:"markdown"`
	HTML     string `json:"html"`
}

type putContentRequest struct {
	Markdown       string `json:"markdown"`
	AllowOverwrite bool   `json:"allowOverwrite"`
}

type renameContentRequest struct {
	NewSlug string `json:"newSlug"`
}

type renameContentResponse struct {
	Kind      string `json:"kind"`
	OldPath   string `json:"oldPath"`
	NewPath   string `json:"newPath"`
	NewSlug   string `json:"newSlug"`
	StaleCopy bool   `json:"staleCopy"`
}

func (h *ContentHandlers) listContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.content == nil {
		httpx.WriteError(ctx, w, httpx.NewError("content_service_unavailable", "content service unavailable", http.StatusServiceUnavailable))
		return
	}
	kind, ok := contentKindParam(w, r)
	if !ok {
		return
	}

	items, err := h.content.List(ctx, kind)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := contentListResponse{Items: make([]contentSummaryPayload, 0, len(items))}
	hash := sha256.New()
	hash.Write([]byte(kind))
	for _, item := range items {
		payload := buildContentSummary(item)
		resp.Items = append(resp.Items, payload)
		fmt.Fprintf(hash, "|%s|%s|%s", payload.Path, payload.UpdatedAt, payload.Meta.Title)
	}

	etag := fmt.Sprintf("W/\"%x\"", hash.Sum(nil))
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", contentCacheControl)
	if matchesETag(r, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *ContentHandlers) getContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.content == nil {
		httpx.WriteError(ctx, w, httpx.NewError("content_service_unavailable", "content service unavailable", http.StatusServiceUnavailable))
		return
	}
	kind, ok := contentKindParam(w, r)
	if !ok {
		return
	}
	slug := strings.TrimSpace(chi.URLParam(r, "slug"))
	if slug == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "slug is required", http.StatusBadRequest))
		return
	}

	item, err := h.content.Get(ctx, kind, slug)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	etag := fmt.Sprintf("W/\"%x\"", sha256.Sum256([]byte(item.Path+"|"+item.Markdown)))
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", contentCacheControl)
	if matchesETag(r, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, contentItemResponse{
		contentSummaryPayload: buildContentSummary(item.ContentSummary),
		Markdown:              item.Markdown,
		HTML:                  item.HTML,
	})
}

func (h *ContentHandlers) putContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.content == nil {
		httpx.WriteError(ctx, w, httpx.NewError("content_service_unavailable", "content service unavailable", http.StatusServiceUnavailable))
		return
	}
	kind, ok := contentKindParam(w, r)
	if !ok {
		return
	}

	var req putContentRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/markdown") {
		body, err := httpx.ReadBody(r, maxContentBodySize)
		if err != nil {
			httpx.WriteBodyError(w, r, err)
			return
		}
		req.Markdown = string(body)
		req.AllowOverwrite = r.URL.Query().Get("overwrite") == "true"
	} else if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteBodyError(w, r, err)
		return
	}

	summary, err := h.content.Put(ctx, services.PutContentCommand{
		Kind:           kind,
		Slug:           chi.URLParam(r, "slug"),
		Markdown:       req.Markdown,
		AllowOverwrite: req.AllowOverwrite,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildContentSummary(summary))
}

func (h *ContentHandlers) deleteContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.content == nil {
		httpx.WriteError(ctx, w, httpx.NewError("content_service_unavailable", "content service unavailable", http.StatusServiceUnavailable))
		return
	}
	kind, ok := contentKindParam(w, r)
	if !ok {
		return
	}
	if err := h.content.Delete(ctx, kind, chi.URLParam(r, "slug")); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ContentHandlers) renameContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.content == nil {
		httpx.WriteError(ctx, w, httpx.NewError("content_service_unavailable", "content service unavailable", http.StatusServiceUnavailable))
		return
	}
	kind, ok := contentKindParam(w, r)
	if !ok {
		return
	}

	var req renameContentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteBodyError(w, r, err)
		return
	}

	result, err := h.content.Rename(ctx, services.RenameContentCommand{
		Kind:    kind,
		OldSlug: chi.URLParam(r, "slug"),
		NewSlug: req.NewSlug,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, renameContentResponse{
		Kind:      string(result.Kind),
		OldPath:   result.OldPath,
		NewPath:   result.NewPath,
		NewSlug:   result.NewSlug,
		StaleCopy: result.StaleCopy,
	})
}

func contentKindParam(w http.ResponseWriter, r *http.Request) (services.ContentKind, bool) {
	kind, ok := domain.ParseContentKind(chi.URLParam(r, "kind"))
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_kind", "unknown content kind", http.StatusNotFound))
		return "", false
	}
	return kind, true
}

func buildContentSummary(item services.ContentSummary) contentSummaryPayload {
	return contentSummaryPayload{
		Kind:      string(item.Kind),
		Slug:      item.Slug,
		Path:      item.Path,
		Meta:      item.FrontMatter,
		UpdatedAt: formatTime(item.UpdatedAt),
	}
}

func matchesETag(r *http.Request, etag string) bool {
	if etag == "" || r == nil {
		return false
	}
	raw := r.Header.Get("If-None-Match")
	if strings.TrimSpace(raw) == "" {
		return false
	}
	for _, candidate := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(candidate)
		if trimmed == "*" || trimmed == etag {
			return true
		}
	}
	return false
}
