package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	domain "github.com/fitmarket/api/internal/domain"
	"github.com/fitmarket/api/internal/platform/blobstore"
	"github.com/fitmarket/api/internal/platform/cache"
	"github.com/fitmarket/api/internal/platform/markdown"
	"github.com/fitmarket/api/internal/repositories"
)

const (
	markdownContentType = "text/markdown; charset=utf-8"
	maxAliasHops        = 4
)

var (
	// ErrContentNotFound is returned when no item matches a slug.
	ErrContentNotFound = errors.New("content: not found")
	// ErrContentSlugConflict is matched by *ContentConflictError.
	ErrContentSlugConflict = errors.New("content: slug already exists")
	// ErrContentSlugUnchanged is returned when a rename would keep the same slug.
	ErrContentSlugUnchanged = errors.New("content: new slug equals old slug")
	// ErrContentVerifyFailed is returned when a renamed item cannot be read back.
	ErrContentVerifyFailed = errors.New("content: rename verification failed")
	// ErrContentInvalidKind is returned for unknown content kinds.
	ErrContentInvalidKind = errors.New("content: unknown kind")
	// ErrContentUnavailable wraps blob store failures.
	ErrContentUnavailable = errors.New("content: storage unavailable")
)

// ContentConflictError names the slug that is already taken.
type ContentConflictError struct {
	Kind ContentKind
	Slug string
}

func (e *ContentConflictError) Error() string {
	return fmt.Sprintf("content: %s slug %q already exists", e.Kind, e.Slug)
}

// Is makes errors.Is(err, ErrContentSlugConflict) hold.
func (e *ContentConflictError) Is(target error) bool {
	return target == ErrContentSlugConflict
}

// ContentServiceDeps wires the content service.
type ContentServiceDeps struct {
	Blobs       blobstore.Store
	Aliases     repositories.ContentAliasRepository
	Invalidator cache.Invalidator
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
	// DisableFuzzyLookup turns off substring matching in FindBySlug, leaving
	// exact matches and recorded aliases.
	DisableFuzzyLookup bool
}

type contentService struct {
	blobs       blobstore.Store
	aliases     repositories.ContentAliasRepository
	invalidator cache.Invalidator
	now         func() time.Time
	logger      func(ctx context.Context, event string, fields map[string]any)
	fuzzy       bool
}

var _ ContentService = (*contentService)(nil)

// NewContentService constructs the content service. Aliases and the cache
// invalidator are optional.
func NewContentService(deps ContentServiceDeps) (ContentService, error) {
	if deps.Blobs == nil {
		return nil, errors.New("content service: blob store is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	invalidator := deps.Invalidator
	if invalidator == nil {
		invalidator = cache.Noop{}
	}
	return &contentService{
		blobs:       deps.Blobs,
		aliases:     deps.Aliases,
		invalidator: invalidator,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
		fuzzy:  !deps.DisableFuzzyLookup,
	}, nil
}

// entry is a listed markdown object with its derived slugs.
type entry struct {
	object    blobstore.Object
	raw       string
	canonical string
}

func (e entry) summary(kind ContentKind) ContentSummary {
	return ContentSummary{Kind: kind, Slug: e.canonical, Path: e.object.Path, UpdatedAt: e.object.Updated}
}

func (s *contentService) entries(ctx context.Context, kind ContentKind) ([]entry, error) {
	objects, err := s.blobs.List(ctx, kind.Prefix())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContentUnavailable, err)
	}
	out := make([]entry, 0, len(objects))
	for _, obj := range objects {
		if !strings.HasSuffix(obj.Path, ".md") {
			continue
		}
		raw := rawSlug(obj.Path)
		out = append(out, entry{object: obj, raw: raw, canonical: Canonicalize(raw)})
	}
	return out, nil
}

// FindBySlug resolves slug to a stored item: an exact canonical match first,
// then recorded aliases of renamed items, then a substring match in either
// direction. Ties go to the first item in listing order.
func (s *contentService) FindBySlug(ctx context.Context, kind ContentKind, slug string) (ContentSummary, error) {
	kind, err := checkKind(kind)
	if err != nil {
		return ContentSummary{}, err
	}
	target := Canonicalize(slug)
	if target == "" {
		return ContentSummary{}, ErrContentNotFound
	}
	entries, err := s.entries(ctx, kind)
	if err != nil {
		return ContentSummary{}, err
	}
	if e, ok := findExact(entries, target); ok {
		return e.summary(kind), nil
	}
	if e, ok := s.followAliases(ctx, kind, target, entries); ok {
		return e.summary(kind), nil
	}
	if s.fuzzy {
		raw := strings.ToLower(strings.TrimSpace(slug))
		for _, e := range entries {
			if e.canonical == "" {
				continue
			}
			lowerRaw := strings.ToLower(e.raw)
			if strings.Contains(e.canonical, target) || strings.Contains(target, e.canonical) ||
				strings.Contains(lowerRaw, raw) || strings.Contains(raw, lowerRaw) {
				return e.summary(kind), nil
			}
		}
	}
	return ContentSummary{}, ErrContentNotFound
}

func findExact(entries []entry, canonical string) (entry, bool) {
	for _, e := range entries {
		if e.canonical == canonical {
			return e, true
		}
	}
	return entry{}, false
}

func (s *contentService) followAliases(ctx context.Context, kind ContentKind, slug string, entries []entry) (entry, bool) {
	if s.aliases == nil {
		return entry{}, false
	}
	current := slug
	for hop := 0; hop < maxAliasHops; hop++ {
		next, err := s.aliases.Resolve(ctx, kind, current)
		if err != nil {
			if !isNotFound(err) {
				s.logger(ctx, "content.alias_lookup_failed", map[string]any{
					"kind":  string(kind),
					"slug":  current,
					"error": err.Error(),
				})
			}
			return entry{}, false
		}
		if next == "" || next == current {
			return entry{}, false
		}
		if e, ok := findExact(entries, next); ok {
			return e, true
		}
		current = next
	}
	return entry{}, false
}

// SlugExists reports whether an item's raw or canonical slug equals slug.
// Substrings never match.
func (s *contentService) SlugExists(ctx context.Context, kind ContentKind, slug string) (bool, error) {
	kind, err := checkKind(kind)
	if err != nil {
		return false, err
	}
	entries, err := s.entries(ctx, kind)
	if err != nil {
		return false, err
	}
	_, ok := findStrict(entries, slug, "")
	return ok, nil
}

// findStrict returns the first entry, other than the one stored at exclude,
// whose raw or canonical slug equals slug or its canonical form.
func findStrict(entries []entry, slug, exclude string) (entry, bool) {
	slug = strings.TrimSpace(slug)
	canonical := Canonicalize(slug)
	if slug == "" {
		return entry{}, false
	}
	for _, e := range entries {
		if e.object.Path == exclude {
			continue
		}
		if e.raw == slug || e.canonical == slug || (canonical != "" && e.canonical == canonical) {
			return e, true
		}
	}
	return entry{}, false
}

// verifyVisible lists kind again and checks that newPath is served under slug.
// The old item may still share the canonical slug, so the match is by path.
func (s *contentService) verifyVisible(ctx context.Context, kind ContentKind, slug, newPath string) error {
	entries, err := s.entries(ctx, kind)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.object.Path == newPath && e.canonical == slug {
			return nil
		}
	}
	return ErrContentNotFound
}

// Rename moves an item to a new slug. The old object is removed only after
// the new one has been written and read back, so a failure at any earlier
// step leaves the old item untouched.
func (s *contentService) Rename(ctx context.Context, cmd RenameContentCommand) (RenameContentResult, error) {
	kind, err := checkKind(cmd.Kind)
	if err != nil {
		return RenameContentResult{}, err
	}
	newSlug := Canonicalize(cmd.NewSlug)
	if newSlug == "" {
		return RenameContentResult{}, FieldErrors{{Field: "newSlug", Code: "required", Message: "is required"}}
	}
	oldSlug := strings.TrimSpace(cmd.OldSlug)
	if newSlug == oldSlug {
		return RenameContentResult{}, ErrContentSlugUnchanged
	}

	old, err := s.FindBySlug(ctx, kind, oldSlug)
	if err != nil {
		return RenameContentResult{}, err
	}
	newPath := contentPath(kind, newSlug)
	// A raw-named item may move to its own canonical path.
	if newPath == old.Path {
		return RenameContentResult{}, ErrContentSlugUnchanged
	}

	entries, err := s.entries(ctx, kind)
	if err != nil {
		return RenameContentResult{}, err
	}
	if clash, ok := findStrict(entries, newSlug, old.Path); ok {
		return RenameContentResult{}, &ContentConflictError{Kind: kind, Slug: clash.canonical}
	}

	data, obj, err := s.blobs.Get(ctx, old.Path)
	if err != nil {
		return RenameContentResult{}, s.translateBlobError(err)
	}

	contentType := obj.ContentType
	if contentType == "" {
		contentType = markdownContentType
	}
	if _, err := s.blobs.Put(ctx, newPath, data, blobstore.PutOptions{ContentType: contentType}); err != nil {
		if errors.Is(err, blobstore.ErrExists) {
			return RenameContentResult{}, &ContentConflictError{Kind: kind, Slug: newSlug}
		}
		return RenameContentResult{}, s.translateBlobError(err)
	}

	if err := s.verifyVisible(ctx, kind, newSlug, newPath); err != nil {
		fields := map[string]any{"kind": string(kind), "newPath": newPath, "error": err.Error()}
		s.logger(ctx, "content.rename_verify_failed", fields)
		return RenameContentResult{}, ErrContentVerifyFailed
	}

	result := RenameContentResult{Kind: kind, OldPath: old.Path, NewPath: newPath, NewSlug: newSlug}
	if err := s.blobs.Delete(ctx, old.Path); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		result.StaleCopy = true
		s.logger(ctx, "content.rename_stale_copy", map[string]any{
			"kind":    string(kind),
			"oldPath": old.Path,
			"newPath": newPath,
			"error":   err.Error(),
		})
	}

	if s.aliases != nil && old.Slug != newSlug {
		if err := s.aliases.Save(ctx, kind, old.Slug, newSlug); err != nil {
			s.logger(ctx, "content.alias_save_failed", map[string]any{
				"kind":  string(kind),
				"alias": old.Slug,
				"error": err.Error(),
			})
		}
	}

	paths := []string{publicPath(kind, newSlug), "/" + string(kind)}
	if old.Slug != newSlug {
		paths = append(paths, publicPath(kind, old.Slug))
	}
	s.invalidate(ctx, paths...)
	s.logger(ctx, "content.renamed", map[string]any{
		"kind":      string(kind),
		"oldPath":   old.Path,
		"newPath":   newPath,
		"staleCopy": result.StaleCopy,
	})
	return result, nil
}

// List returns every item of kind, newest front matter date first.
func (s *contentService) List(ctx context.Context, kind ContentKind) ([]ContentSummary, error) {
	kind, err := checkKind(kind)
	if err != nil {
		return nil, err
	}
	entries, err := s.entries(ctx, kind)
	if err != nil {
		return nil, err
	}

	items := make([]ContentSummary, 0, len(entries))
	dates := make(map[string]time.Time, len(entries))
	for _, e := range entries {
		summary := e.summary(kind)
		data, _, err := s.blobs.Get(ctx, e.object.Path)
		switch {
		case errors.Is(err, blobstore.ErrNotFound):
			continue
		case err != nil:
			return nil, s.translateBlobError(err)
		}
		fm, _, err := markdown.Split(data)
		if err != nil {
			s.logger(ctx, "content.front_matter_invalid", map[string]any{
				"path":  e.object.Path,
				"error": err.Error(),
			})
		}
		if fm.Title == "" {
			fm.Title = e.raw
		}
		summary.FrontMatter = fm
		dates[summary.Path] = markdown.ParseDate(fm.Date)
		items = append(items, summary)
	}

	sort.SliceStable(items, func(i, j int) bool {
		di, dj := dates[items[i].Path], dates[items[j].Path]
		if !di.Equal(dj) {
			return di.After(dj)
		}
		return items[i].Slug < items[j].Slug
	})
	return items, nil
}

func (s *contentService) Get(ctx context.Context, kind ContentKind, slug string) (ContentItem, error) {
	summary, err := s.FindBySlug(ctx, kind, slug)
	if err != nil {
		return ContentItem{}, err
	}
	data, obj, err := s.blobs.Get(ctx, summary.Path)
	if err != nil {
		return ContentItem{}, s.translateBlobError(err)
	}
	fm, body, err := markdown.Split(data)
	if err != nil {
		s.logger(ctx, "content.front_matter_invalid", map[string]any{
			"path":  summary.Path,
			"error": err.Error(),
		})
		body = string(data)
	}
	html, err := markdown.ToHTML(body)
	if err != nil {
		return ContentItem{}, fmt.Errorf("content: render %s: %w", summary.Path, err)
	}
	if !obj.Updated.IsZero() {
		summary.UpdatedAt = obj.Updated
	}
	summary.FrontMatter = fm
	return ContentItem{ContentSummary: summary, Markdown: string(data), HTML: html}, nil
}

func (s *contentService) Put(ctx context.Context, cmd PutContentCommand) (ContentSummary, error) {
	kind, err := checkKind(cmd.Kind)
	if err != nil {
		return ContentSummary{}, err
	}
	slug := Canonicalize(cmd.Slug)
	var fieldErrs FieldErrors
	if slug == "" {
		fieldErrs = append(fieldErrs, FieldError{Field: "slug", Code: "required", Message: "is required"})
	}
	var fm domain.FrontMatter
	if strings.TrimSpace(cmd.Markdown) == "" {
		fieldErrs = append(fieldErrs, FieldError{Field: "markdown", Code: "required", Message: "is required"})
	} else if fm, _, err = markdown.Split([]byte(cmd.Markdown)); err != nil {
		fieldErrs = append(fieldErrs, FieldError{Field: "markdown", Code: "front_matter", Message: err.Error()})
	}
	if len(fieldErrs) > 0 {
		return ContentSummary{}, fieldErrs
	}

	path := contentPath(kind, slug)
	if !cmd.AllowOverwrite {
		entries, err := s.entries(ctx, kind)
		if err != nil {
			return ContentSummary{}, err
		}
		if clash, ok := findStrict(entries, slug, ""); ok {
			return ContentSummary{}, &ContentConflictError{Kind: kind, Slug: clash.canonical}
		}
	}

	obj, err := s.blobs.Put(ctx, path, []byte(cmd.Markdown), blobstore.PutOptions{
		AllowOverwrite: cmd.AllowOverwrite,
		ContentType:    markdownContentType,
	})
	if err != nil {
		if errors.Is(err, blobstore.ErrExists) {
			return ContentSummary{}, &ContentConflictError{Kind: kind, Slug: slug}
		}
		return ContentSummary{}, s.translateBlobError(err)
	}

	s.invalidate(ctx, publicPath(kind, slug), "/"+string(kind))
	updated := obj.Updated
	if updated.IsZero() {
		updated = s.now()
	}
	return ContentSummary{Kind: kind, Slug: slug, Path: path, FrontMatter: fm, UpdatedAt: updated}, nil
}

// Delete removes the item whose canonical slug equals slug. Fuzzy matches are
// never deleted.
func (s *contentService) Delete(ctx context.Context, kind ContentKind, slug string) error {
	kind, err := checkKind(kind)
	if err != nil {
		return err
	}
	entries, err := s.entries(ctx, kind)
	if err != nil {
		return err
	}
	target, ok := findExact(entries, Canonicalize(slug))
	if !ok || target.canonical == "" {
		return ErrContentNotFound
	}
	if err := s.blobs.Delete(ctx, target.object.Path); err != nil {
		return s.translateBlobError(err)
	}
	s.invalidate(ctx, publicPath(kind, target.canonical), "/"+string(kind))
	return nil
}

func (s *contentService) invalidate(ctx context.Context, paths ...string) {
	if err := s.invalidator.Invalidate(ctx, paths...); err != nil {
		s.logger(ctx, "content.invalidate_failed", map[string]any{
			"paths": paths,
			"error": err.Error(),
		})
	}
}

func (s *contentService) translateBlobError(err error) error {
	switch {
	case errors.Is(err, blobstore.ErrNotFound):
		return ErrContentNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrContentUnavailable, err)
	}
}

func checkKind(kind ContentKind) (ContentKind, error) {
	parsed, ok := domain.ParseContentKind(string(kind))
	if !ok {
		return "", ErrContentInvalidKind
	}
	return parsed, nil
}
