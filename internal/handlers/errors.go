package handlers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fitmarket/api/internal/platform/httpx"
	"github.com/fitmarket/api/internal/platform/pagination"
	"github.com/fitmarket/api/internal/services"
)

// writeServiceError maps service sentinels onto the error envelope. Anything
// unrecognised is a 500 with a generic message.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var fields services.FieldErrors
	var promoted *services.AlreadyPromotedError
	var conflict *services.ContentConflictError

	switch {
	case errors.As(err, &fields):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_input", "request validation failed", http.StatusBadRequest).
			WithDetails(map[string]any{"fields": []services.FieldError(fields)}))
	case errors.As(err, &promoted):
		details := map[string]any{}
		if promoted.TrainerID != "" {
			details["trainerId"] = promoted.TrainerID
		}
		httpx.WriteError(ctx, w, httpx.NewError("already_promoted", "preview has already been activated", http.StatusConflict).WithDetails(details))
	case errors.As(err, &conflict):
		httpx.WriteError(ctx, w, httpx.NewError("slug_conflict", "slug already in use", http.StatusConflict).
			WithDetails(map[string]any{"slug": conflict.Slug}))
	case errors.Is(err, services.ErrTrainerNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("trainer_not_found", "trainer not found", http.StatusNotFound))
	case errors.Is(err, services.ErrTrainerTokenMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_token", "preview token does not match", http.StatusForbidden))
	case errors.Is(err, services.ErrTrainerExpired):
		httpx.WriteError(ctx, w, httpx.NewError("preview_expired", "preview has expired", http.StatusGone))
	case errors.Is(err, services.ErrTrainerCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "payment provider unavailable", http.StatusBadGateway))
	case errors.Is(err, services.ErrTrainerCreateFailed),
		errors.Is(err, services.ErrTrainerUnavailable),
		errors.Is(err, services.ErrLeadUnavailable),
		errors.Is(err, services.ErrContentUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("unavailable", "storage temporarily unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrContentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("content_not_found", "content not found", http.StatusNotFound))
	case errors.Is(err, services.ErrContentSlugUnchanged):
		httpx.WriteError(ctx, w, httpx.NewError("slug_unchanged", "new slug equals the current slug", http.StatusBadRequest))
	case errors.Is(err, services.ErrContentVerifyFailed):
		httpx.WriteError(ctx, w, httpx.NewError("verify_failed", "written content could not be verified", http.StatusInternalServerError))
	case errors.Is(err, services.ErrContentInvalidKind):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_kind", "unknown content kind", http.StatusNotFound))
	case errors.Is(err, pagination.ErrInvalidPageToken), errors.Is(err, pagination.ErrInvalidPageSize):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_pagination", err.Error(), http.StatusBadRequest))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal", "internal error", http.StatusInternalServerError))
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// clientIP prefers the address set by middleware.RealIP.
func clientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// rateLimitMiddleware rejects POSTs once a client IP exceeds limiter.
func rateLimitMiddleware(limiter rateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				if ok, wait := limiter.Allow(clientIP(r)); !ok {
					w.Header().Set("Retry-After", retryAfterSeconds(wait))
					httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many requests", http.StatusTooManyRequests))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// retryAfterSeconds rounds wait up to whole seconds, never below one.
func retryAfterSeconds(wait time.Duration) string {
	secs := int((wait + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
