package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cleanflip/opsight/internal/api/response"
	"github.com/cleanflip/opsight/internal/store"
)

// IssueLifecycle defines the mutation surface the lifecycle handlers
// depend on. Resolved and ignored are independent flags: resolving an
// issue says "fixed", ignoring says "stop showing me this".
type IssueLifecycle interface {
	SetResolved(ctx context.Context, fingerprint string, resolved bool) error
	SetIgnored(ctx context.Context, fingerprint string, ignored bool) error
}

// NewResolveHandler handles PUT /api/v1/issues/{fingerprint}/resolve.
func NewResolveHandler(st IssueLifecycle) http.HandlerFunc {
	return lifecycleHandler(func(ctx context.Context, fp string) error {
		return st.SetResolved(ctx, fp, true)
	})
}

// NewReopenHandler handles PUT /api/v1/issues/{fingerprint}/reopen. This is
// the explicit operator action; ingestion reopens resolved issues on its
// own when they recur.
func NewReopenHandler(st IssueLifecycle) http.HandlerFunc {
	return lifecycleHandler(func(ctx context.Context, fp string) error {
		return st.SetResolved(ctx, fp, false)
	})
}

// NewIgnoreHandler handles PUT /api/v1/issues/{fingerprint}/ignore. Ignored
// issues keep counting occurrences but drop out of default list views, and
// stay ignored across recurrences until explicitly unignored.
func NewIgnoreHandler(st IssueLifecycle) http.HandlerFunc {
	return lifecycleHandler(func(ctx context.Context, fp string) error {
		return st.SetIgnored(ctx, fp, true)
	})
}

// NewUnignoreHandler handles PUT /api/v1/issues/{fingerprint}/unignore.
func NewUnignoreHandler(st IssueLifecycle) http.HandlerFunc {
	return lifecycleHandler(func(ctx context.Context, fp string) error {
		return st.SetIgnored(ctx, fp, false)
	})
}

// lifecycleHandler wraps one flag mutation. An unknown fingerprint is a
// 404, never a silent no-op.
func lifecycleHandler(apply func(ctx context.Context, fingerprint string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fingerprint := chi.URLParam(r, "fingerprint")

		if err := apply(r.Context(), fingerprint); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Issue not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to update issue", nil)
			return
		}

		response.JSON(w, map[string]bool{"ok": true})
	}
}
