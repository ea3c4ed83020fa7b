package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cleanflip/opsight/internal/api/response"
	"github.com/cleanflip/opsight/internal/store"
	"github.com/cleanflip/opsight/pkg/models"
)

const eventsPageSize = 50

// IssueReader defines the read surface the issue handlers depend on.
type IssueReader interface {
	ListIssues(ctx context.Context, filter store.IssueFilter) ([]*models.Issue, int, error)
	GetIssue(ctx context.Context, fingerprint string) (*models.Issue, error)
	RecentEvents(ctx context.Context, fingerprint string, limit, offset int) ([]*models.ErrorEvent, error)
	Stats(ctx context.Context) (*store.Stats, error)
}

// NewListIssuesHandler returns an http.HandlerFunc for GET /api/v1/issues.
// Resolved and ignored issues are excluded unless explicitly requested.
func NewListIssuesHandler(st IssueReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		level := q.Get("level")
		if level != "" && !models.ValidLevel(level) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"level must be one of error, warn, info", nil)
			return
		}

		filter := store.IssueFilter{
			Q:        q.Get("q"),
			Level:    level,
			Env:      q.Get("env"),
			Resolved: q.Get("resolved") == "true",
			Ignored:  q.Get("ignored") == "true",
			Page:     intParam(q.Get("page"), 1),
			Limit:    intParam(q.Get("limit"), 20),
		}

		issues, total, err := st.ListIssues(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list issues", nil)
			return
		}

		page := filter.Page
		if page <= 0 {
			page = 1
		}
		limit := filter.Limit
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}

		response.Collection(w, issues, response.PaginationMeta{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasNext: page*limit < total,
		})
	}
}

// NewGetIssueHandler returns an http.HandlerFunc for GET /api/v1/issues/{fingerprint}.
func NewGetIssueHandler(st IssueReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fingerprint := chi.URLParam(r, "fingerprint")

		issue, err := st.GetIssue(r.Context(), fingerprint)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Issue not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to get issue", nil)
			return
		}

		response.JSON(w, issue)
	}
}

// NewIssueEventsHandler returns an http.HandlerFunc for
// GET /api/v1/issues/{fingerprint}/events: the most recent occurrences,
// newest first.
func NewIssueEventsHandler(st IssueReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fingerprint := chi.URLParam(r, "fingerprint")

		// 404 for unknown fingerprints rather than an empty list.
		if _, err := st.GetIssue(r.Context(), fingerprint); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Issue not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to get issue", nil)
			return
		}

		offset := intParam(r.URL.Query().Get("offset"), 0)
		events, err := st.RecentEvents(r.Context(), fingerprint, eventsPageSize, offset)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load events", nil)
			return
		}

		response.JSON(w, events)
	}
}

// NewStatsHandler returns an http.HandlerFunc for GET /api/v1/stats.
func NewStatsHandler(st IssueReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := st.Stats(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load stats", nil)
			return
		}
		response.JSON(w, stats)
	}
}

func intParam(raw string, defaultVal int) int {
	if raw == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
