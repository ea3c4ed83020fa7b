// Package ingest implements the error-report write path: validate,
// fingerprint, append the immutable event, then fold it into the issue
// aggregate and the hourly rollup.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cleanflip/opsight/internal/fingerprint"
	"github.com/cleanflip/opsight/internal/store"
	"github.com/cleanflip/opsight/pkg/models"
)

// ErrInvalidReport marks a malformed ingestion payload. Wrapped errors
// carry the specific field complaint.
var ErrInvalidReport = errors.New("invalid error report")

const (
	defaultService = "client"
	defaultEnv     = "development"
)

// Report is the raw payload accepted from client error boundaries and
// server exception handlers. Tags and Extra are opaque: stored and served
// byte-for-byte, never interpreted.
type Report struct {
	Service    string          `json:"service"`
	Level      string          `json:"level"`
	Env        string          `json:"env"`
	Message    string          `json:"message"`
	Release    *string         `json:"release,omitempty"`
	URL        *string         `json:"url,omitempty"`
	Method     *string         `json:"method,omitempty"`
	StatusCode *int            `json:"status_code,omitempty"`
	UserID     *string         `json:"user_id,omitempty"`
	Stack      string          `json:"stack,omitempty"`
	Tags       json.RawMessage `json:"tags,omitempty"`
	Extra      json.RawMessage `json:"extra,omitempty"`
}

// Result is what ingestion reports back to the producer.
type Result struct {
	EventID     uuid.UUID     `json:"event_id"`
	Fingerprint string        `json:"fingerprint"`
	Issue       *models.Issue `json:"-"`
}

// Service coordinates the three storage steps of one ingested report.
type Service struct {
	store   store.Store
	retries int
	now     func() time.Time
}

// New creates an ingest Service. retries bounds the aggregate-upsert
// retries taken after the event itself is already durable.
func New(s store.Store, retries int) *Service {
	if retries < 1 {
		retries = 1
	}
	return &Service{store: s, retries: retries, now: time.Now}
}

// Ingest processes one raw report. The event append is the durability
// barrier: if it fails the whole ingest is aborted, so an occurrence is
// never counted in an aggregate without being recorded. Once the event is
// stored, aggregate failures degrade to logged retries rather than errors,
// because the aggregate can always be reconciled from the event log.
func (s *Service) Ingest(ctx context.Context, r Report) (*Result, error) {
	if err := validate(&r); err != nil {
		return nil, err
	}

	createdAt := s.now().UTC()
	event := &models.ErrorEvent{
		EventID:     uuid.New(),
		CreatedAt:   createdAt,
		Service:     r.Service,
		Level:       r.Level,
		Env:         r.Env,
		Message:     r.Message,
		Release:     r.Release,
		URL:         r.URL,
		Method:      r.Method,
		StatusCode:  r.StatusCode,
		UserID:      r.UserID,
		Stack:       fingerprint.NormalizeStack(r.Stack),
		Tags:        orEmptyObject(r.Tags),
		Extra:       orEmptyObject(r.Extra),
		Fingerprint: fingerprint.Compute(r.Message, r.Stack, r.Service, r.Level),
	}

	if err := s.store.AppendEvent(ctx, event); err != nil {
		slog.Error("event append failed, report dropped",
			"fingerprint", event.Fingerprint,
			"service", event.Service,
			"error", err,
		)
		return nil, fmt.Errorf("append event: %w", err)
	}

	result := &Result{EventID: event.EventID, Fingerprint: event.Fingerprint}

	// The rollup bump is independent of the aggregate upsert, so a stale
	// issue row never also holds back the trend data. RecountHourly
	// reconciles any bump the store refuses here.
	hour := createdAt.Truncate(time.Hour)
	if err := s.store.BumpHourly(ctx, event.Fingerprint, hour); err != nil {
		slog.Warn("hourly rollup bump failed",
			"fingerprint", event.Fingerprint,
			"hour", hour,
			"error", err,
		)
	}

	issue, err := s.upsertWithRetry(ctx, event)
	if err != nil {
		// The event is durable; the aggregate will catch up on a later
		// occurrence or an offline reconciliation pass.
		slog.Error("issue upsert failed after retries, aggregate stale",
			"fingerprint", event.Fingerprint,
			"error", err,
		)
		return result, nil
	}
	result.Issue = issue

	return result, nil
}

func (s *Service) upsertWithRetry(ctx context.Context, event *models.ErrorEvent) (*models.Issue, error) {
	var lastErr error
	for attempt := 0; attempt < s.retries; attempt++ {
		issue, err := s.store.UpsertIssue(ctx, event)
		if err == nil {
			return issue, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func validate(r *Report) error {
	if r.Message == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidReport)
	}
	if r.Level == "" {
		return fmt.Errorf("%w: level is required", ErrInvalidReport)
	}
	if !models.ValidLevel(r.Level) {
		return fmt.Errorf("%w: level must be one of error, warn, info; got %q", ErrInvalidReport, r.Level)
	}
	if r.Service == "" {
		r.Service = defaultService
	}
	if r.Env == "" {
		r.Env = defaultEnv
	}
	return nil
}

func orEmptyObject(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return raw
}
