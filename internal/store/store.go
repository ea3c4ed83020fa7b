package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/cleanflip/opsight/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	// Event log: append-only, most-recent-first reads.
	AppendEvent(ctx context.Context, event *models.ErrorEvent) error
	RecentEvents(ctx context.Context, fingerprint string, limit, offset int) ([]*models.ErrorEvent, error)

	// Issue aggregate. UpsertIssue is the single atomic create-or-increment
	// step that serializes concurrent ingestion per fingerprint.
	UpsertIssue(ctx context.Context, event *models.ErrorEvent) (*models.Issue, error)
	ListIssues(ctx context.Context, filter IssueFilter) ([]*models.Issue, int, error)
	GetIssue(ctx context.Context, fingerprint string) (*models.Issue, error)
	SetResolved(ctx context.Context, fingerprint string, resolved bool) error
	SetIgnored(ctx context.Context, fingerprint string, ignored bool) error

	// Hourly rollup for trend charts. RecountHourly recomputes the same
	// window directly from the event log for reconciliation.
	BumpHourly(ctx context.Context, fingerprint string, hour time.Time) error
	HourlyCounts(ctx context.Context, from, to time.Time) ([]HourCount, error)
	RecountHourly(ctx context.Context, from, to time.Time) ([]HourCount, error)

	Stats(ctx context.Context) (*Stats, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// IssueFilter narrows ListIssues. Resolved and Ignored always apply: the
// zero values deliberately hide resolved and ignored issues so the triage
// list stays focused on what is actionable.
type IssueFilter struct {
	Q        string
	Level    string
	Env      string
	Resolved bool
	Ignored  bool
	Page     int
	Limit    int
}

// HourCount is one hourly bucket as stored. Buckets with zero events are
// absent here; gap filling happens in the series package.
type HourCount struct {
	Hour  time.Time
	Count int64
}

// Stats summarizes the issue inventory for the dashboard header.
type Stats struct {
	TotalIssues      int64 `json:"total_issues"`
	UnresolvedIssues int64 `json:"unresolved_issues"`
	IgnoredIssues    int64 `json:"ignored_issues"`
	EventsLast24h    int64 `json:"events_last_24h"`
}
