package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cleanflip/opsight/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Events ---

const eventColumns = `event_id, created_at, service, level, env, message, release, url, method, status_code, user_id, stack, tags, extra, fingerprint`

func (s *PostgresStore) AppendEvent(ctx context.Context, e *models.ErrorEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		e.EventID, e.CreatedAt, e.Service, e.Level, e.Env, e.Message,
		e.Release, e.URL, e.Method, e.StatusCode, e.UserID, e.Stack,
		e.Tags, e.Extra, e.Fingerprint)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentEvents(ctx context.Context, fingerprint string, limit, offset int) ([]*models.ErrorEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE fingerprint = $1
		 ORDER BY created_at DESC, event_id DESC
		 LIMIT $2 OFFSET $3`, fingerprint, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	events := []*models.ErrorEvent{}
	for rows.Next() {
		var e models.ErrorEvent
		if err := rows.Scan(&e.EventID, &e.CreatedAt, &e.Service, &e.Level, &e.Env,
			&e.Message, &e.Release, &e.URL, &e.Method, &e.StatusCode, &e.UserID,
			&e.Stack, &e.Tags, &e.Extra, &e.Fingerprint); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// --- Issues ---

// severityRank ranks an event level inside SQL so title/level promotion and
// Go-side comparisons agree. Must stay in sync with models.LevelSeverity.
const severityRank = `CASE %s WHEN 'error' THEN 2 WHEN 'warn' THEN 1 ELSE 0 END`

const issueColumns = `fingerprint, title, level, service, first_seen, last_seen, count, envs, resolved, ignored, sample_event_id`

// UpsertIssue performs the single atomic create-or-increment on which
// ingest concurrency relies. Concurrent calls with the same fresh
// fingerprint serialize inside Postgres; a read-then-write here would lose
// updates. A recurrence clears resolved (auto-reopen); ignored is sticky
// and only an explicit unignore lifts it.
func (s *PostgresStore) UpsertIssue(ctx context.Context, e *models.ErrorEvent) (*models.Issue, error) {
	newRank := fmt.Sprintf(severityRank, "EXCLUDED.level")
	oldRank := fmt.Sprintf(severityRank, "issues.level")

	query := `
		INSERT INTO issues (` + issueColumns + `)
		VALUES ($1, $2, $3, $4, $5, $5, 1, jsonb_build_object($6::text, 1), FALSE, FALSE, $7)
		ON CONFLICT (fingerprint) DO UPDATE SET
		  count     = issues.count + 1,
		  last_seen = GREATEST(issues.last_seen, EXCLUDED.last_seen),
		  envs      = COALESCE(issues.envs, '{}'::jsonb) ||
		              jsonb_build_object($6::text, COALESCE((issues.envs->>($6::text))::int, 0) + 1),
		  title     = CASE WHEN ` + newRank + ` > ` + oldRank + ` THEN EXCLUDED.title ELSE issues.title END,
		  level     = CASE WHEN ` + newRank + ` > ` + oldRank + ` THEN EXCLUDED.level ELSE issues.level END,
		  resolved  = FALSE
		RETURNING ` + issueColumns

	var i models.Issue
	err := s.pool.QueryRow(ctx, query,
		e.Fingerprint, issueTitle(e.Message), e.Level, e.Service, e.CreatedAt, e.Env, e.EventID,
	).Scan(&i.Fingerprint, &i.Title, &i.Level, &i.Service, &i.FirstSeen, &i.LastSeen,
		&i.Count, &i.Envs, &i.Resolved, &i.Ignored, &i.SampleEventID)
	if err != nil {
		return nil, fmt.Errorf("upsert issue: %w", err)
	}
	return &i, nil
}

func (s *PostgresStore) ListIssues(ctx context.Context, filter IssueFilter) ([]*models.Issue, int, error) {
	// Build WHERE clause dynamically
	conditions := []string{"resolved = $1", "ignored = $2"}
	args := []any{filter.Resolved, filter.Ignored}
	argIdx := 3

	if q := strings.TrimSpace(filter.Q); q != "" {
		conditions = append(conditions,
			fmt.Sprintf("(title ILIKE $%d OR fingerprint ILIKE $%d)", argIdx, argIdx))
		args = append(args, "%"+q+"%")
		argIdx++
	}
	if filter.Level != "" {
		conditions = append(conditions, fmt.Sprintf("level = $%d", argIdx))
		args = append(args, filter.Level)
		argIdx++
	}
	if filter.Env != "" {
		conditions = append(conditions, fmt.Sprintf("envs ? $%d", argIdx))
		args = append(args, filter.Env)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	// Count query
	var total int
	countQuery := "SELECT COUNT(*) FROM issues WHERE " + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count issues: %w", err)
	}

	// Normalize pagination
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	// Data query; fingerprint tiebreak keeps pagination deterministic.
	dataQuery := fmt.Sprintf(
		`SELECT `+issueColumns+` FROM issues WHERE %s
		 ORDER BY last_seen DESC, fingerprint ASC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()

	issues := []*models.Issue{}
	for rows.Next() {
		var i models.Issue
		if err := rows.Scan(&i.Fingerprint, &i.Title, &i.Level, &i.Service, &i.FirstSeen,
			&i.LastSeen, &i.Count, &i.Envs, &i.Resolved, &i.Ignored, &i.SampleEventID); err != nil {
			return nil, 0, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, &i)
	}
	return issues, total, rows.Err()
}

func (s *PostgresStore) GetIssue(ctx context.Context, fingerprint string) (*models.Issue, error) {
	var i models.Issue
	err := s.pool.QueryRow(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE fingerprint = $1`, fingerprint,
	).Scan(&i.Fingerprint, &i.Title, &i.Level, &i.Service, &i.FirstSeen,
		&i.LastSeen, &i.Count, &i.Envs, &i.Resolved, &i.Ignored, &i.SampleEventID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	return &i, nil
}

func (s *PostgresStore) SetResolved(ctx context.Context, fingerprint string, resolved bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE issues SET resolved = $2 WHERE fingerprint = $1`, fingerprint, resolved)
	if err != nil {
		return fmt.Errorf("set resolved: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetIgnored(ctx context.Context, fingerprint string, ignored bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE issues SET ignored = $2 WHERE fingerprint = $1`, fingerprint, ignored)
	if err != nil {
		return fmt.Errorf("set ignored: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Hourly rollup ---

func (s *PostgresStore) BumpHourly(ctx context.Context, fingerprint string, hour time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO issue_hourly (fingerprint, hour, count)
		 VALUES ($1, $2, 1)
		 ON CONFLICT (fingerprint, hour) DO UPDATE SET count = issue_hourly.count + 1`,
		fingerprint, hour)
	if err != nil {
		return fmt.Errorf("bump hourly: %w", err)
	}
	return nil
}

func (s *PostgresStore) HourlyCounts(ctx context.Context, from, to time.Time) ([]HourCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT hour, SUM(count)::bigint FROM issue_hourly
		 WHERE hour >= $1 AND hour < $2
		 GROUP BY hour ORDER BY hour ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("hourly counts: %w", err)
	}
	defer rows.Close()
	return scanHourCounts(rows)
}

func (s *PostgresStore) RecountHourly(ctx context.Context, from, to time.Time) ([]HourCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT date_trunc('hour', created_at) AS hour, COUNT(*)::bigint FROM events
		 WHERE created_at >= $1 AND created_at < $2
		 GROUP BY 1 ORDER BY 1 ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("recount hourly: %w", err)
	}
	defer rows.Close()
	return scanHourCounts(rows)
}

func scanHourCounts(rows pgx.Rows) ([]HourCount, error) {
	counts := []HourCount{}
	for rows.Next() {
		var hc HourCount
		if err := rows.Scan(&hc.Hour, &hc.Count); err != nil {
			return nil, fmt.Errorf("scan hour count: %w", err)
		}
		counts = append(counts, hc)
	}
	return counts, rows.Err()
}

// --- Stats ---

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
		  (SELECT COUNT(*) FROM issues),
		  (SELECT COUNT(*) FROM issues WHERE NOT resolved),
		  (SELECT COUNT(*) FROM issues WHERE ignored),
		  (SELECT COUNT(*) FROM events WHERE created_at >= NOW() - INTERVAL '24 hours')`,
	).Scan(&st.TotalIssues, &st.UnresolvedIssues, &st.IgnoredIssues, &st.EventsLast24h)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return &st, nil
}

// --- API Keys ---

const apiKeyColumns = `id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at`

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()
	return scanAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()
	return scanAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

// issueTitle derives the representative title from an event message:
// first line, capped at 160 characters.
func issueTitle(message string) string {
	title := message
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = title[:idx]
	}
	if runes := []rune(title); len(runes) > 160 {
		title = string(runes[:160])
	}
	return title
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
