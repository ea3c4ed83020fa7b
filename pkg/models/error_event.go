package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event levels accepted by the ingest endpoint.
const (
	LevelError = "error"
	LevelWarn  = "warn"
	LevelInfo  = "info"
)

// ErrorEvent is one immutable occurrence of an error as reported by a
// producer. Events are append-only: the core never updates or deletes them.
type ErrorEvent struct {
	EventID     uuid.UUID       `db:"event_id"    json:"event_id"`
	CreatedAt   time.Time       `db:"created_at"  json:"created_at"`
	Service     string          `db:"service"     json:"service"`
	Level       string          `db:"level"       json:"level"`
	Env         string          `db:"env"         json:"env"`
	Message     string          `db:"message"     json:"message"`
	Release     *string         `db:"release"     json:"release,omitempty"`
	URL         *string         `db:"url"         json:"url,omitempty"`
	Method      *string         `db:"method"      json:"method,omitempty"`
	StatusCode  *int            `db:"status_code" json:"status_code,omitempty"`
	UserID      *string         `db:"user_id"     json:"user_id,omitempty"`
	Stack       string          `db:"stack"       json:"stack,omitempty"`
	Tags        json.RawMessage `db:"tags"        json:"tags,omitempty"`
	Extra       json.RawMessage `db:"extra"       json:"extra,omitempty"`
	Fingerprint string          `db:"fingerprint" json:"fingerprint"`
}

// LevelSeverity maps a level string to a numeric rank for comparisons.
// Unknown levels rank lowest.
func LevelSeverity(level string) int {
	switch level {
	case LevelError:
		return 2
	case LevelWarn:
		return 1
	default:
		return 0
	}
}

// ValidLevel reports whether level is one of the accepted ingest levels.
func ValidLevel(level string) bool {
	return level == LevelError || level == LevelWarn || level == LevelInfo
}
