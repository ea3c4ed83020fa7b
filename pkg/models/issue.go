package models

import (
	"time"

	"github.com/google/uuid"
)

// Issue is the deduplicated aggregate of all occurrences of one logical
// error. The fingerprint is the primary key: the grouping key is the
// identity, not a surrogate id.
type Issue struct {
	Fingerprint   string         `db:"fingerprint"     json:"fingerprint"`
	Title         string         `db:"title"           json:"title"`
	Level         string         `db:"level"           json:"level"`
	Service       string         `db:"service"         json:"service"`
	FirstSeen     time.Time      `db:"first_seen"      json:"first_seen"`
	LastSeen      time.Time      `db:"last_seen"       json:"last_seen"`
	Count         int64          `db:"count"           json:"count"`
	Envs          map[string]int `db:"envs"            json:"envs"`
	Resolved      bool           `db:"resolved"        json:"resolved"`
	Ignored       bool           `db:"ignored"         json:"ignored"`
	SampleEventID uuid.UUID      `db:"sample_event_id" json:"sample_event_id"`
}
