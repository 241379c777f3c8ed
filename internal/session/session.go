// Package session owns the investigation session lifecycle: the state
// machine, validated immutable configuration, and aggregate statistics.
package session

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/matbeedotcom/media-transparency-sub001/internal/entity"
)

// Status is a session's lifecycle state.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusRunning      Status = "running"
	StatusPaused       Status = "paused"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// ErrInvalidTransition is returned when a requested status change is not in
// the state machine. The session is not mutated.
var ErrInvalidTransition = eris.New("session: invalid status transition")

var transitions = map[Status][]Status{
	StatusInitializing: {StatusRunning, StatusFailed},
	StatusRunning:      {StatusPaused, StatusCompleted, StatusFailed},
	StatusPaused:       {StatusRunning, StatusFailed},
	StatusCompleted:    {},
	StatusFailed:       {},
}

// CanTransition reports whether from→to is a defined transition.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status ends the session's lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus validates a stored status string.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusInitializing, StatusRunning, StatusPaused, StatusCompleted, StatusFailed:
		return Status(raw), nil
	}
	return "", eris.Errorf("session: unrecognized status %q", raw)
}

// Stats are the session's aggregate counters. They are recomputed from the
// lead queue and the session's entity attachments, so a redundant recompute
// by a second worker converges to the same values.
type Stats struct {
	EntitiesDiscovered      int     `json:"entities_discovered"`
	RelationshipsDiscovered int     `json:"relationships_discovered"`
	LeadsProcessed          int     `json:"leads_processed"`
	LeadsFailed             int     `json:"leads_failed"`
	LeadsSkipped            int     `json:"leads_skipped"`
	LeadsPending            int     `json:"leads_pending"`
	PendingMeanConfidence   float64 `json:"pending_mean_confidence"`
}

// Session is one investigation run. Config is immutable after creation.
type Session struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	EntryScheme entity.Scheme `json:"entry_scheme"`
	EntryValue  string        `json:"entry_value"`
	Status      Status        `json:"status"`
	Config      Config        `json:"config"`
	Stats       Stats         `json:"stats"`
	Error       string        `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
