package storage

import (
	"errors"
	"time"

	"github.com/holo-host/hpos-api/pkg/events"
	"github.com/holo-host/hpos-api/pkg/slcheck"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// Pass outcomes
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// PassRecord summarises one service logger check
type PassRecord struct {
	ID         string         `json:"id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Outcome    string         `json:"outcome"`
	Report     slcheck.Report `json:"report"`
}

// Store is the operator journal of passes and lifecycle events. Nothing in
// the gateway reads it back into decisions.
type Store interface {
	RecordPass(rec *PassRecord) error
	GetPass(id string) (*PassRecord, error)
	// ListPasses returns up to limit passes, newest first
	ListPasses(limit int) ([]*PassRecord, error)

	RecordEvent(ev *events.Event) error
	// ListEvents returns up to limit events, newest first. A non-empty appID
	// keeps only that app's events.
	ListEvents(limit int, appID string) ([]*events.Event, error)

	// Prune keeps the newest keep records of each kind
	Prune(keep int) error

	Close() error
}
