// Package activity journals the outcome of every transaction command so the
// dashboard can show an account's recent activity.
package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Err is a simple string error helper.
type Err string

func (e Err) Error() string { return string(e) }

var (
	ErrEntryNotFound = Err("activity entry not found")
	ErrInvalidEntry  = Err("activity entry needs an action and an outcome")
)

// Outcomes of a command.
const (
	OutcomeConfirmed    = "confirmed"
	OutcomeRejected     = "rejected"
	OutcomePrecondition = "precondition"
)

// Entry is one journaled command.
type Entry struct {
	ID        string    `json:"id"`
	Account   string    `json:"account"`
	Network   string    `json:"network"`
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome"`
	TxHash    string    `json:"tx_hash,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Account string
	Action  string
	Outcome string
	Limit   int
}

// Store persists activity entries.
type Store interface {
	Append(ctx context.Context, e Entry) (Entry, error)
	Get(ctx context.Context, id string) (Entry, error)
	List(ctx context.Context, f Filter) ([]Entry, error)
	Close()
}

const defaultLimit = 50

// prepare validates e and fills the id and timestamp.
func prepare(e Entry, now time.Time) (Entry, error) {
	if e.Action == "" || e.Outcome == "" {
		return Entry{}, ErrInvalidEntry
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now.UTC()
	}
	return e, nil
}

func limitOf(f Filter) int {
	if f.Limit <= 0 || f.Limit > 500 {
		return defaultLimit
	}
	return f.Limit
}
