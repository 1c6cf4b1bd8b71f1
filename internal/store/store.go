// Package store persists review job statuses and results. Every backend
// offers atomic per-key reads and writes; there are no cross-key
// transactions because a single worker writes status and result in a
// fixed order.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"prreview/internal/model"
)

var (
	// ErrNotFound is returned for ids that were never submitted, whose
	// entries expired, or whose result has not been written yet.
	ErrNotFound = errors.New("job not found")

	// ErrTerminal is returned by SetStatus when the job already reached
	// completed or failed.
	ErrTerminal = errors.New("job already in terminal state")
)

// Error wraps a backend failure with the operation that hit it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrTerminal) {
		return err
	}
	return &Error{Op: op, Err: err}
}

// JobStore is the contract shared by the orchestrator (sole writer) and
// the gateway (reader).
type JobStore interface {
	SetStatus(ctx context.Context, id string, status model.Status) error
	GetStatus(ctx context.Context, id string) (model.Status, error)
	SetResult(ctx context.Context, id string, result model.Result) error
	GetResult(ctx context.Context, id string) (model.Result, error)
}

// Pinger is implemented by backends that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Sweeper is implemented by backends that need an explicit retention pass.
// Backends with native expiry do not implement it.
type Sweeper interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
