// Package ledger maintains the newsletter registration ledger, a CSV object
// in an S3-compatible bucket that gains one row per subscription.
//
// Appends are a full read-modify-write of the object. When the store rejects
// a write because another invocation got there first, the whole cycle is
// retried against the fresh content.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Storage is the object access Append is built on. *Store implements it.
type Storage interface {
	Get(ctx context.Context) (*Object, error)
	Put(ctx context.Context, body []byte, prev *Object) error
}

type Ledger struct {
	store    Storage
	loc      *time.Location
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
}

type Option func(*Ledger)

// WithAttempts caps how many read-modify-write cycles Append runs.
func WithAttempts(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.attempts = n
		}
	}
}

// WithBackoff sets the base delay between conflicting attempts. The n-th
// retry waits n times this.
func WithBackoff(d time.Duration) Option {
	return func(l *Ledger) { l.backoff = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func New(store Storage, loc *time.Location, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		loc:      loc,
		attempts: 3,
		backoff:  50 * time.Millisecond,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append adds e as the last row, creating the ledger if needed.
func (l *Ledger) Append(ctx context.Context, e Entry) error {
	for attempt := 1; ; attempt++ {
		err := l.appendOnce(ctx, e)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}
		if attempt >= l.attempts {
			return fmt.Errorf("append to ledger after %d attempts: %w", attempt, err)
		}

		l.logger.Warn("ledger write conflict, retrying", "attempt", attempt)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.backoff * time.Duration(attempt)):
		}
	}
}

func (l *Ledger) appendOnce(ctx context.Context, e Entry) error {
	obj, err := l.store.Get(ctx)
	var existing []byte
	switch {
	case errors.Is(err, ErrNotFound):
		obj = nil
	case err != nil:
		return err
	default:
		existing = obj.Body
	}

	body, err := AppendEntry(existing, e, l.loc)
	if err != nil {
		return err
	}

	return l.store.Put(ctx, body, obj)
}
