package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"blocktix/internal/status"
	"blocktix/monitoring"
)

// Collection names shared by every backend.
const (
	Events  = "events"
	Tickets = "tickets"
)

// Document is one stored record. Data holds the JSON encoding of the domain
// value; Rev increases by one on every successful write.
type Document struct {
	ID   string
	Data []byte
	Rev  int64
}

// Mutator receives the current encoded state of a document and returns the
// replacement. Returning an error aborts the write and leaves the document
// untouched.
type Mutator func(current []byte) ([]byte, error)

// Store is the persistence collaborator behind the inventory and ticket
// services. Read, Update and Delete return status.ErrNotFound for unknown ids.
type Store interface {
	Read(ctx context.Context, collection, id string) (*Document, error)
	List(ctx context.Context, collection string) ([]Document, error)
	Create(ctx context.Context, collection string, data []byte) (string, error)

	// Update overwrites the document. It is a write like any other: the
	// revision advances and a concurrent WriteAtomic retries against it.
	Update(ctx context.Context, collection, id string, data []byte) error

	// WriteAtomic applies fn as one indivisible read-modify-write. A
	// concurrent write to the same document is retried internally and
	// surfaces as status.ErrConflict only once retries are exhausted.
	WriteAtomic(ctx context.Context, collection, id string, fn Mutator) (*Document, error)

	Delete(ctx context.Context, collection, id string) error

	// Subscribe delivers the full collection whenever it changes, starting
	// with the current contents. Slow readers only ever see the latest
	// snapshot. The channel is closed when ctx ends or the store closes.
	Subscribe(ctx context.Context, collection string) (<-chan []Document, error)

	Close() error
}

// DefaultMaxAttempts bounds optimistic write retries when no limit is configured.
const DefaultMaxAttempts = 10

// RetryOnConflict runs fn until it succeeds, fails with anything other than
// status.ErrConflict, or maxAttempts is reached.
func RetryOnConflict(ctx context.Context, maxAttempts int, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if !errors.Is(err, status.ErrConflict) {
			return err
		}

		if attempt == maxAttempts {
			break
		}

		slog.Debug("write conflict, retrying", "attempt", attempt)
		monitoring.TrackConflictRetry()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(attempt)):
		}
	}
	return fmt.Errorf("%w: gave up after %d attempts", status.ErrConflict, maxAttempts)
}

func backoff(attempt int) time.Duration {
	d := time.Duration(attempt) * 2 * time.Millisecond
	return min(d, 50*time.Millisecond)
}
