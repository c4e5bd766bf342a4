package repository

import (
	"context"
	"errors"
	"fmt"
)

// Collections used by the task engine.
const (
	CollectionTasks     = "tasks"
	CollectionReminders = "reminders"
	CollectionProfiles  = "profiles"
)

var (
	// ErrNotFound is returned when a document key does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when an atomic update keeps losing races.
	ErrConflict = errors.New("document update conflict")
)

const maxUpdateAttempts = 8

// Document is one stored JSON body addressed by collection and key.
type Document struct {
	Collection string
	Key        string
	Body       []byte
	Version    int64
}

// UpdateFunc receives the current body (nil when the key is absent) and
// returns the body to store. Returning an error aborts the update.
type UpdateFunc func(current []byte) ([]byte, error)

// DocumentStore is the persistence port: key-addressable documents with an
// atomic per-document read-modify-write. No transactions span documents.
type DocumentStore interface {
	Get(ctx context.Context, collection, key string) ([]byte, error)
	Upsert(ctx context.Context, collection, key string, body []byte) error
	Delete(ctx context.Context, collection, key string) error
	Scan(ctx context.Context, collection string, match func(key string, body []byte) bool) ([]Document, error)
	Update(ctx context.Context, collection, key string, fn UpdateFunc) ([]byte, error)
	Close() error
}

// versioned is implemented by backends that can compare-and-swap on a
// per-document version. Version 0 means the document does not exist.
type versioned interface {
	load(ctx context.Context, collection, key string) ([]byte, int64, error)
	swap(ctx context.Context, collection, key string, body []byte, version int64) (bool, error)
}

// update runs fn under optimistic concurrency, retrying on lost races.
func update(ctx context.Context, b versioned, collection, key string, fn UpdateFunc) ([]byte, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current, version, err := b.load(ctx, collection, key)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		next, err := fn(current)
		if err != nil {
			return nil, err
		}
		ok, err := b.swap(ctx, collection, key, next, version)
		if err != nil {
			return nil, err
		}
		if ok {
			return next, nil
		}
	}
	return nil, fmt.Errorf("update %s/%s: %w", collection, key, ErrConflict)
}
