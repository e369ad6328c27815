// Package store defines the string-keyed persistence medium for the engine
// and the typed repositories built on it.
//
// Implementations include a JSON file and SQLite (local disk), PostgreSQL,
// a Redis read-through cache in front of any of them, and in-memory (for
// testing).
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by KV.Get when the key has never been written.
	ErrNotFound = errors.New("store: key not found")

	// ErrCorruptState is returned by repositories when a stored value cannot
	// be decoded. Callers treat it as an empty collection.
	ErrCorruptState = errors.New("store: corrupt persisted state")
)

// Persisted keys.
const (
	KeyPositions = "positions"
	KeyGames     = "prediction_games"
)

// KV is the persistence interface: a flat map of string keys to raw string
// values, the same shape as browser local storage.
type KV interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
