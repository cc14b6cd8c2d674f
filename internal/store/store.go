// Package store abstracts the shared object store the pipeline stages
// communicate through. Stages depend on the ObjectStore interface
// only; production wires the S3 implementation, tests wire Memory.
package store

import (
	"context"
	"errors"
)

// ErrNotExist is returned by Get when the key is not (yet) visible.
// Callers that tolerate read-after-write lag retry on it.
var ErrNotExist = errors.New("store: object does not exist")

// Content types used across the pipeline.
const (
	ContentTypeJSON  = "application/json"
	ContentTypeJSONL = "application/jsonl"
	ContentTypeText  = "text/plain"
)

// ObjectStore is the single shared resource of the pipeline. Every
// stage writes exclusively to its own key space; a stage may overwrite
// its own output idempotently.
type ObjectStore interface {
	// Get returns the full object body, or ErrNotExist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put replaces the object at key (last write wins).
	Put(ctx context.Context, key string, body []byte, contentType string) error

	// Exists reports whether the key is currently visible.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns up to max keys under the given prefix.
	List(ctx context.Context, prefix string, max int32) ([]string, error)
}
