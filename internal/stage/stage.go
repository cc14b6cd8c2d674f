// Package stage implements the five pipeline stages: ingest, merge,
// segment, enrich, and trips. Each stage is a short-lived handler
// triggered by the arrival of its input object; stages communicate
// only through the object store's well-known key prefixes and the
// fire-and-forget bus.
package stage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shiva/dayline/internal/store"
)

// putJSON writes v as compact JSON under the given key.
func putJSON(ctx context.Context, st store.ObjectStore, key string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("stage: marshal %s: %w", key, err)
	}
	return st.Put(ctx, key, body, store.ContentTypeJSON)
}
