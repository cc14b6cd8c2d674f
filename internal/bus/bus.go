// Package bus carries the fire-and-forget object-creation events that
// chain the pipeline stages. Events mirror the S3 notification shape
// so the same stage code serves both the Lambda deployment and the
// single-binary in-process runtime.
package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ─── Events ─────────────────────────────────────────────────

// Event is an object-creation notification.
type Event struct {
	Records []Record `json:"Records"`
}

// Record names one created object.
type Record struct {
	S3 S3Entity `json:"s3"`
}

// S3Entity is the bucket/object pair of a record.
type S3Entity struct {
	Bucket BucketEntity `json:"bucket"`
	Object ObjectEntity `json:"object"`
}

// BucketEntity carries the bucket name.
type BucketEntity struct {
	Name string `json:"name"`
}

// ObjectEntity carries the object key.
type ObjectEntity struct {
	Key string `json:"key"`
}

// ObjectCreated builds a single-record event for one key.
func ObjectCreated(bucket, key string) Event {
	return Event{Records: []Record{{
		S3: S3Entity{
			Bucket: BucketEntity{Name: bucket},
			Object: ObjectEntity{Key: key},
		},
	}}}
}

// ─── Bus ────────────────────────────────────────────────────

// Handler processes one event. Handlers own their error handling;
// publication is fire-and-forget.
type Handler func(ctx context.Context, evt Event)

// Bus publishes an event toward a named stage handle. Implementations
// must not block on the handler's execution.
type Bus interface {
	Publish(ctx context.Context, target string, evt Event) error
}

// ─── In-process implementation ──────────────────────────────

// InProcess dispatches events to handlers registered in the same
// process. By default dispatch runs on a fresh goroutine; Sync mode
// runs it inline, which tests use to drive the pipeline
// deterministically.
type InProcess struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	sync     bool
	log      zerolog.Logger
}

// NewInProcess returns an empty in-process bus.
func NewInProcess(log zerolog.Logger) *InProcess {
	return &InProcess{
		handlers: make(map[string]Handler),
		log:      log,
	}
}

// Synchronous switches dispatch to inline execution and returns the
// bus for chaining.
func (b *InProcess) Synchronous() *InProcess {
	b.sync = true
	return b
}

// Subscribe registers the handler for a stage handle, replacing any
// previous registration.
func (b *InProcess) Subscribe(target string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[target] = h
}

// Publish dispatches the event to the registered handler. An unknown
// target is an error; handler panics are contained and logged, never
// propagated to the publisher.
//
// Async dispatch detaches from the publisher's cancellation: the
// publisher is typically an HTTP handler whose context dies as soon as
// the response is written, and a queued stage must outlive it.
func (b *InProcess) Publish(ctx context.Context, target string, evt Event) error {
	b.mu.RLock()
	h, ok := b.handlers[target]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("bus: no handler for %q", target)
	}

	run := func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				b.log.Error().Str("event", "bus_handler_panic").
					Str("target", target).Interface("panic", r).Send()
			}
		}()
		h(ctx, evt)
	}

	if b.sync {
		run(ctx)
	} else {
		go run(context.WithoutCancel(ctx))
	}
	return nil
}
