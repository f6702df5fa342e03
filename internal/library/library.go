// Package library records successfully published items into the owner's
// local content library.
//
// Adapters call RecordPublished after a provider accepts a post; the
// orchestrator never touches the library directly. Failures here are logged
// by the caller and never fail the publish itself.
package library

import (
	"context"
	"sync"
	"time"

	"socialpub/internal/job"
)

// Item is one published post as recorded in the library.
type Item struct {
	OwnerID     string
	Provider    string
	RemoteID    string // provider-side post/media ID, when known
	Caption     string
	Media       []job.MediaRef
	PublishedAt time.Time
}

// Recorder persists published items.
type Recorder interface {
	RecordPublished(ctx context.Context, item Item) error
}

// MemoryRecorder collects items in memory for dev runs and tests.
type MemoryRecorder struct {
	mu    sync.Mutex
	items []Item
}

// NewMemoryRecorder creates an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// RecordPublished appends the item.
func (r *MemoryRecorder) RecordPublished(ctx context.Context, item Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if item.PublishedAt.IsZero() {
		item.PublishedAt = time.Now().UTC()
	}
	r.items = append(r.items, item)
	return nil
}

// Items returns a snapshot of recorded items.
func (r *MemoryRecorder) Items() []Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Item(nil), r.items...)
}

var _ Recorder = (*MemoryRecorder)(nil)
