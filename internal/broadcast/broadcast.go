// Package broadcast fans publish-progress frames out to stream subscribers.
//
// The store is the record of truth; frames are best-effort notifications.
// A slow subscriber loses frames rather than stalling the publisher, and a
// subscriber that misses the done frame can always fetch the job snapshot.
package broadcast

import (
	"context"
	"sync"

	"socialpub/internal/job"
	"socialpub/internal/observability"
)

// Frame types.
const (
	FrameSnapshot = "snapshot"
	FrameProgress = "progress"
	FrameDone     = "done"
)

// Frame is one streamed update for a publish job.
type Frame struct {
	Type     string         `json:"type"`
	JobID    string         `json:"jobId"`
	Provider string         `json:"provider,omitempty"`
	OK       *bool          `json:"ok,omitempty"`
	Posted   *int           `json:"posted,omitempty"`
	Error    string         `json:"error,omitempty"`
	Details  map[string]any `json:"details,omitempty"`

	// Done frame fields.
	Status  string                 `json:"status,omitempty"`
	Results map[string]job.Outcome `json:"results,omitempty"`
}

// Progress builds the frame for one provider outcome.
func Progress(jobID string, out job.Outcome) Frame {
	ok := out.OK
	return Frame{
		Type:     FrameProgress,
		JobID:    jobID,
		Provider: out.Provider,
		OK:       &ok,
		Posted:   out.Posted,
		Error:    out.Error,
		Details:  out.Details,
	}
}

// Snapshot builds the initial state frame a new subscriber receives.
func Snapshot(j *job.Job) Frame {
	return Frame{
		Type:    FrameSnapshot,
		JobID:   j.ID,
		Status:  j.Status,
		Results: j.Outcomes,
	}
}

// Done builds the terminal frame from the finished job.
func Done(j *job.Job) Frame {
	return Frame{
		Type:    FrameDone,
		JobID:   j.ID,
		Status:  j.Status,
		Results: j.Outcomes,
	}
}

// subscriberBuffer is the per-subscriber channel capacity. A subscriber
// that falls this far behind starts losing frames.
const subscriberBuffer = 16

// Broadcaster delivers frames to everyone subscribed to a job.
type Broadcaster interface {
	// Publish delivers the frame to current subscribers of the job.
	Publish(ctx context.Context, jobID string, f Frame) error

	// Subscribe registers interest in a job's frames. The returned cancel
	// must be called when the subscriber goes away.
	Subscribe(jobID string) (<-chan Frame, func())

	// Close tears down all subscriptions.
	Close()
}

// Hub is the in-memory broadcaster for a single instance.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]map[chan Frame]struct{} // jobID -> subscriber channels
	closed  bool
	metrics *observability.Metrics
}

// NewHub creates an empty hub. Metrics may be nil.
func NewHub(metrics *observability.Metrics) *Hub {
	return &Hub{
		subs:    make(map[string]map[chan Frame]struct{}),
		metrics: metrics,
	}
}

// Publish sends the frame to every subscriber of the job. Sends never
// block: a full subscriber buffer drops the frame for that subscriber.
// Frames for one job are delivered in publish order because sends happen
// under the hub lock.
func (h *Hub) Publish(ctx context.Context, jobID string, f Frame) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	if h.metrics != nil {
		h.metrics.RecordFramePublished(ctx)
	}
	for ch := range h.subs[jobID] {
		select {
		case ch <- f:
		default:
			if h.metrics != nil {
				h.metrics.RecordFrameDropped(ctx)
			}
		}
	}
	return nil
}

// Subscribe registers a buffered channel for the job's frames.
func (h *Hub) Subscribe(jobID string) (<-chan Frame, func()) {
	ch := make(chan Frame, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	set := h.subs[jobID]
	if set == nil {
		set = make(map[chan Frame]struct{})
		h.subs[jobID] = set
	}
	set[ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[jobID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subs, jobID)
				}
			}
			if !h.closed {
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Close closes every subscriber channel and rejects further publishes.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, set := range h.subs {
		for ch := range set {
			close(ch)
		}
	}
	h.subs = make(map[string]map[chan Frame]struct{})
}

var _ Broadcaster = (*Hub)(nil)
