package provider

import (
	"context"

	"socialpub/internal/job"
)

// Threads is a placeholder adapter. Accounts can be connected but
// publishing is not wired up yet.
type Threads struct{}

// NewThreads creates the Threads adapter.
func NewThreads() *Threads {
	return &Threads{}
}

func (t *Threads) Name() string {
	return "threads"
}

// Publish always reports not_supported_yet.
func (t *Threads) Publish(ctx context.Context, ownerID string, content job.Content) job.Outcome {
	return Failure(t.Name(), "not_supported_yet", nil)
}
