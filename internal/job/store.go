package job

import "context"

// Store is the durable record of publish job lifecycles.
//
// The Store is the source of truth for job state: the broadcaster is
// best-effort, and a client that misses streamed events recovers by
// re-reading the job. Implementations must allow RecordOutcome calls for
// different providers on the same job to arrive concurrently without losing
// updates (each provider owns its own map slot).
type Store interface {
	// Create persists a new job. Returns a conflict error if the ID exists.
	Create(ctx context.Context, j *Job) error

	// Get returns the job by ID, scoped to its owner. Returns a not found
	// error for unknown IDs and a forbidden error on owner mismatch.
	Get(ctx context.Context, id, ownerID string) (*Job, error)

	// MarkRunning transitions the job to the running status.
	MarkRunning(ctx context.Context, id string) error

	// RecordOutcome writes one provider's outcome. Idempotent: recording the
	// same provider twice overwrites. The provider must be one of the job's
	// requested providers.
	RecordOutcome(ctx context.Context, id, provider string, out Outcome) error

	// MarkTerminal transitions the job to a terminal status and stamps
	// completedAt.
	MarkTerminal(ctx context.Context, id, status string) error

	// Ready checks whether the backing store is reachable.
	Ready(ctx context.Context) error
}
