package job

import (
	"context"
	"slices"
	"sync"
	"time"

	"socialpub/internal/apperrors"
)

// MemoryStore is an in-memory Store for single-node dev runs and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

// Create persists a new job.
func (s *MemoryStore) Create(ctx context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[j.ID]; exists {
		return apperrors.Conflict("job", j.ID, "job already exists")
	}
	s.jobs[j.ID] = j.Clone()
	return nil
}

// Get returns an owner-scoped copy of the job.
func (s *MemoryStore) Get(ctx context.Context, id, ownerID string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.NotFound("job", id)
	}
	if j.OwnerID != ownerID {
		return nil, apperrors.Forbidden("job", "job belongs to another user")
	}
	return j.Clone(), nil
}

// RecordOutcome writes one provider's outcome slot. Last write wins.
func (s *MemoryStore) RecordOutcome(ctx context.Context, id, provider string, out Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return apperrors.NotFound("job", id)
	}
	if !slices.Contains(j.Providers, provider) {
		return apperrors.Validation("provider", "provider was not requested for this job")
	}
	out.Provider = provider
	j.Outcomes[provider] = out
	return nil
}

// MarkTerminal transitions the job to a terminal status.
func (s *MemoryStore) MarkTerminal(ctx context.Context, id, status string) error {
	if !IsTerminal(status) {
		return apperrors.Validation("status", "status is not terminal")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return apperrors.NotFound("job", id)
	}
	j.Status = status
	now := time.Now().UTC()
	j.CompletedAt = &now
	return nil
}

// MarkRunning transitions the job to the running status.
func (s *MemoryStore) MarkRunning(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return apperrors.NotFound("job", id)
	}
	j.Status = StatusRunning
	return nil
}

// Ready always succeeds for the in-memory store.
func (s *MemoryStore) Ready(ctx context.Context) error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
