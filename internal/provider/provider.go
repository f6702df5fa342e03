// Package provider defines the uniform publish capability implemented by
// each external social network and the registry the orchestrator dispatches
// through.
//
// Adapters never return Go errors for ordinary remote failures: HTTP errors,
// validation rejections, and missing credentials all map to an Outcome with
// OK=false and a descriptive error string. The fan-out layer treats every
// adapter identically and only consumes this contract.
package provider

import (
	"context"
	"sort"
	"sync"

	"socialpub/internal/job"
)

// Publisher is the uniform capability exposed per external network.
type Publisher interface {
	// Name returns the provider identifier (e.g. "facebook").
	Name() string

	// Publish attempts to publish the content with the owner's stored
	// credential. It must respect ctx and return a failure outcome rather
	// than blocking past the caller's deadline.
	Publish(ctx context.Context, ownerID string, content job.Content) job.Outcome
}

// Registry maps provider identifiers to their adapters.
type Registry struct {
	mu         sync.RWMutex
	publishers map[string]Publisher
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{publishers: make(map[string]Publisher)}
}

// Register adds an adapter under its own name. Later registrations replace
// earlier ones.
func (r *Registry) Register(p Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishers[p.Name()] = p
}

// Get returns the adapter for a provider identifier.
func (r *Registry) Get(name string) (Publisher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.publishers[name]
	return p, ok
}

// Names returns all registered provider identifiers, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.publishers))
	for name := range r.publishers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Failure builds an OK=false outcome with a descriptive error.
func Failure(provider, errMsg string, details map[string]any) job.Outcome {
	return job.Outcome{Provider: provider, OK: false, Error: errMsg, Details: details}
}

// Success builds an OK=true outcome with a posted-item count.
func Success(provider string, posted int, details map[string]any) job.Outcome {
	return job.Outcome{Provider: provider, OK: true, Posted: &posted, Details: details}
}
