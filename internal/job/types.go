// Package job defines the publish job data model and the Store interface.
package job

import (
	"time"
)

// Status constants for the publish job state machine.
const (
	StatusPending             = "pending"
	StatusRunning             = "running"
	StatusCompleted           = "completed"
	StatusCompletedWithErrors = "completed_with_errors"
	StatusFailed              = "failed"
)

// IsTerminal reports whether a status allows no further transitions.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusCompletedWithErrors, StatusFailed:
		return true
	}
	return false
}

// MediaRef points at an already-uploaded media item, addressable by URL.
type MediaRef struct {
	URL         string `json:"url"`
	ContentType string `json:"contentType,omitempty"`
}

// Content is the user-authored post content shared by all providers.
type Content struct {
	Caption string     `json:"caption"`
	Media   []MediaRef `json:"media,omitempty"`
}

// Outcome is the per-provider result of attempting to publish.
// OK=false implies Error is non-empty.
type Outcome struct {
	Provider string         `json:"provider"`
	OK       bool           `json:"ok"`
	Posted   *int           `json:"posted,omitempty"`
	Error    string         `json:"error,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// Callback configures optional webhook delivery of job lifecycle events.
type Callback struct {
	URL    string   `json:"url"`
	Events []string `json:"events,omitempty"`
	Key    string   `json:"key,omitempty"` // HMAC signing key
}

// Job is the durable record of one publish request spanning one or more providers.
// Outcomes keys are always a subset of Providers; the job reaches a terminal
// status only once every requested provider has an outcome.
type Job struct {
	ID          string             `json:"id"`
	OwnerID     string             `json:"ownerId"`
	Content     Content            `json:"content"`
	Providers   []string           `json:"providers"`
	Outcomes    map[string]Outcome `json:"outcomes"`
	Status      string             `json:"status"`
	Callback    *Callback          `json:"callback,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	CompletedAt *time.Time         `json:"completedAt,omitempty"`
}

// Terminal reports whether the job has reached a terminal status.
func (j *Job) Terminal() bool {
	return IsTerminal(j.Status)
}

// Clone returns a deep copy safe for concurrent readers.
func (j *Job) Clone() *Job {
	c := *j
	c.Providers = append([]string(nil), j.Providers...)
	c.Outcomes = make(map[string]Outcome, len(j.Outcomes))
	for k, v := range j.Outcomes {
		c.Outcomes[k] = v
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// ResolveTerminal computes the terminal status once every requested provider
// has an outcome: all ok means completed, none ok means failed, a mix means
// completed with errors. An empty provider set resolves to failed.
func ResolveTerminal(providers []string, outcomes map[string]Outcome) string {
	if len(providers) == 0 {
		return StatusFailed
	}
	succeeded, failed := 0, 0
	for _, p := range providers {
		if out, ok := outcomes[p]; ok && out.OK {
			succeeded++
		} else {
			failed++
		}
	}
	switch {
	case failed == 0:
		return StatusCompleted
	case succeeded == 0:
		return StatusFailed
	default:
		return StatusCompletedWithErrors
	}
}

// Request is the publish request body accepted by the API.
type Request struct {
	Caption   string     `json:"caption"`
	Media     []MediaRef `json:"media,omitempty"`
	Providers []string   `json:"providers"`
	Callback  *Callback  `json:"callback,omitempty"`
}

// Response is returned when a publish job is accepted.
type Response struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"` // "pending"
}
