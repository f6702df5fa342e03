package job

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"socialpub/internal/apperrors"
	"socialpub/internal/observability"
)

// Validation limits
const (
	maxCaptionLength  = 5000
	maxMedia          = 20
	maxCallbackEvents = 16
)

// Starter launches the publish fan-out for an accepted job.
// It must return immediately; the job outlives the originating request.
type Starter interface {
	Start(j *Job)
}

// Service validates publish requests, persists the job, and hands it to the
// fan-out orchestrator. All job state lives in the Store, so any instance
// can serve status reads for a job running elsewhere.
type Service struct {
	store   Store
	starter Starter
	known   map[string]struct{}
	metrics *observability.Metrics
}

// NewService creates a new publish job service. knownProviders is the set of
// provider identifiers with a registered adapter.
func NewService(store Store, starter Starter, knownProviders []string, metrics *observability.Metrics) *Service {
	known := make(map[string]struct{}, len(knownProviders))
	for _, p := range knownProviders {
		known[p] = struct{}{}
	}
	return &Service{
		store:   store,
		starter: starter,
		known:   known,
		metrics: metrics,
	}
}

// Publish validates the request, creates the job record, and starts the
// fan-out. It does not wait for any provider: the caller gets the job ID
// immediately and observes progress via the stream or by polling Get.
func (s *Service) Publish(ctx context.Context, ownerID string, req *Request) (*Response, error) {
	caption, err := s.validateCaption(req.Caption)
	if err != nil {
		return nil, err
	}
	providers, err := s.validateProviders(req.Providers)
	if err != nil {
		return nil, err
	}
	if err := s.validateMedia(req.Media); err != nil {
		return nil, err
	}
	if err := validateCallback(req.Callback); err != nil {
		return nil, err
	}

	j := &Job{
		ID:      fmt.Sprintf("pub_%s", uuid.NewString()),
		OwnerID: ownerID,
		Content: Content{
			Caption: caption,
			Media:   req.Media,
		},
		Providers: providers,
		Outcomes:  make(map[string]Outcome),
		Status:    StatusPending,
		Callback:  req.Callback,
		CreatedAt: time.Now().UTC(),
	}

	logger := slog.With("jobId", j.ID, "ownerId", ownerID, "providers", providers)

	if err := s.store.Create(ctx, j); err != nil {
		logger.Error("Job creation failed", "error", err)
		return nil, err
	}

	s.starter.Start(j)

	if s.metrics != nil {
		s.metrics.RecordJobCreated(ctx, len(providers))
	}

	logger.Info("Publish job accepted")

	return &Response{JobID: j.ID, Status: StatusPending}, nil
}

// Get returns the job snapshot, scoped to its owner.
func (s *Service) Get(ctx context.Context, jobID, ownerID string) (*Job, error) {
	return s.store.Get(ctx, jobID, ownerID)
}

// validateCaption normalizes and validates the caption. NUL bytes are
// stripped and the text is coerced to valid UTF-8 before it reaches the
// store or any provider API.
func (s *Service) validateCaption(caption string) (string, error) {
	caption = strings.TrimSpace(caption)
	caption = strings.ReplaceAll(caption, "\x00", "")
	if !utf8.ValidString(caption) {
		caption = strings.ToValidUTF8(caption, "")
	}
	if caption == "" {
		return "", apperrors.Validation("caption", "caption is required")
	}
	if len(caption) > maxCaptionLength {
		return "", apperrors.Validation("caption", fmt.Sprintf("caption exceeds maximum length of %d", maxCaptionLength))
	}
	return caption, nil
}

// validateProviders normalizes (trim, lowercase, dedupe) and validates that
// the set is non-empty and every entry has a registered adapter.
func (s *Service) validateProviders(providers []string) ([]string, error) {
	seen := make(map[string]struct{}, len(providers))
	out := make([]string, 0, len(providers))
	for _, p := range providers {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, ok := s.known[p]; !ok {
			return nil, apperrors.Validation("providers", fmt.Sprintf("unknown provider %q", p))
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, apperrors.Validation("providers", "providers must not be empty")
	}
	return out, nil
}

func (s *Service) validateMedia(media []MediaRef) error {
	if len(media) > maxMedia {
		return apperrors.Validation("media", fmt.Sprintf("media exceeds maximum of %d items", maxMedia))
	}
	for i, m := range media {
		if err := validateURL(m.URL); err != nil {
			return apperrors.Validation("media", fmt.Sprintf("media[%d]: %v", i, err))
		}
	}
	return nil
}

func validateCallback(cb *Callback) error {
	if cb == nil {
		return nil
	}
	if cb.URL != "" {
		if err := validateURL(cb.URL); err != nil {
			return apperrors.Validation("callback.url", fmt.Sprintf("invalid callback URL: %v", err))
		}
	}
	if len(cb.Events) > maxCallbackEvents {
		return apperrors.Validation("callback.events", fmt.Sprintf("callback events exceed maximum of %d", maxCallbackEvents))
	}
	return nil
}

func validateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("URL is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL")
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
