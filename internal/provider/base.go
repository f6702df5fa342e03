package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"socialpub/internal/config"
	"socialpub/internal/credential"
	"socialpub/internal/job"
	"socialpub/internal/library"
)

// base carries the plumbing every adapter shares: credential lookup, the
// rate-limited HTTP client, and the library write on success.
type base struct {
	name   string
	creds  credential.Store
	lib    library.Recorder
	client *client
	logger *slog.Logger
}

func newBase(name string, creds credential.Store, lib library.Recorder, defaults clientConfig) base {
	cfg := limitsFromEnv(name, defaults)
	return base{
		name:   name,
		creds:  creds,
		lib:    lib,
		client: newClient(cfg),
		logger: slog.With("component", "provider", "provider", name),
	}
}

// limitsFromEnv overrides per-provider rate limits, e.g.
// PROVIDER_INSTAGRAM_RPS=0.5 PROVIDER_INSTAGRAM_BURST=2.
func limitsFromEnv(name string, def clientConfig) clientConfig {
	prefix := "PROVIDER_" + upper(name) + "_"
	def.RequestsPerSecond = config.GetFloatEnv(prefix+"RPS", def.RequestsPerSecond)
	def.Burst = config.GetIntEnv(prefix+"BURST", def.Burst)
	def.Timeout = config.GetDurationEnv(prefix+"HTTP_TIMEOUT", def.Timeout)
	return def
}

func upper(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
			out = append(out, c-32)
		case c == '-':
			out = append(out, '_')
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

// Name returns the provider identifier.
func (b *base) Name() string {
	return b.name
}

// token resolves the owner's credential. The second return is non-nil when
// the publish should short-circuit with that failure outcome.
func (b *base) token(ctx context.Context, ownerID string) (*credential.Token, *job.Outcome) {
	tok, err := b.creds.Get(ctx, ownerID, b.name)
	if err != nil {
		if errors.Is(err, credential.ErrNotConnected) {
			out := Failure(b.name, "not_connected", nil)
			return nil, &out
		}
		out := Failure(b.name, "credential_lookup_failed", map[string]any{"error": err.Error()})
		return nil, &out
	}
	return tok, nil
}

// record writes the published item into the owner's library. Best-effort:
// a library failure never fails the publish that already succeeded remotely.
func (b *base) record(ctx context.Context, ownerID, remoteID string, content job.Content) {
	err := b.lib.RecordPublished(ctx, library.Item{
		OwnerID:     ownerID,
		Provider:    b.name,
		RemoteID:    remoteID,
		Caption:     content.Caption,
		Media:       content.Media,
		PublishedAt: time.Now().UTC(),
	})
	if err != nil {
		b.logger.Warn("Library record failed", "ownerId", ownerID, "remoteId", remoteID, "error", err)
	}
}

// NewDefaultRegistry registers the full adapter set against the given
// collaborators.
func NewDefaultRegistry(creds credential.Store, lib library.Recorder) *Registry {
	r := NewRegistry()
	r.Register(NewFacebook(creds, lib))
	r.Register(NewInstagram(creds, lib))
	r.Register(NewTikTok(creds, lib))
	r.Register(NewYouTube(creds, lib))
	r.Register(NewPinterest(creds, lib))
	r.Register(NewThreads())
	return r
}
