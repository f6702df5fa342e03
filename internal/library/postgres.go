package library

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"socialpub/internal/apperrors"
)

// PostgresRecorder persists published items into the social_library table.
type PostgresRecorder struct {
	pool *pgxpool.Pool
}

// NewPostgresRecorder creates a recorder backed by the given pool.
func NewPostgresRecorder(pool *pgxpool.Pool) *PostgresRecorder {
	return &PostgresRecorder{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS social_library (
	id           text PRIMARY KEY,
	owner_id     text NOT NULL,
	provider     text NOT NULL,
	remote_id    text NOT NULL DEFAULT '',
	caption      text NOT NULL,
	media        jsonb NOT NULL DEFAULT '[]'::jsonb,
	published_at timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS social_library_owner_idx ON social_library (owner_id, published_at DESC);
`

// EnsureSchema creates the social_library table if it does not exist.
func (r *PostgresRecorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return apperrors.Internal("library.ensureSchema", err)
	}
	return nil
}

// RecordPublished inserts the item. Re-recording the same provider/remote
// pair is an upsert so adapter retries never duplicate rows.
func (r *PostgresRecorder) RecordPublished(ctx context.Context, item Item) error {
	if item.PublishedAt.IsZero() {
		item.PublishedAt = time.Now().UTC()
	}
	media, err := json.Marshal(item.Media)
	if err != nil {
		return apperrors.Internal("library.recordPublished", err)
	}
	id := fmt.Sprintf("%s:%s:%s", item.OwnerID, item.Provider, item.RemoteID)
	_, err = r.pool.Exec(ctx, `
		INSERT INTO social_library (id, owner_id, provider, remote_id, caption, media, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
		  caption = EXCLUDED.caption,
		  media = EXCLUDED.media,
		  published_at = EXCLUDED.published_at
	`, id, item.OwnerID, item.Provider, item.RemoteID, item.Caption, media, item.PublishedAt)
	if err != nil {
		return apperrors.Internal("library.recordPublished", err)
	}
	return nil
}

var _ Recorder = (*PostgresRecorder)(nil)
