package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"socialpub/internal/apperrors"
)

// PostgresStore persists publish jobs in Postgres. Outcomes live in a jsonb
// column and are written with jsonb_set scoped to a single provider key, so
// concurrent RecordOutcome calls for different providers never clobber each
// other.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS publish_jobs (
	id           text PRIMARY KEY,
	owner_id     text NOT NULL,
	caption      text NOT NULL,
	media        jsonb NOT NULL DEFAULT '[]'::jsonb,
	providers    text[] NOT NULL,
	outcomes     jsonb NOT NULL DEFAULT '{}'::jsonb,
	status       text NOT NULL,
	callback     jsonb,
	created_at   timestamptz NOT NULL,
	completed_at timestamptz
);
CREATE INDEX IF NOT EXISTS publish_jobs_owner_idx ON publish_jobs (owner_id, created_at DESC);
`

// EnsureSchema creates the publish_jobs table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return apperrors.Internal("store.ensureSchema", err)
	}
	return nil
}

// Create persists a new job.
func (s *PostgresStore) Create(ctx context.Context, j *Job) error {
	media, err := json.Marshal(j.Content.Media)
	if err != nil {
		return apperrors.Internal("store.create", err)
	}
	var callback []byte
	if j.Callback != nil {
		if callback, err = json.Marshal(j.Callback); err != nil {
			return apperrors.Internal("store.create", err)
		}
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO publish_jobs (id, owner_id, caption, media, providers, outcomes, status, callback, created_at)
		VALUES ($1, $2, $3, $4, $5, '{}'::jsonb, $6, $7, $8)
	`, j.ID, j.OwnerID, j.Content.Caption, media, j.Providers, j.Status, callback, j.CreatedAt)
	if err != nil {
		return apperrors.Internal("store.create", err)
	}
	return nil
}

// Get returns the job by ID, scoped to its owner.
func (s *PostgresStore) Get(ctx context.Context, id, ownerID string) (*Job, error) {
	var (
		j           Job
		media       []byte
		outcomes    []byte
		callback    []byte
		completedAt *time.Time
	)
	row := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, caption, media, providers, outcomes, status, callback, created_at, completed_at
		  FROM publish_jobs
		 WHERE id = $1
	`, id)
	err := row.Scan(&j.ID, &j.OwnerID, &j.Content.Caption, &media, &j.Providers, &outcomes, &j.Status, &callback, &j.CreatedAt, &completedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("job", id)
	}
	if err != nil {
		return nil, apperrors.Internal("store.get", err)
	}
	if j.OwnerID != ownerID {
		return nil, apperrors.Forbidden("job", "job belongs to another user")
	}
	if err := json.Unmarshal(media, &j.Content.Media); err != nil {
		return nil, apperrors.Internal("store.get", err)
	}
	j.Outcomes = make(map[string]Outcome)
	if err := json.Unmarshal(outcomes, &j.Outcomes); err != nil {
		return nil, apperrors.Internal("store.get", err)
	}
	if len(callback) > 0 {
		j.Callback = &Callback{}
		if err := json.Unmarshal(callback, j.Callback); err != nil {
			return nil, apperrors.Internal("store.get", err)
		}
	}
	j.CompletedAt = completedAt
	return &j, nil
}

// MarkRunning transitions the job to the running status.
func (s *PostgresStore) MarkRunning(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE publish_jobs SET status = $2 WHERE id = $1`, id, StatusRunning)
	if err != nil {
		return apperrors.Internal("store.markRunning", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("job", id)
	}
	return nil
}

// RecordOutcome writes one provider's outcome slot. Last write wins.
func (s *PostgresStore) RecordOutcome(ctx context.Context, id, provider string, out Outcome) error {
	out.Provider = provider
	payload, err := json.Marshal(out)
	if err != nil {
		return apperrors.Internal("store.recordOutcome", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE publish_jobs
		   SET outcomes = jsonb_set(outcomes, ARRAY[$2], $3::jsonb, true)
		 WHERE id = $1
		   AND $2 = ANY(providers)
	`, id, provider, payload)
	if err != nil {
		return apperrors.Internal("store.recordOutcome", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM publish_jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
			return apperrors.Internal("store.recordOutcome", err)
		}
		if !exists {
			return apperrors.NotFound("job", id)
		}
		return apperrors.Validation("provider", "provider was not requested for this job")
	}
	return nil
}

// MarkTerminal transitions the job to a terminal status and stamps completedAt.
func (s *PostgresStore) MarkTerminal(ctx context.Context, id, status string) error {
	if !IsTerminal(status) {
		return apperrors.Validation("status", "status is not terminal")
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE publish_jobs
		   SET status = $2, completed_at = NOW()
		 WHERE id = $1
	`, id, status)
	if err != nil {
		return apperrors.Internal("store.markTerminal", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("job", id)
	}
	return nil
}

// Ready pings the database.
func (s *PostgresStore) Ready(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres unreachable: %w", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
