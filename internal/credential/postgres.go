package credential

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"socialpub/internal/apperrors"
)

// PostgresStore reads provider credentials from the social_credentials table
// maintained by the gateway's OAuth flows.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS social_credentials (
	owner_id     text NOT NULL,
	provider     text NOT NULL,
	access_token text NOT NULL,
	account_id   text NOT NULL DEFAULT '',
	extra        jsonb NOT NULL DEFAULT '{}'::jsonb,
	updated_at   timestamptz NOT NULL DEFAULT NOW(),
	PRIMARY KEY (owner_id, provider)
);
`

// EnsureSchema creates the social_credentials table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return apperrors.Internal("credential.ensureSchema", err)
	}
	return nil
}

// Get returns the stored token or ErrNotConnected.
func (s *PostgresStore) Get(ctx context.Context, ownerID, provider string) (*Token, error) {
	var (
		tok   Token
		extra []byte
	)
	row := s.pool.QueryRow(ctx, `
		SELECT access_token, account_id, extra
		  FROM social_credentials
		 WHERE owner_id = $1 AND provider = $2
	`, ownerID, provider)
	err := row.Scan(&tok.AccessToken, &tok.AccountID, &extra)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, apperrors.Internal("credential.get", err)
	}
	if err := json.Unmarshal(extra, &tok.Extra); err != nil {
		return nil, apperrors.Internal("credential.get", err)
	}
	return &tok, nil
}

var _ Store = (*PostgresStore)(nil)
