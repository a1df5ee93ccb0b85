package claimstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/saifguard/saifguard/internal/model"
	"github.com/saifguard/saifguard/internal/taxonomy"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using a pgx connection pool, for
// multi-instance deployments where sessions must survive any one process.
type PostgresStore struct {
	pool Pool
	tax  *taxonomy.Taxonomy
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, tax *taxonomy.Taxonomy) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}

	return &PostgresStore{pool: pool, tax: tax}, nil
}

// NewPostgresFromPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresFromPool(pool Pool, tax *taxonomy.Taxonomy) *PostgresStore {
	return &PostgresStore{pool: pool, tax: tax}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS claims (
	seq          BIGSERIAL PRIMARY KEY,
	id           TEXT NOT NULL,
	session_id   TEXT NOT NULL,
	control_id   TEXT NOT NULL,
	source       TEXT NOT NULL,
	status       TEXT NOT NULL,
	evidence     TEXT,
	confidence   DOUBLE PRECISION NOT NULL,
	extracted_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_claims_session ON claims(session_id);
CREATE INDEX IF NOT EXISTS idx_claims_session_control ON claims(session_id, control_id, source, seq DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, sessionID string, claims []model.Claim) error {
	if len(claims) == 0 {
		return nil
	}
	if err := validateBatch(s.tax, claims); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin append")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, c := range claims {
		_, err := tx.Exec(ctx,
			`INSERT INTO claims (id, session_id, control_id, source, status, evidence, confidence, extracted_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			c.ID, sessionID, c.ControlID, string(c.Source), string(c.Status), c.Evidence, c.Confidence, c.ExtractedAt.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert claim %s", c.ID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit append")
}

func (s *PostgresStore) Current(ctx context.Context, sessionID string, source model.Source) ([]model.Claim, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (control_id, source)
			id, control_id, source, status, evidence, confidence, extracted_at
		 FROM claims
		 WHERE session_id = $1 AND ($2 = '' OR source = $2)
		 ORDER BY control_id, source, seq DESC`,
		sessionID, string(source),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query current claims")
	}
	defer rows.Close()

	return scanPgxClaims(rows)
}

func (s *PostgresStore) History(ctx context.Context, sessionID string) ([]model.Claim, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, control_id, source, status, evidence, confidence, extracted_at
		 FROM claims WHERE session_id = $1 ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query claim history")
	}
	defer rows.Close()

	return scanPgxClaims(rows)
}

func (s *PostgresStore) Purge(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM claims WHERE session_id = $1`, sessionID)
	return eris.Wrapf(err, "postgres: purge session %s", sessionID)
}

func scanPgxClaims(rows pgx.Rows) ([]model.Claim, error) {
	var claims []model.Claim
	for rows.Next() {
		var c model.Claim
		var evidence *string
		var extractedAt time.Time
		if err := rows.Scan(&c.ID, &c.ControlID, &c.Source, &c.Status, &evidence, &c.Confidence, &extractedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan claim")
		}
		if evidence != nil {
			c.Evidence = *evidence
		}
		c.ExtractedAt = extractedAt.UTC()
		claims = append(claims, c)
	}
	return claims, eris.Wrap(rows.Err(), "postgres: iterate claims")
}
