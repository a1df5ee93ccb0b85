package claimstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/saifguard/saifguard/internal/model"
	"github.com/saifguard/saifguard/internal/taxonomy"
)

// SQLiteStore implements Store using modernc.org/sqlite. Claims survive
// process restarts; the rowid preserves append order for most-recent-wins.
type SQLiteStore struct {
	db  *sql.DB
	tax *taxonomy.Taxonomy
}

// NewSQLite opens a SQLite database at the given DSN and configures WAL mode.
func NewSQLite(dsn string, tax *taxonomy.Taxonomy) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, tax: tax}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS claims (
	id           TEXT NOT NULL,
	session_id   TEXT NOT NULL,
	control_id   TEXT NOT NULL,
	source       TEXT NOT NULL,
	status       TEXT NOT NULL,
	evidence     TEXT,
	confidence   REAL NOT NULL,
	extracted_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_claims_session ON claims(session_id);
CREATE INDEX IF NOT EXISTS idx_claims_session_control ON claims(session_id, control_id, source);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Append(ctx context.Context, sessionID string, claims []model.Claim) error {
	if len(claims) == 0 {
		return nil
	}
	if err := validateBatch(s.tax, claims); err != nil {
		return err
	}

	// Single transaction: the batch lands whole or not at all.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, c := range claims {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO claims (id, session_id, control_id, source, status, evidence, confidence, extracted_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, sessionID, c.ControlID, string(c.Source), string(c.Status), c.Evidence, c.Confidence, c.ExtractedAt.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert claim %s", c.ID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit append")
}

func (s *SQLiteStore) Current(ctx context.Context, sessionID string, source model.Source) ([]model.Claim, error) {
	// Latest per (control, source) by rowid; rowid increases with append order.
	query := `
		SELECT c.id, c.control_id, c.source, c.status, c.evidence, c.confidence, c.extracted_at
		FROM claims c
		WHERE c.session_id = ?
		  AND (? = '' OR c.source = ?)
		  AND c.rowid = (
			SELECT MAX(c2.rowid) FROM claims c2
			WHERE c2.session_id = c.session_id
			  AND c2.control_id = c.control_id
			  AND c2.source = c.source
		  )
		ORDER BY c.control_id, c.source`

	rows, err := s.db.QueryContext(ctx, query, sessionID, string(source), string(source))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query current claims")
	}
	defer rows.Close()

	return scanClaims(rows)
}

func (s *SQLiteStore) History(ctx context.Context, sessionID string) ([]model.Claim, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, control_id, source, status, evidence, confidence, extracted_at
		 FROM claims WHERE session_id = ? ORDER BY rowid`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query claim history")
	}
	defer rows.Close()

	return scanClaims(rows)
}

func (s *SQLiteStore) Purge(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM claims WHERE session_id = ?`, sessionID)
	return eris.Wrapf(err, "sqlite: purge session %s", sessionID)
}

func scanClaims(rows *sql.Rows) ([]model.Claim, error) {
	var claims []model.Claim
	for rows.Next() {
		var c model.Claim
		var evidence sql.NullString
		var extractedAt time.Time
		if err := rows.Scan(&c.ID, &c.ControlID, &c.Source, &c.Status, &evidence, &c.Confidence, &extractedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan claim")
		}
		c.Evidence = evidence.String
		c.ExtractedAt = extractedAt.UTC()
		claims = append(claims, c)
	}
	return claims, eris.Wrap(rows.Err(), "sqlite: iterate claims")
}
