package paramstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"
)

// DefaultTable is the table the PostgreSQL store uses.
const DefaultTable = "hyperparameter_cache"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PostgresStore keeps one row per family with the params as JSONB. The
// snapshot timestamp is the latest updated_at.
type PostgresStore struct {
	db    *sql.DB
	table string
}

// NewPostgresStore returns a store over db. The table must be a plain
// identifier; empty means DefaultTable.
func NewPostgresStore(db *sql.DB, table string) (*PostgresStore, error) {
	if table == "" {
		table = DefaultTable
	}

	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	return &PostgresStore{db: db, table: pq.QuoteIdentifier(table)}, nil
}

// OpenPostgres connects with the lib/pq driver, pings the server and makes
// sure the table exists.
func OpenPostgres(ctx context.Context, dsn, table string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, persistenceError("cache.open", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, persistenceError("cache.open", err)
	}

	s, err := NewPostgresStore(db, table)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()

		return nil, err
	}

	return s, nil
}

// DB returns the underlying handle.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// EnsureSchema creates the table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		family TEXT PRIMARY KEY,
		params JSONB NOT NULL,
		score DOUBLE PRECISION NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`, s.table)

	_, err := s.db.ExecContext(ctx, query)

	return persistenceError("cache.schema", err)
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context) (Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT family, params, score, updated_at FROM %s`, s.table))
	if err != nil {
		return Snapshot{}, persistenceError("cache.load", err)
	}
	defer rows.Close()

	snap := Snapshot{Families: map[string]Entry{}}

	for rows.Next() {
		var (
			family    string
			params    []byte
			score     float64
			updatedAt time.Time
		)

		if err := rows.Scan(&family, &params, &score, &updatedAt); err != nil {
			return Snapshot{}, persistenceError("cache.load", err)
		}

		e := Entry{Score: score, UpdatedAt: updatedAt}
		if err := json.Unmarshal(params, &e.Params); err != nil {
			return Snapshot{}, persistenceError("cache.load", fmt.Errorf("family %q: %w", family, err))
		}

		snap.Families[family] = e

		if updatedAt.After(snap.LastUpdated) {
			snap.LastUpdated = updatedAt
		}
	}

	if err := rows.Err(); err != nil {
		return Snapshot{}, persistenceError("cache.load", err)
	}

	return snap, nil
}

// Save implements Store. The table content is replaced in one transaction.
func (s *PostgresStore) Save(ctx context.Context, snapshot Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceError("cache.save", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table)); err != nil {
		return persistenceError("cache.save", err)
	}

	insert := fmt.Sprintf(`INSERT INTO %s (family, params, score, updated_at) VALUES ($1, $2, $3, $4)`, s.table)

	for _, family := range snapshot.Names() {
		e := snapshot.Families[family]

		var params []byte

		params, err = json.Marshal(e.Params)
		if err != nil {
			return persistenceError("cache.save", fmt.Errorf("family %q: %w", family, err))
		}

		updatedAt := e.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = snapshot.LastUpdated
		}

		if _, err = tx.ExecContext(ctx, insert, family, string(params), e.Score, updatedAt); err != nil {
			return persistenceError("cache.save", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return persistenceError("cache.save", err)
	}

	return nil
}
