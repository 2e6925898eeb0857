package persist

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

const createUpdatesTable = `CREATE TABLE IF NOT EXISTS doc_updates (
	seq        BIGSERIAL PRIMARY KEY,
	id         UUID NOT NULL UNIQUE,
	doc_id     TEXT NOT NULL,
	peer_id    TEXT NOT NULL,
	payload    BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const createUpdatesIndex = `CREATE INDEX IF NOT EXISTS doc_updates_doc_seq ON doc_updates (doc_id, seq)`

// Postgres is an UpdateLog backed by the doc_updates table.
type Postgres struct {
	db   *sql.DB
	pool *pgxpool.Pool
}

// OpenPostgres connects a pgx pool to url and exposes it through
// database/sql.
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return &Postgres{db: stdlib.OpenDBFromPool(pool), pool: pool}, nil
}

// NewPostgres wraps an existing database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the updates table if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range []string{createUpdatesTable, createUpdatesIndex} {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate doc_updates: %w", err)
		}
	}
	return nil
}

// Append implements UpdateLog.
func (p *Postgres) Append(ctx context.Context, docID, peerID string, update []byte) error {
	if docID == "" {
		return ErrEmptyDocID
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO doc_updates (id, doc_id, peer_id, payload) VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), docID, peerID, update)
	if err != nil {
		return fmt.Errorf("failed to append update for %s: %w", docID, err)
	}
	return nil
}

// Load implements UpdateLog.
func (p *Postgres) Load(ctx context.Context, docID string) ([][]byte, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT payload FROM doc_updates WHERE doc_id = $1 ORDER BY seq`, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to load updates for %s: %w", docID, err)
	}
	defer rows.Close()

	var updates [][]byte
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan update for %s: %w", docID, err)
		}
		updates = append(updates, payload)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load updates for %s: %w", docID, err)
	}
	return updates, nil
}

// Ping checks the database connection.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close implements UpdateLog.
func (p *Postgres) Close() error {
	err := p.db.Close()
	if p.pool != nil {
		p.pool.Close()
	}
	return err
}
