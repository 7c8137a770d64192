package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists ledger entries in processed_webhooks. The primary key
// on message_id is what makes concurrent deliveries converge.
type PostgresStore struct {
	pool rowQuerier
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("ledger: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

func newPostgresStoreWithExec(exec rowQuerier) *PostgresStore {
	if exec == nil {
		panic("ledger: exec required")
	}
	return &PostgresStore{pool: exec}
}

// Lookup returns the cached outcome for messageID or ErrNotFound.
func (s *PostgresStore) Lookup(ctx context.Context, messageID string) (*Entry, error) {
	query := `SELECT message_id, result, processed_at FROM processed_webhooks WHERE message_id = $1`
	var entry Entry
	if err := s.pool.QueryRow(ctx, query, messageID).Scan(&entry.MessageID, &entry.Result, &entry.ProcessedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ledger: lookup: %w", err)
	}
	return &entry, nil
}

// Record stores result for messageID, returning ErrConflict if it already exists.
func (s *PostgresStore) Record(ctx context.Context, messageID string, result []byte) error {
	query := `
		INSERT INTO processed_webhooks (message_id, result)
		VALUES ($1, $2)
		ON CONFLICT (message_id) DO NOTHING
	`
	ct, err := s.pool.Exec(ctx, query, messageID, result)
	if err != nil {
		return fmt.Errorf("ledger: record: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}
