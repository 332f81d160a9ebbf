package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the durable Store. Each operation is a single statement so
// the database's per-row atomicity is the only concurrency primitive needed.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresStore{db: pool}, nil
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

// ClaimReference wins only when the reference is absent or its previous
// record has expired. ON CONFLICT ... WHERE makes the check-and-set a single
// atomic statement.
func (s *PostgresStore) ClaimReference(ctx context.Context, reference string, ttl time.Duration) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO payment_references (reference, expires_at)
		 VALUES ($1, now() + $2::bigint * interval '1 second')
		 ON CONFLICT (reference) DO UPDATE
		   SET expires_at = EXCLUDED.expires_at
		 WHERE payment_references.expires_at < now()`,
		reference, int64(ttl.Seconds()))
	if err != nil {
		return false, fmt.Errorf("reference claim failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) Budget(ctx context.Context, payer string) (int64, error) {
	var balance int64
	err := s.db.QueryRow(ctx,
		"SELECT balance FROM budgets WHERE payer = $1", payer).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("budget query failed: %w", err)
	}
	return balance, nil
}

func (s *PostgresStore) TryDebit(ctx context.Context, payer string, amount int64) (bool, error) {
	if amount < 0 {
		return false, fmt.Errorf("debit amount must be non-negative, got %d", amount)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE budgets SET balance = balance - $2, updated_at = now()
		 WHERE payer = $1 AND balance >= $2`,
		payer, amount)
	if err != nil {
		return false, fmt.Errorf("budget debit failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) Credit(ctx context.Context, payer string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("credit amount must be non-negative, got %d", amount)
	}
	var balance int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO budgets (payer, balance) VALUES ($1, $2)
		 ON CONFLICT (payer) DO UPDATE
		   SET balance = budgets.balance + EXCLUDED.balance, updated_at = now()
		 RETURNING balance`,
		payer, amount).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("budget credit failed: %w", err)
	}
	return balance, nil
}
