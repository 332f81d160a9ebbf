// Package store holds the shared key-value state behind the paywall: the
// replay guard's one-time reference claims and the per-payer budget ledger.
// Correctness relies on per-key atomicity inside each implementation; no
// operation spans more than one key.
package store

import (
	"context"
	"time"
)

// Store is implemented by the Postgres-backed store and the in-memory
// development fallback, selected at startup.
type Store interface {
	// ClaimReference atomically records a payment reference as used.
	// Returns true only for the first claim; concurrent claims for the
	// same reference have exactly one winner. The TTL bounds storage
	// growth — an expired reference never regains legitimate use, the
	// invoice is single-use by construction.
	ClaimReference(ctx context.Context, reference string, ttl time.Duration) (bool, error)

	// Budget returns the payer's balance in smallest token units, 0 for
	// unknown payers.
	Budget(ctx context.Context, payer string) (int64, error)

	// TryDebit atomically decrements the payer's balance if it covers
	// amount. Returns false, with the balance unchanged, when it does not;
	// the caller falls back to the on-chain path.
	TryDebit(ctx context.Context, payer string, amount int64) (bool, error)

	// Credit adds a verified deposit to the payer's balance, creating the
	// account on first deposit, and returns the new balance.
	Credit(ctx context.Context, payer string, amount int64) (int64, error)

	Close()
}
