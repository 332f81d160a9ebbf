package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is the process-local fallback used when no database is
// configured. Non-durable; fine for development, not for production
// correctness guarantees.
type MemoryStore struct {
	mu      sync.Mutex
	refs    map[string]time.Time
	budgets map[string]int64
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		refs:    make(map[string]time.Time),
		budgets: make(map[string]int64),
		now:     time.Now,
	}
}

func (s *MemoryStore) Close() {}

func (s *MemoryStore) ClaimReference(_ context.Context, reference string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if expiry, ok := s.refs[reference]; ok && expiry.After(now) {
		return false, nil
	}
	s.refs[reference] = now.Add(ttl)
	s.sweepLocked(now)
	return true, nil
}

func (s *MemoryStore) Budget(_ context.Context, payer string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.budgets[payer], nil
}

func (s *MemoryStore) TryDebit(_ context.Context, payer string, amount int64) (bool, error) {
	if amount < 0 {
		return false, fmt.Errorf("debit amount must be non-negative, got %d", amount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.budgets[payer] < amount {
		return false, nil
	}
	s.budgets[payer] -= amount
	return true, nil
}

func (s *MemoryStore) Credit(_ context.Context, payer string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("credit amount must be non-negative, got %d", amount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budgets[payer] += amount
	return s.budgets[payer], nil
}

// sweepLocked drops expired references opportunistically so the map stays
// bounded without a background goroutine.
func (s *MemoryStore) sweepLocked(now time.Time) {
	for ref, expiry := range s.refs {
		if !expiry.After(now) {
			delete(s.refs, ref)
		}
	}
}
