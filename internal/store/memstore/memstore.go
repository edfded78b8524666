// internal/store/memstore/memstore.go

// Package memstore is an in-process spending.Store used when no database is
// configured and in tests.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"goldencobra/internal/spending"
)

var errClosed = errors.New("memstore closed")

var _ spending.Store = (*Store)(nil)

// Store keeps users and the transaction log in memory. A single mutex makes
// every operation serialisable.
type Store struct {
	mu         sync.RWMutex
	byIdentity map[string]*spending.User
	byID       map[int64]*spending.User
	ledger     []*spending.Transaction
	total      decimal.Decimal
	nextUserID int64
	closed     bool
	now        func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		byIdentity: make(map[string]*spending.User),
		byID:       make(map[int64]*spending.User),
		total:      decimal.Zero,
		now:        time.Now,
	}
}

func (s *Store) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return spending.Unavailable(op, err)
	}
	if s.closed {
		return spending.Unavailable(op, errClosed)
	}
	return nil
}

func clone(u *spending.User) *spending.User {
	c := *u
	return &c
}

// GetOrCreateUser inserts the user if absent; an existing record is returned unchanged.
func (s *Store) GetOrCreateUser(ctx context.Context, identity, displayName string) (*spending.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "get or create user"); err != nil {
		return nil, err
	}

	if u, ok := s.byIdentity[identity]; ok {
		return clone(u), nil
	}

	s.nextUserID++
	u := &spending.User{
		ID:          s.nextUserID,
		Identity:    identity,
		DisplayName: displayName,
		Spent:       decimal.Zero,
		CreatedAt:   s.now().UTC(),
	}
	s.byIdentity[identity] = u
	s.byID[u.ID] = u
	return clone(u), nil
}

func (s *Store) GetUser(ctx context.Context, identity string) (*spending.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "get user"); err != nil {
		return nil, err
	}

	u, ok := s.byIdentity[identity]
	if !ok {
		return nil, spending.ErrNotFound
	}
	return clone(u), nil
}

// RecordSpend appends the transaction and bumps the balance under the write lock.
func (s *Store) RecordSpend(ctx context.Context, identity string, amount decimal.Decimal, at time.Time) (*spending.SpendRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "record spend"); err != nil {
		return nil, err
	}

	u, ok := s.byIdentity[identity]
	if !ok {
		return nil, spending.ErrNotFound
	}

	tx := &spending.Transaction{
		ID:        int64(len(s.ledger) + 1),
		UserID:    u.ID,
		Amount:    amount,
		CreatedAt: at,
	}
	record := &spending.SpendRecord{
		Transaction:   *tx,
		BalanceBefore: u.Spent,
		BalanceAfter:  u.Spent.Add(amount),
		TotalBefore:   s.total,
		TotalAfter:    s.total.Add(amount),
	}

	s.ledger = append(s.ledger, tx)
	u.Spent = record.BalanceAfter
	s.total = record.TotalAfter
	return record, nil
}

// TopUsers orders by spend descending, then by creation order.
func (s *Store) TopUsers(ctx context.Context, limit int) ([]*spending.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "top users"); err != nil {
		return nil, err
	}

	users := make([]*spending.User, 0, len(s.byID))
	for _, u := range s.byID {
		if u.Spent.IsPositive() {
			users = append(users, clone(u))
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if c := users[i].Spent.Cmp(users[j].Spent); c != 0 {
			return c > 0
		}
		return users[i].ID < users[j].ID
	})
	if len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (s *Store) TotalSpent(ctx context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "total spent"); err != nil {
		return decimal.Zero, err
	}
	return s.total, nil
}

// Transactions returns up to limit of the user's transactions, newest first.
func (s *Store) Transactions(ctx context.Context, identity string, limit int) ([]*spending.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "transactions"); err != nil {
		return nil, err
	}

	u, ok := s.byIdentity[identity]
	if !ok {
		return nil, spending.ErrNotFound
	}

	out := []*spending.Transaction{}
	for i := len(s.ledger) - 1; i >= 0 && len(out) < limit; i-- {
		if s.ledger[i].UserID == u.ID {
			tx := *s.ledger[i]
			out = append(out, &tx)
		}
	}
	return out, nil
}

// StreamTransactions returns up to batchSize transactions with ID above fromID, in ID order.
func (s *Store) StreamTransactions(ctx context.Context, fromID int64, batchSize int) ([]*spending.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "stream transactions"); err != nil {
		return nil, err
	}

	out := []*spending.Transaction{}
	// IDs are dense and start at 1
	for i := int(max(fromID, 0)); i < len(s.ledger) && len(out) < batchSize; i++ {
		tx := *s.ledger[i]
		out = append(out, &tx)
	}
	return out, nil
}

// Balances returns every user's recorded cumulative spend keyed by user ID.
func (s *Store) Balances(ctx context.Context) (map[int64]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "balances"); err != nil {
		return nil, err
	}

	out := make(map[int64]decimal.Decimal, len(s.byID))
	for id, u := range s.byID {
		out[id] = u.Spent
	}
	return out, nil
}

// NegativeBalances counts users whose cumulative spend is below zero.
func (s *Store) NegativeBalances(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "negative balances"); err != nil {
		return 0, err
	}

	n := 0
	for _, u := range s.byID {
		if u.Spent.IsNegative() {
			n++
		}
	}
	return n, nil
}

// LedgerDrift counts users whose cumulative spend differs from the sum of their transactions.
func (s *Store) LedgerDrift(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "ledger drift"); err != nil {
		return 0, err
	}

	sums := make(map[int64]decimal.Decimal, len(s.byID))
	for _, tx := range s.ledger {
		sums[tx.UserID] = sums[tx.UserID].Add(tx.Amount)
	}
	n := 0
	for id, u := range s.byID {
		if !u.Spent.Equal(sums[id]) {
			n++
		}
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.check(ctx, "ping")
}

// Close makes every later call fail with spending.ErrStoreUnavailable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
