package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goldencobra/internal/spending"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestGetOrCreateUserKeepsFirstDisplayName(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.GetOrCreateUser(ctx, "1", "alice")
	require.NoError(t, err)
	again, err := s.GetOrCreateUser(ctx, "1", "mallory")
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "alice", again.DisplayName)
	assert.True(t, again.Spent.IsZero())
}

func TestReturnedUsersAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()

	u, err := s.GetOrCreateUser(ctx, "1", "")
	require.NoError(t, err)
	u.Spent = d("999")

	fresh, err := s.GetUser(ctx, "1")
	require.NoError(t, err)
	assert.True(t, fresh.Spent.IsZero())
}

func TestRecordSpend(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.GetOrCreateUser(ctx, "1", "")
	require.NoError(t, err)
	_, err = s.GetOrCreateUser(ctx, "2", "")
	require.NoError(t, err)

	_, err = s.RecordSpend(ctx, "2", d("49800"), time.Now())
	require.NoError(t, err)
	rec, err := s.RecordSpend(ctx, "1", d("300"), time.Now())
	require.NoError(t, err)

	assert.Equal(t, int64(2), rec.Transaction.ID)
	assert.True(t, rec.BalanceBefore.IsZero())
	assert.True(t, d("300").Equal(rec.BalanceAfter))
	assert.True(t, d("49800").Equal(rec.TotalBefore))
	assert.True(t, d("50100").Equal(rec.TotalAfter))

	_, err = s.RecordSpend(ctx, "missing", d("1"), time.Now())
	assert.ErrorIs(t, err, spending.ErrNotFound)
}

func TestConcurrentSpendsSumExactly(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.GetOrCreateUser(ctx, "1", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.RecordSpend(ctx, "1", d("0.01"), time.Now())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	u, err := s.GetUser(ctx, "1")
	require.NoError(t, err)
	assert.True(t, d("1").Equal(u.Spent), u.Spent.String())

	drift, err := s.LedgerDrift(ctx)
	require.NoError(t, err)
	assert.Zero(t, drift)
}

func TestConcurrentUsersReportContiguousTotals(t *testing.T) {
	s := New()
	ctx := context.Background()

	const users = 25
	records := make([]*spending.SpendRecord, users)
	var wg sync.WaitGroup
	for i := range users {
		id := fmt.Sprintf("user-%d", i)
		_, err := s.GetOrCreateUser(ctx, id, "")
		require.NoError(t, err)

		wg.Add(1)
		go func() {
			defer wg.Done()
			record, err := s.RecordSpend(ctx, id, decimal.NewFromInt(int64(10*(i+1))), time.Now())
			assert.NoError(t, err)
			records[i] = record
		}()
	}
	wg.Wait()

	sort.Slice(records, func(i, j int) bool { return records[i].TotalBefore.LessThan(records[j].TotalBefore) })
	covered := decimal.Zero
	for _, r := range records {
		require.NotNil(t, r)
		assert.True(t, covered.Equal(r.TotalBefore), "gap before %s, covered %s", r.TotalBefore, covered)
		covered = r.TotalAfter
	}

	total, err := s.TotalSpent(ctx)
	require.NoError(t, err)
	assert.True(t, d("3250").Equal(total), total.String())
}

func TestTopUsersOrdering(t *testing.T) {
	s := New()
	ctx := context.Background()
	spends := []struct {
		id     string
		amount string
	}{
		{"a", "100"}, {"b", "500"}, {"c", "100"}, {"zero", ""},
	}
	for _, sp := range spends {
		_, err := s.GetOrCreateUser(ctx, sp.id, "")
		require.NoError(t, err)
		if sp.amount != "" {
			_, err = s.RecordSpend(ctx, sp.id, d(sp.amount), time.Now())
			require.NoError(t, err)
		}
	}

	top, err := s.TopUsers(ctx, 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(top))
	for _, u := range top {
		ids = append(ids, u.Identity)
	}
	assert.Equal(t, []string{"b", "a", "c"}, ids, "zero spend excluded, ties by creation")

	top, err = s.TopUsers(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

func TestTransactionsAndStream(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, id := range []string{"1", "2"} {
		_, err := s.GetOrCreateUser(ctx, id, "")
		require.NoError(t, err)
	}
	for i := 1; i <= 5; i++ {
		id := fmt.Sprint(i%2 + 1)
		_, err := s.RecordSpend(ctx, id, decimal.NewFromInt(int64(i)), time.Now())
		require.NoError(t, err)
	}

	txs, err := s.Transactions(ctx, "2", 10)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, int64(5), txs[0].ID, "newest first")

	page, err := s.StreamTransactions(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(1), page[0].ID)

	page, err = s.StreamTransactions(ctx, page[1].ID, 10)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, int64(3), page[0].ID)

	balances, err := s.Balances(ctx)
	require.NoError(t, err)
	assert.True(t, d("9").Equal(balances[2]))
	assert.True(t, d("6").Equal(balances[1]))

	neg, err := s.NegativeBalances(ctx)
	require.NoError(t, err)
	assert.Zero(t, neg)
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())

	_, err := s.GetOrCreateUser(context.Background(), "1", "")
	assert.ErrorIs(t, err, spending.ErrStoreUnavailable)
	assert.ErrorIs(t, s.Ping(context.Background()), spending.ErrStoreUnavailable)
}

func TestCancelledContextIsUnavailable(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.TotalSpent(ctx)
	assert.ErrorIs(t, err, spending.ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}
