package audit

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goldencobra/internal/spending"
	"goldencobra/internal/store/memstore"
)

func seed(t *testing.T, store *memstore.Store, spends map[string][]int64) {
	t.Helper()
	ctx := context.Background()
	for identity, amounts := range spends {
		_, err := store.GetOrCreateUser(ctx, identity, "")
		require.NoError(t, err)
		for _, a := range amounts {
			_, err := store.RecordSpend(ctx, identity, decimal.NewFromInt(a), time.Now())
			require.NoError(t, err)
		}
	}
}

func TestRunConsistentStore(t *testing.T) {
	store := memstore.New()
	seed(t, store, map[string][]int64{
		"1": {100, 200, 300},
		"2": {50},
		"3": {1000, 1},
	})
	_, err := store.GetOrCreateUser(context.Background(), "idle", "")
	require.NoError(t, err)

	a := New(store, WithBatchSize(2))
	a.RegisterDefaults()
	report, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Passed)
	assert.Empty(t, report.Violations)
	assert.Equal(t, 0.0, report.Observations["ledger_drift"])
	assert.Equal(t, 0.0, report.Observations["negative_balances"])
	require.NotNil(t, report.Replay)
	assert.Equal(t, 6, report.Replay.Transactions)
	assert.Equal(t, 4, report.Replay.Users)
	assert.True(t, decimal.NewFromInt(1651).Equal(report.Replay.Total))

	var out bytes.Buffer
	PrintReport(&out, report)
	assert.Contains(t, out.String(), "Ledger consistent")
	assert.Contains(t, out.String(), "Transactions replayed: 6")
}

func TestRunEmptyStore(t *testing.T) {
	a := New(memstore.New())
	a.RegisterDefaults()

	report, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Passed)
	assert.Zero(t, report.Replay.Transactions)
}

// driftingSource reports a balance that disagrees with its log.
type driftingSource struct {
	txs      []*spending.Transaction
	balances map[int64]decimal.Decimal
}

func (s *driftingSource) LedgerDrift(context.Context) (int, error)      { return 1, nil }
func (s *driftingSource) NegativeBalances(context.Context) (int, error) { return 0, nil }

func (s *driftingSource) StreamTransactions(_ context.Context, fromID int64, batchSize int) ([]*spending.Transaction, error) {
	out := []*spending.Transaction{}
	for _, tx := range s.txs {
		if tx.ID > fromID && len(out) < batchSize {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *driftingSource) Balances(context.Context) (map[int64]decimal.Decimal, error) {
	return s.balances, nil
}

func TestRunDetectsDrift(t *testing.T) {
	src := &driftingSource{
		txs: []*spending.Transaction{
			{ID: 1, UserID: 1, Amount: decimal.NewFromInt(100)},
			{ID: 2, UserID: 1, Amount: decimal.NewFromInt(50)},
			{ID: 3, UserID: 2, Amount: decimal.NewFromInt(10)},
		},
		balances: map[int64]decimal.Decimal{
			1: decimal.NewFromInt(100),
			2: decimal.NewFromInt(10),
		},
	}

	a := New(src, WithBatchSize(1))
	a.RegisterDefaults()
	report, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Passed)
	require.Len(t, report.Replay.Mismatches, 1)
	m := report.Replay.Mismatches[0]
	assert.Equal(t, int64(1), m.UserID)
	assert.True(t, decimal.NewFromInt(100).Equal(m.Recorded))
	assert.True(t, decimal.NewFromInt(150).Equal(m.Replayed))

	names := make([]string, 0, len(report.Violations))
	for _, v := range report.Violations {
		names = append(names, v.Check)
	}
	assert.ElementsMatch(t, []string{"ledger_drift", "replay_mismatches"}, names)

	var out bytes.Buffer
	PrintReport(&out, report)
	assert.Contains(t, out.String(), "Ledger inconsistent")
	assert.Contains(t, out.String(), "user 1: recorded 100, log sums to 150")
}

func TestReplayFlagsOrphanTransactions(t *testing.T) {
	src := &driftingSource{
		txs:      []*spending.Transaction{{ID: 1, UserID: 9, Amount: decimal.NewFromInt(5)}},
		balances: map[int64]decimal.Decimal{},
	}

	result, err := New(src).Replay(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Mismatches, 1)
	assert.Equal(t, int64(9), result.Mismatches[0].UserID)
}

func TestRunStoreUnavailable(t *testing.T) {
	store := memstore.New()
	require.NoError(t, store.Close())

	a := New(store)
	a.RegisterDefaults()
	_, err := a.Run(context.Background())
	assert.ErrorIs(t, err, spending.ErrStoreUnavailable)
}

func TestCheckQueryError(t *testing.T) {
	a := New(memstore.New())
	a.Register(Check{
		Name:      "flaky",
		Query:     func(context.Context) (float64, error) { return 0, errors.New("boom") },
		Threshold: Threshold{Operator: "==", Value: 0},
	})

	report, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Passed)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, "boom", report.Violations[0].Error)
}

func TestEvaluateThreshold(t *testing.T) {
	tests := []struct {
		value float64
		th    Threshold
		want  bool
	}{
		{0, Threshold{"==", 0}, true},
		{1, Threshold{"==", 0}, false},
		{5, Threshold{">", 4}, true},
		{4, Threshold{">=", 4}, true},
		{3, Threshold{"<", 4}, true},
		{4, Threshold{"<=", 3}, false},
		{4, Threshold{"!=", 3}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, evaluateThreshold(tt.value, tt.th), "%v %s %v", tt.value, tt.th.Operator, tt.th.Value)
	}
}
