package goals

import (
	"slices"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func targets(gs []Goal) []string {
	out := make([]string, len(gs))
	for i, g := range gs {
		out[i] = g.Target.String()
	}
	return out
}

func TestCrossedBy(t *testing.T) {
	tracker := NewTracker([]Goal{
		{Target: d("50000"), Reward: "b"},
		{Target: d("10000"), Reward: "a"},
		{Target: d("100000"), Reward: "c"},
	})

	tests := []struct {
		name          string
		before, after string
		want          []string
	}{
		{"community scenario", "49800", "50100", []string{"50000"}},
		{"lands exactly on target", "49999", "50000", []string{"50000"}},
		{"starts exactly on target", "50000", "50100", []string{}},
		{"below every goal", "0", "9999.99", []string{}},
		{"jumps several goals", "9000", "150000", []string{"10000", "50000", "100000"}},
		{"past every goal", "200000", "300000", []string{}},
		{"no movement", "50000", "50000", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := slices.Collect(tracker.CrossedBy(d(tt.before), d(tt.after)))
			assert.Equal(t, tt.want, targets(got))
		})
	}
}

func TestCrossedByStopsEarly(t *testing.T) {
	tracker := Default()

	var seen []Goal
	for g := range tracker.CrossedBy(decimal.Zero, d("2000000")) {
		seen = append(seen, g)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"10000", "50000"}, targets(seen))
}

// Every goal is reported by exactly one step of any increasing sequence of totals
// that ends at or past its target.
func TestEachGoalCrossedOnce(t *testing.T) {
	tracker := Default()

	rapid.Check(t, func(t *rapid.T) {
		steps := rapid.SliceOfN(rapid.Int64Range(1, 100_000_00), 1, 200).Draw(t, "steps")

		counts := map[string]int{}
		total := decimal.Zero
		for _, cents := range steps {
			next := total.Add(decimal.New(cents, -2))
			for g := range tracker.CrossedBy(total, next) {
				if !(total.LessThan(g.Target) && g.Target.LessThanOrEqual(next)) {
					t.Fatalf("goal %s reported for step %s -> %s", g.Target, total, next)
				}
				counts[g.Target.String()]++
			}
			total = next
		}

		for _, g := range tracker.All() {
			want := 0
			if g.Reached(total) {
				want = 1
			}
			if counts[g.Target.String()] != want {
				t.Fatalf("goal %s reported %d times, want %d (final total %s)", g.Target, counts[g.Target.String()], want, total)
			}
		}
	})
}

func TestProgress(t *testing.T) {
	tracker := Default()

	reached, next, ok := tracker.Progress(d("49800"))
	require.True(t, ok)
	assert.Equal(t, 1, reached)
	assert.True(t, next.Target.Equal(d("50000")))

	reached, _, ok = tracker.Progress(d("5000000"))
	assert.False(t, ok)
	assert.Equal(t, len(tracker.All()), reached)
}
