// internal/ranks/ranks.go

// Package ranks maps a user's cumulative spend onto the fixed rank ladder.
package ranks

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyTable        = errors.New("rank table is empty")
	ErrFirstThreshold    = errors.New("lowest rank threshold must be zero")
	ErrThresholdOrdering = errors.New("rank thresholds must be strictly increasing")
)

// Rank is a named tier unlocked once cumulative spend reaches Threshold.
type Rank struct {
	Ordinal   int             `json:"ordinal"`
	Name      string          `json:"name"`
	Icon      string          `json:"icon,omitempty"`
	Color     string          `json:"color,omitempty"`
	Threshold decimal.Decimal `json:"threshold"`
}

// Title is the name followed by the icon, as shown to users.
func (r Rank) Title() string {
	if r.Icon == "" {
		return r.Name
	}
	return r.Name + " " + r.Icon
}

// Table is an immutable rank ladder ordered by ascending threshold.
type Table struct {
	ranks []Rank
}

// NewTable copies ranks, sorts them by threshold and assigns ordinals from zero.
// The table is expected to satisfy Validate; Resolve does not re-check it.
func NewTable(ranks []Rank) *Table {
	sorted := make([]Rank, len(ranks))
	copy(sorted, ranks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Threshold.LessThan(sorted[j].Threshold)
	})
	for i := range sorted {
		sorted[i].Ordinal = i
	}
	return &Table{ranks: sorted}
}

// Default returns the standard six-rank ladder.
func Default() *Table {
	return NewTable([]Rank{
		{Name: "Новичок", Icon: "🐍", Color: "#808080", Threshold: decimal.Zero},
		{Name: "Показушник", Icon: "💫", Color: "#00FF00", Threshold: decimal.NewFromInt(100)},
		{Name: "Сжигатель", Icon: "🔥", Color: "#FF4500", Threshold: decimal.NewFromInt(1000)},
		{Name: "Охотник", Icon: "🎯", Color: "#1E90FF", Threshold: decimal.NewFromInt(5000)},
		{Name: "Мастер", Icon: "🏅", Color: "#FFD700", Threshold: decimal.NewFromInt(10000)},
		{Name: "Император", Icon: "👑", Color: "#FF0000", Threshold: decimal.NewFromInt(50000)},
	})
}

// Resolve returns the highest rank whose threshold is at or below spent.
// The lowest rank is returned for any value below every threshold.
func (t *Table) Resolve(spent decimal.Decimal) Rank {
	// first index whose threshold is strictly greater than spent
	i := sort.Search(len(t.ranks), func(i int) bool {
		return t.ranks[i].Threshold.GreaterThan(spent)
	})
	if i == 0 {
		return t.ranks[0]
	}
	return t.ranks[i-1]
}

// Next returns the rank directly above r, if any.
func (t *Table) Next(r Rank) (Rank, bool) {
	if r.Ordinal+1 >= len(t.ranks) {
		return Rank{}, false
	}
	return t.ranks[r.Ordinal+1], true
}

// All returns a copy of the ladder, lowest rank first.
func (t *Table) All() []Rank {
	out := make([]Rank, len(t.ranks))
	copy(out, t.ranks)
	return out
}

// Len is the number of ranks in the ladder.
func (t *Table) Len() int {
	return len(t.ranks)
}

// Validate checks the configuration invariants of a ladder given in ascending order.
func Validate(ranks []Rank) error {
	if len(ranks) == 0 {
		return ErrEmptyTable
	}
	if !ranks[0].Threshold.IsZero() {
		return ErrFirstThreshold
	}
	for i := 1; i < len(ranks); i++ {
		if !ranks[i].Threshold.GreaterThan(ranks[i-1].Threshold) {
			return fmt.Errorf("%w: %q (%s) after %q (%s)", ErrThresholdOrdering,
				ranks[i].Name, ranks[i].Threshold, ranks[i-1].Name, ranks[i-1].Threshold)
		}
	}
	return nil
}
