// internal/goals/goals.go

// Package goals tracks community-wide spend milestones.
package goals

import (
	"iter"
	"sort"

	"github.com/shopspring/decimal"
)

// Goal is reached when the community total first moves to or past Target.
type Goal struct {
	Target decimal.Decimal `json:"target"`
	Reward string          `json:"reward"`
}

// Tracker holds the static goal list in ascending target order.
type Tracker struct {
	goals []Goal
}

// NewTracker copies goals and orders them by target.
func NewTracker(goals []Goal) *Tracker {
	sorted := make([]Goal, len(goals))
	copy(sorted, goals)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Target.LessThan(sorted[j].Target)
	})
	return &Tracker{goals: sorted}
}

// Default returns the standard milestone list.
func Default() *Tracker {
	return NewTracker([]Goal{
		{Target: decimal.NewFromInt(10000), Reward: "🎁 Розыгрыш 3 стикерпаков среди участников"},
		{Target: decimal.NewFromInt(50000), Reward: "💎 Розыгрыш эксклюзивного NFT «Золотая кобра»"},
		{Target: decimal.NewFromInt(100000), Reward: "🎉 Подарки от Telegram для топ-10"},
		{Target: decimal.NewFromInt(500000), Reward: "👑 Коллекция NFT для всех Императоров"},
		{Target: decimal.NewFromInt(1000000), Reward: "🐍 Легендарный NFT «Кобра-миллионер» лидеру рейтинга"},
	})
}

// All returns a copy of the goal list, lowest target first.
func (t *Tracker) All() []Goal {
	out := make([]Goal, len(t.goals))
	copy(out, t.goals)
	return out
}

// CrossedBy yields, in ascending order, every goal with before < target <= after.
// With monotonically increasing totals each goal is yielded for exactly one step.
func (t *Tracker) CrossedBy(before, after decimal.Decimal) iter.Seq[Goal] {
	return func(yield func(Goal) bool) {
		// first goal strictly above before
		i := sort.Search(len(t.goals), func(i int) bool {
			return t.goals[i].Target.GreaterThan(before)
		})
		for ; i < len(t.goals); i++ {
			if t.goals[i].Target.GreaterThan(after) {
				return
			}
			if !yield(t.goals[i]) {
				return
			}
		}
	}
}

// Progress reports how many goals the total has reached and the next one ahead, if any.
func (t *Tracker) Progress(total decimal.Decimal) (reached int, next Goal, ok bool) {
	reached = sort.Search(len(t.goals), func(i int) bool {
		return t.goals[i].Target.GreaterThan(total)
	})
	if reached == len(t.goals) {
		return reached, Goal{}, false
	}
	return reached, t.goals[reached], true
}

// Reached reports whether total is at or past g's target.
func (g Goal) Reached(total decimal.Decimal) bool {
	return total.GreaterThanOrEqual(g.Target)
}
