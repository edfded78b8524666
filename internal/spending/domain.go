// internal/spending/domain.go
package spending

import (
	"time"

	"github.com/shopspring/decimal"

	"goldencobra/internal/goals"
	"goldencobra/internal/ranks"
)

// User is a participant known by the platform's opaque identity.
type User struct {
	ID          int64           `json:"id"`
	Identity    string          `json:"identity"`
	DisplayName string          `json:"display_name,omitempty"`
	Spent       decimal.Decimal `json:"spent"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Transaction is one immutable entry of the spend log.
type Transaction struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// SpendRecord is what the store reports after atomically logging a spend.
// TotalBefore and TotalAfter bracket this spend in the community total: spends
// are ordered, so consecutive records share a boundary and no goal is skipped.
type SpendRecord struct {
	Transaction   Transaction
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	TotalBefore   decimal.Decimal
	TotalAfter    decimal.Decimal
}

// SpendResult is the outcome of ApplySpend.
type SpendResult struct {
	Transaction  Transaction     `json:"transaction"`
	OldBalance   decimal.Decimal `json:"old_balance"`
	NewBalance   decimal.Decimal `json:"new_balance"`
	OldRank      ranks.Rank      `json:"old_rank"`
	NewRank      ranks.Rank      `json:"new_rank"`
	RankUp       bool            `json:"rank_up"`
	TotalBefore  decimal.Decimal `json:"total_before"`
	TotalAfter   decimal.Decimal `json:"total_after"`
	CrossedGoals []goals.Goal    `json:"crossed_goals"`
}

// RankUpEvent is published when a spend moves a user to a higher rank.
type RankUpEvent struct {
	Identity    string          `json:"identity"`
	DisplayName string          `json:"display_name,omitempty"`
	OldRank     string          `json:"old_rank"`
	NewRank     string          `json:"new_rank"`
	Balance     decimal.Decimal `json:"balance"`
}

// GoalCrossedEvent is published when a spend moves the community total past a goal.
type GoalCrossedEvent struct {
	Identity string          `json:"identity"`
	Target   decimal.Decimal `json:"target"`
	Reward   string          `json:"reward"`
	Total    decimal.Decimal `json:"total"`
}
