// internal/web/api.go
package web

import (
	"github.com/shopspring/decimal"

	"goldencobra/internal/bot"
	"goldencobra/internal/goals"
	"goldencobra/internal/ranks"
	"goldencobra/internal/spending"
)

// LeaderboardEntry is one row of the public leaderboard.
type LeaderboardEntry struct {
	Position int             `json:"position"`
	Username string          `json:"username"`
	Spent    decimal.Decimal `json:"spent_stars"`
	Rank     string          `json:"rank"`
	Icon     string          `json:"icon,omitempty"`
	Color    string          `json:"color,omitempty"`
}

// GoalView is a community goal with its status.
type GoalView struct {
	Target  decimal.Decimal `json:"target"`
	Reward  string          `json:"reward"`
	Reached bool            `json:"reached"`
}

// DataResponse is the body of GET /api/data.
type DataResponse struct {
	TotalSpent decimal.Decimal    `json:"total_spent"`
	TopUsers   []LeaderboardEntry `json:"top_users"`
	Goals      []GoalView         `json:"goals"`
}

// LeaderboardResponse is the body of GET /api/leaderboard.
type LeaderboardResponse struct {
	Entries []LeaderboardEntry `json:"entries"`
}

// UserResponse is the body of GET /api/users/{identity}.
type UserResponse struct {
	User     *spending.User `json:"user"`
	Rank     ranks.Rank     `json:"rank"`
	NextRank *ranks.Rank    `json:"next_rank,omitempty"`
	// ToNextRank is how much more the user must spend to reach NextRank
	ToNextRank *decimal.Decimal `json:"to_next_rank,omitempty"`
}

// ActionResponse is the body of POST /api/actions.
type ActionResponse struct {
	RequestID string     `json:"request_id"`
	Reply     *bot.Reply `json:"reply"`
	Error     string     `json:"error,omitempty"`
}

// ErrorResponse is the body of every failed API call except actions.
type ErrorResponse struct {
	Error string `json:"error"`
}

func leaderboard(users []*spending.User, table *ranks.Table) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(users))
	for i, u := range users {
		name := u.DisplayName
		if name == "" {
			name = "user_" + u.Identity
		}
		rank := table.Resolve(u.Spent)
		entries = append(entries, LeaderboardEntry{
			Position: i + 1,
			Username: name,
			Spent:    u.Spent,
			Rank:     rank.Name,
			Icon:     rank.Icon,
			Color:    rank.Color,
		})
	}
	return entries
}

func goalViews(tracker *goals.Tracker, total decimal.Decimal) []GoalView {
	all := tracker.All()
	views := make([]GoalView, 0, len(all))
	for _, g := range all {
		views = append(views, GoalView{Target: g.Target, Reward: g.Reward, Reached: g.Reached(total)})
	}
	return views
}
