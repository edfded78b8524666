// internal/spending/service.go
package spending

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"goldencobra/internal/goals"
	"goldencobra/internal/ranks"
)

// Service defines the interface for the spending service.
type Service interface {
	// GetOrCreateUser returns the user with identity, creating it with zero spend if absent.
	// An existing user's display name is kept as first recorded.
	GetOrCreateUser(ctx context.Context, identity, displayName string) (*User, error)
	ApplySpend(ctx context.Context, identity string, amount decimal.Decimal) (*SpendResult, error)
	Spend(ctx context.Context, identity, displayName, rawAmount string) (*SpendResult, error)
	GetUser(ctx context.Context, identity string) (*User, error)
	TopUsers(ctx context.Context, limit int) ([]*User, error)
	TotalSpent(ctx context.Context) (decimal.Decimal, error)
	History(ctx context.Context, identity string, limit int) ([]*Transaction, error)
	Ranks() *ranks.Table
	Goals() *goals.Tracker
}

// Store is the persistence contract the service relies on. Implementations
// wrap connectivity failures with Unavailable and report unknown users as ErrNotFound.
type Store interface {
	GetOrCreateUser(ctx context.Context, identity, displayName string) (*User, error)
	GetUser(ctx context.Context, identity string) (*User, error)
	// RecordSpend appends a transaction and increments the user's cumulative
	// spend as one atomic unit.
	RecordSpend(ctx context.Context, identity string, amount decimal.Decimal, at time.Time) (*SpendRecord, error)
	// TopUsers lists users with positive spend, highest first; ties go to the
	// earliest-created user.
	TopUsers(ctx context.Context, limit int) ([]*User, error)
	TotalSpent(ctx context.Context) (decimal.Decimal, error)
	Transactions(ctx context.Context, identity string, limit int) ([]*Transaction, error)
	Ping(ctx context.Context) error
	Close() error
}

// Publisher receives notifications about committed spends.
type Publisher interface {
	PublishRankUp(ctx context.Context, event RankUpEvent) error
	PublishGoalCrossed(ctx context.Context, event GoalCrossedEvent) error
}

// Recorder observes spend outcomes, e.g. for metrics.
type Recorder interface {
	ObserveSpend(result *SpendResult)
}
