// internal/spending/implementation.go
package spending

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"goldencobra/internal/goals"
	"goldencobra/internal/ranks"
)

const defaultTimeout = 5 * time.Second

// Option customises a service built by NewService.
type Option func(*service)

// WithPublisher sends rank-up and goal notifications to p.
func WithPublisher(p Publisher) Option {
	return func(s *service) { s.publisher = p }
}

// WithRecorder reports every applied spend to r.
func WithRecorder(r Recorder) Option {
	return func(s *service) { s.recorder = r }
}

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *service) { s.log = l }
}

// WithTimeout bounds every store call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *service) { s.timeout = d }
}

// WithClock overrides the transaction timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// service implements the Service interface.
type service struct {
	store     Store
	ranks     *ranks.Table
	goals     *goals.Tracker
	publisher Publisher
	recorder  Recorder
	log       zerolog.Logger
	timeout   time.Duration
	now       func() time.Time
}

// NewService creates a new spending service instance.
func NewService(store Store, rankTable *ranks.Table, tracker *goals.Tracker, opts ...Option) Service {
	s := &service{
		store:   store,
		ranks:   rankTable,
		goals:   tracker,
		log:     zerolog.Nop(),
		timeout: defaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Ranks() *ranks.Table   { return s.ranks }
func (s *service) Goals() *goals.Tracker { return s.goals }

func (s *service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// GetOrCreateUser returns the user for identity, creating it on first contact.
func (s *service) GetOrCreateUser(ctx context.Context, identity, displayName string) (*User, error) {
	if identity == "" {
		return nil, &ValidationError{Field: "identity", Reason: "empty"}
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := s.store.GetOrCreateUser(ctx, identity, displayName)
	if err != nil {
		return nil, fmt.Errorf("get or create user %s: %w", identity, err)
	}
	return user, nil
}

// ApplySpend validates amount, records it for identity and reports rank and goal changes.
func (s *service) ApplySpend(ctx context.Context, identity string, amount decimal.Decimal) (*SpendResult, error) {
	return s.apply(ctx, identity, "", amount)
}

// Spend is the inbound action path: parse the raw amount, make sure the user exists, apply.
func (s *service) Spend(ctx context.Context, identity, displayName, rawAmount string) (*SpendResult, error) {
	amount, err := ParseAmount(rawAmount)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetOrCreateUser(ctx, identity, displayName); err != nil {
		return nil, err
	}
	return s.apply(ctx, identity, displayName, amount)
}

func (s *service) apply(ctx context.Context, identity, displayName string, amount decimal.Decimal) (*SpendResult, error) {
	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}

	storeCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	record, err := s.store.RecordSpend(storeCtx, identity, amount, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("record spend for %s: %w", identity, err)
	}

	result := s.evaluate(record)

	s.log.Info().
		Str("identity", identity).
		Str("amount", amount.String()).
		Str("balance", result.NewBalance.String()).
		Str("rank", result.NewRank.Name).
		Bool("rank_up", result.RankUp).
		Int("goals_crossed", len(result.CrossedGoals)).
		Msg("spend applied")

	if s.recorder != nil {
		s.recorder.ObserveSpend(result)
	}
	s.notify(ctx, identity, displayName, result)

	return result, nil
}

func (s *service) evaluate(record *SpendRecord) *SpendResult {
	oldRank := s.ranks.Resolve(record.BalanceBefore)
	newRank := s.ranks.Resolve(record.BalanceAfter)

	return &SpendResult{
		Transaction:  record.Transaction,
		OldBalance:   record.BalanceBefore,
		NewBalance:   record.BalanceAfter,
		OldRank:      oldRank,
		NewRank:      newRank,
		RankUp:       newRank.Ordinal > oldRank.Ordinal,
		TotalBefore:  record.TotalBefore,
		TotalAfter:   record.TotalAfter,
		CrossedGoals: slices.Collect(s.goals.CrossedBy(record.TotalBefore, record.TotalAfter)),
	}
}

// notify runs after commit; failures are logged and never undo the spend.
func (s *service) notify(ctx context.Context, identity, displayName string, result *SpendResult) {
	if s.publisher == nil {
		return
	}

	if result.RankUp {
		err := s.publisher.PublishRankUp(ctx, RankUpEvent{
			Identity:    identity,
			DisplayName: displayName,
			OldRank:     result.OldRank.Name,
			NewRank:     result.NewRank.Name,
			Balance:     result.NewBalance,
		})
		if err != nil {
			s.log.Warn().Err(err).Str("identity", identity).Msg("failed to publish rank up")
		}
	}

	for _, g := range result.CrossedGoals {
		err := s.publisher.PublishGoalCrossed(ctx, GoalCrossedEvent{
			Identity: identity,
			Target:   g.Target,
			Reward:   g.Reward,
			Total:    result.TotalAfter,
		})
		if err != nil {
			s.log.Warn().Err(err).Str("target", g.Target.String()).Msg("failed to publish goal crossed")
		}
	}
}

// GetUser retrieves a user by identity.
func (s *service) GetUser(ctx context.Context, identity string) (*User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := s.store.GetUser(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", identity, err)
	}
	return user, nil
}

// TopUsers lists the leaderboard, highest spend first.
func (s *service) TopUsers(ctx context.Context, limit int) ([]*User, error) {
	if limit <= 0 {
		return []*User{}, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	users, err := s.store.TopUsers(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("top users: %w", err)
	}
	return users, nil
}

// TotalSpent is the community-wide cumulative spend.
func (s *service) TotalSpent(ctx context.Context) (decimal.Decimal, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	total, err := s.store.TotalSpent(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("total spent: %w", err)
	}
	return total, nil
}

// History lists a user's most recent transactions, newest first.
func (s *service) History(ctx context.Context, identity string, limit int) ([]*Transaction, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	txs, err := s.store.Transactions(ctx, identity, limit)
	if err != nil {
		return nil, fmt.Errorf("history for %s: %w", identity, err)
	}
	return txs, nil
}
