// internal/audit/audit.go
package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"goldencobra/internal/spending"
)

const defaultBatchSize = 500

var ErrAuditFailed = errors.New("ledger audit failed")

// Source is the read side of a store that can be audited.
type Source interface {
	LedgerDrift(ctx context.Context) (int, error)
	NegativeBalances(ctx context.Context) (int, error)
	StreamTransactions(ctx context.Context, fromID int64, batchSize int) ([]*spending.Transaction, error)
	Balances(ctx context.Context) (map[int64]decimal.Decimal, error)
}

// Check is a measurable ledger property that must satisfy Threshold.
type Check struct {
	Name        string
	Description string
	Query       func(context.Context) (float64, error)
	Threshold   Threshold
}

type Threshold struct {
	Operator string // >, <, >=, <=, ==
	Value    float64
}

// Violation records a check that failed or could not be evaluated.
type Violation struct {
	Check    string  `json:"check"`
	Operator string  `json:"operator"`
	Expected float64 `json:"expected"`
	Actual   float64 `json:"actual"`
	Error    string  `json:"error,omitempty"`
}

// Mismatch is a user whose recorded spend disagrees with the replayed log.
type Mismatch struct {
	UserID   int64           `json:"user_id"`
	Recorded decimal.Decimal `json:"recorded"`
	Replayed decimal.Decimal `json:"replayed"`
}

// ReplayResult summarises a full pass over the transaction log.
type ReplayResult struct {
	Transactions int             `json:"transactions"`
	Users        int             `json:"users"`
	Total        decimal.Decimal `json:"total"`
	Mismatches   []Mismatch      `json:"mismatches"`
}

// Report is the outcome of Run.
type Report struct {
	StartTime    time.Time          `json:"start_time"`
	EndTime      time.Time          `json:"end_time"`
	Duration     time.Duration      `json:"duration"`
	Passed       bool               `json:"passed"`
	Observations map[string]float64 `json:"observations"`
	Violations   []Violation        `json:"violations"`
	Replay       *ReplayResult      `json:"replay,omitempty"`
}

// Auditor runs consistency checks against a Source.
type Auditor struct {
	tracer    trace.Tracer
	source    Source
	batchSize int
	log       zerolog.Logger

	mu     sync.Mutex
	checks []Check
}

// Option customises an Auditor.
type Option func(*Auditor)

// WithBatchSize sets how many transactions Replay reads per query.
func WithBatchSize(n int) Option {
	return func(a *Auditor) {
		if n > 0 {
			a.batchSize = n
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(a *Auditor) { a.log = l }
}

func New(source Source, opts ...Option) *Auditor {
	a := &Auditor{
		tracer:    otel.Tracer("goldencobra/audit"),
		source:    source,
		batchSize: defaultBatchSize,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register adds a check to the audit.
func (a *Auditor) Register(c Check) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checks = append(a.checks, c)
}

// Checks returns the registered checks.
func (a *Auditor) Checks() []Check {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Check, len(a.checks))
	copy(out, a.checks)
	return out
}

// RegisterDefaults registers the standard ledger checks.
func (a *Auditor) RegisterDefaults() {
	a.Register(Check{
		Name:        "ledger_drift",
		Description: "users whose cumulative spend differs from the sum of their transactions",
		Query: func(ctx context.Context) (float64, error) {
			n, err := a.source.LedgerDrift(ctx)
			return float64(n), err
		},
		Threshold: Threshold{Operator: "==", Value: 0},
	})
	a.Register(Check{
		Name:        "negative_balances",
		Description: "users with a cumulative spend below zero",
		Query: func(ctx context.Context) (float64, error) {
			n, err := a.source.NegativeBalances(ctx)
			return float64(n), err
		},
		Threshold: Threshold{Operator: "==", Value: 0},
	})
}

// Run evaluates every check, then replays the full log.
func (a *Auditor) Run(ctx context.Context) (*Report, error) {
	ctx, span := a.tracer.Start(ctx, "audit.run")
	defer span.End()

	report := &Report{
		StartTime:    time.Now(),
		Observations: make(map[string]float64),
		Violations:   make([]Violation, 0),
	}

	span.AddEvent("evaluating_checks")
	for _, check := range a.Checks() {
		value, err := check.Query(ctx)
		if err != nil {
			span.RecordError(err)
			report.Violations = append(report.Violations, Violation{
				Check:    check.Name,
				Operator: check.Threshold.Operator,
				Expected: check.Threshold.Value,
				Actual:   -1,
				Error:    err.Error(),
			})
			if errors.Is(err, spending.ErrStoreUnavailable) {
				return report, fmt.Errorf("check %s: %w", check.Name, err)
			}
			continue
		}

		report.Observations[check.Name] = value
		if !evaluateThreshold(value, check.Threshold) {
			report.Violations = append(report.Violations, Violation{
				Check:    check.Name,
				Operator: check.Threshold.Operator,
				Expected: check.Threshold.Value,
				Actual:   value,
			})
		}
	}

	span.AddEvent("replaying_ledger")
	replay, err := a.Replay(ctx)
	if err != nil {
		span.RecordError(err)
		return report, err
	}
	report.Replay = replay
	report.Observations["replay_mismatches"] = float64(len(replay.Mismatches))
	if len(replay.Mismatches) > 0 {
		report.Violations = append(report.Violations, Violation{
			Check:    "replay_mismatches",
			Operator: "==",
			Expected: 0,
			Actual:   float64(len(replay.Mismatches)),
		})
	}

	report.Passed = len(report.Violations) == 0
	report.EndTime = time.Now()
	report.Duration = report.EndTime.Sub(report.StartTime)

	span.SetAttributes(
		attribute.Bool("audit.passed", report.Passed),
		attribute.Int("audit.violations", len(report.Violations)),
		attribute.Int("audit.transactions", replay.Transactions),
	)
	a.log.Info().
		Bool("passed", report.Passed).
		Int("violations", len(report.Violations)).
		Int("transactions", replay.Transactions).
		Dur("duration", report.Duration).
		Msg("ledger audit finished")

	return report, nil
}

// Replay streams the transaction log in batches and compares per-user sums
// with the recorded cumulative spend.
func (a *Auditor) Replay(ctx context.Context) (*ReplayResult, error) {
	ctx, span := a.tracer.Start(ctx, "audit.replay",
		trace.WithAttributes(attribute.Int("audit.batch_size", a.batchSize)),
	)
	defer span.End()

	sums := make(map[int64]decimal.Decimal)
	result := &ReplayResult{Total: decimal.Zero, Mismatches: make([]Mismatch, 0)}

	var cursor int64
	for {
		batch, err := a.source.StreamTransactions(ctx, cursor, a.batchSize)
		if err != nil {
			return nil, fmt.Errorf("stream transactions after %d: %w", cursor, err)
		}
		for _, tx := range batch {
			sums[tx.UserID] = sums[tx.UserID].Add(tx.Amount)
			result.Total = result.Total.Add(tx.Amount)
			cursor = tx.ID
		}
		result.Transactions += len(batch)
		if len(batch) < a.batchSize {
			break
		}
	}

	balances, err := a.source.Balances(ctx)
	if err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}
	result.Users = len(balances)

	for id, recorded := range balances {
		if replayed := sums[id]; !recorded.Equal(replayed) {
			result.Mismatches = append(result.Mismatches, Mismatch{UserID: id, Recorded: recorded, Replayed: replayed})
		}
	}
	for id, replayed := range sums {
		if _, ok := balances[id]; !ok {
			result.Mismatches = append(result.Mismatches, Mismatch{UserID: id, Recorded: decimal.Zero, Replayed: replayed})
		}
	}
	return result, nil
}

func evaluateThreshold(value float64, threshold Threshold) bool {
	switch threshold.Operator {
	case ">":
		return value > threshold.Value
	case "<":
		return value < threshold.Value
	case ">=":
		return value >= threshold.Value
	case "<=":
		return value <= threshold.Value
	case "==":
		return value == threshold.Value
	default:
		return false
	}
}

// PrintReport writes a human-readable summary of r.
func PrintReport(w io.Writer, r *Report) {
	if r.Passed {
		fmt.Fprintf(w, "✅ Ledger consistent\n")
	} else {
		fmt.Fprintf(w, "❌ Ledger inconsistent\n")
	}

	if len(r.Violations) > 0 {
		fmt.Fprintf(w, "⚠️  Violations detected: %d\n", len(r.Violations))
		for _, v := range r.Violations {
			if v.Error != "" {
				fmt.Fprintf(w, "   - %s: %s\n", v.Check, v.Error)
				continue
			}
			fmt.Fprintf(w, "   - %s: expected %s %.0f, got %.0f\n", v.Check, v.Operator, v.Expected, v.Actual)
		}
	}

	if r.Replay != nil {
		fmt.Fprintf(w, "📒 Transactions replayed: %d (users: %d, total: %s)\n",
			r.Replay.Transactions, r.Replay.Users, r.Replay.Total.String())
		for _, m := range r.Replay.Mismatches {
			fmt.Fprintf(w, "   - user %d: recorded %s, log sums to %s\n", m.UserID, m.Recorded, m.Replayed)
		}
	}

	fmt.Fprintf(w, "📊 Duration: %s\n", r.Duration)
}
