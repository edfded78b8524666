// internal/store/postgres.go

// Package store is the PostgreSQL implementation of spending.Store.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"goldencobra/internal/spending"
)

var _ spending.Store = (*Store)(nil)

// Options tunes the connection pool opened by Open.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store provides the users table and the append-only transactions log.
type Store struct {
	db     *sql.DB
	tracer trace.Tracer
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:     db,
		tracer: otel.Tracer("goldencobra/store"),
	}
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, opts Options) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, spending.Unavailable("ping database", err)
	}
	return NewStore(db), nil
}

// DB exposes the underlying handle for migrations.
func (s *Store) DB() *sql.DB {
	return s.db
}

// classify maps driver errors onto the spending error taxonomy.
func classify(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return spending.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "53", "57":
			// connection exception, insufficient resources, operator intervention
			return spending.Unavailable(op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return spending.Unavailable(op, err)
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

const userColumns = `id, identity, COALESCE(display_name, ''), spent, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*spending.User, error) {
	u := &spending.User{}
	if err := row.Scan(&u.ID, &u.Identity, &u.DisplayName, &u.Spent, &u.CreatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

// GetOrCreateUser relies on the unique identity constraint, so concurrent first
// contacts create exactly one row. The stored display name is never refreshed.
func (s *Store) GetOrCreateUser(ctx context.Context, identity, displayName string) (*spending.User, error) {
	ctx, span := s.tracer.Start(ctx, "store.get_or_create_user",
		trace.WithAttributes(attribute.String("user.identity", identity)),
	)
	defer span.End()

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (identity, display_name)
		VALUES ($1, NULLIF($2, ''))
		ON CONFLICT (identity) DO NOTHING
		RETURNING `+userColumns,
		identity, displayName)

	user, err := scanUser(row)
	if err == nil {
		span.SetAttributes(attribute.Bool("user.created", true))
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fail(span, classify("insert user", err))
	}

	// the row already existed
	span.SetAttributes(attribute.Bool("user.created", false))
	user, err = s.getUser(ctx, identity)
	if err != nil {
		return nil, fail(span, err)
	}
	return user, nil
}

func (s *Store) GetUser(ctx context.Context, identity string) (*spending.User, error) {
	ctx, span := s.tracer.Start(ctx, "store.get_user",
		trace.WithAttributes(attribute.String("user.identity", identity)),
	)
	defer span.End()

	user, err := s.getUser(ctx, identity)
	if err != nil {
		return nil, fail(span, err)
	}
	return user, nil
}

func (s *Store) getUser(ctx context.Context, identity string) (*spending.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE identity = $1
	`, identity)

	user, err := scanUser(row)
	if err != nil {
		return nil, classify("select user", err)
	}
	return user, nil
}

// RecordSpend increments the balance, appends the transaction and advances the
// community total in one database transaction. The UPDATE holds the user's row
// lock until commit, so spends by the same user are applied one after another.
// The community total row is locked last, which orders all spends and makes
// TotalBefore and TotalAfter exact.
func (s *Store) RecordSpend(ctx context.Context, identity string, amount decimal.Decimal, at time.Time) (*spending.SpendRecord, error) {
	ctx, span := s.tracer.Start(ctx, "store.record_spend",
		trace.WithAttributes(
			attribute.String("user.identity", identity),
			attribute.String("spend.amount", amount.String()),
		),
	)
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fail(span, classify("begin transaction", err))
	}
	defer tx.Rollback()

	var (
		userID       int64
		balanceAfter decimal.Decimal
	)
	err = tx.QueryRowContext(ctx, `
		UPDATE users
		SET spent = spent + $1
		WHERE identity = $2
		RETURNING id, spent
	`, amount, identity).Scan(&userID, &balanceAfter)
	if err != nil {
		return nil, fail(span, classify("increment balance", err))
	}

	entry, err := appendTransaction(ctx, tx, userID, amount, at)
	if err != nil {
		return nil, fail(span, classify("append transaction", err))
	}

	totalAfter, err := advanceTotal(ctx, tx, amount)
	if err != nil {
		return nil, fail(span, classify("advance community total", err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fail(span, classify("commit transaction", err))
	}

	span.SetAttributes(
		attribute.Int64("transaction.id", entry.ID),
		attribute.String("balance.after", balanceAfter.String()),
		attribute.String("total.after", totalAfter.String()),
	)

	return &spending.SpendRecord{
		Transaction:   *entry,
		BalanceBefore: balanceAfter.Sub(amount),
		BalanceAfter:  balanceAfter,
		TotalBefore:   totalAfter.Sub(amount),
		TotalAfter:    totalAfter,
	}, nil
}

// advanceTotal adds amount to the community total row, creating it if a
// migration has not seeded it.
func advanceTotal(ctx context.Context, tx *sql.Tx, amount decimal.Decimal) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := tx.QueryRowContext(ctx, `
		INSERT INTO community_total (id, total)
		VALUES (TRUE, $1)
		ON CONFLICT (id) DO UPDATE SET total = community_total.total + EXCLUDED.total
		RETURNING total
	`, amount).Scan(&total)
	return total, err
}

// TopUsers breaks balance ties by earliest creation, then by id.
func (s *Store) TopUsers(ctx context.Context, limit int) ([]*spending.User, error) {
	ctx, span := s.tracer.Start(ctx, "store.top_users",
		trace.WithAttributes(attribute.Int("limit", limit)),
	)
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE spent > 0
		ORDER BY spent DESC, created_at ASC, id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fail(span, classify("query top users", err))
	}
	defer rows.Close()

	users := []*spending.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fail(span, classify("scan user", err))
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, classify("iterate users", err))
	}

	span.SetAttributes(attribute.Int("users.loaded", len(users)))
	return users, nil
}

// TotalSpent reads the community total maintained by RecordSpend.
func (s *Store) TotalSpent(ctx context.Context) (decimal.Decimal, error) {
	ctx, span := s.tracer.Start(ctx, "store.total_spent")
	defer span.End()

	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE((SELECT total FROM community_total), 0)`).Scan(&total)
	if err != nil {
		return decimal.Zero, fail(span, classify("read community total", err))
	}
	return total, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return spending.Unavailable("ping database", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
