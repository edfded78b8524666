// internal/store/ledger.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"goldencobra/internal/spending"
)

// appendTransaction writes one log entry inside tx.
func appendTransaction(ctx context.Context, tx *sql.Tx, userID int64, amount decimal.Decimal, at time.Time) (*spending.Transaction, error) {
	entry := &spending.Transaction{
		UserID:    userID,
		Amount:    amount,
		CreatedAt: at,
	}
	err := tx.QueryRowContext(ctx, `
		INSERT INTO transactions (user_id, amount, created_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, userID, amount, at).Scan(&entry.ID)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func scanTransactions(rows *sql.Rows) ([]*spending.Transaction, error) {
	txs := []*spending.Transaction{}
	for rows.Next() {
		entry := &spending.Transaction{}
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Amount, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

// Transactions returns up to limit of the user's log entries, newest first.
func (s *Store) Transactions(ctx context.Context, identity string, limit int) ([]*spending.Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "store.transactions",
		trace.WithAttributes(
			attribute.String("user.identity", identity),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	user, err := s.getUser(ctx, identity)
	if err != nil {
		return nil, fail(span, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, amount, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, user.ID, limit)
	if err != nil {
		return nil, fail(span, classify("query transactions", err))
	}
	defer rows.Close()

	txs, err := scanTransactions(rows)
	if err != nil {
		return nil, fail(span, classify("load transactions", err))
	}

	span.SetAttributes(attribute.Int("transactions.loaded", len(txs)))
	return txs, nil
}

// StreamTransactions provides a cursor over the whole log in id order.
func (s *Store) StreamTransactions(ctx context.Context, fromID int64, batchSize int) ([]*spending.Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "store.stream_transactions",
		trace.WithAttributes(
			attribute.Int64("from.id", fromID),
			attribute.Int("batch.size", batchSize),
		),
	)
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, amount, created_at
		FROM transactions
		WHERE id > $1
		ORDER BY id ASC
		LIMIT $2
	`, fromID, batchSize)
	if err != nil {
		return nil, fail(span, classify("query transaction stream", err))
	}
	defer rows.Close()

	txs, err := scanTransactions(rows)
	if err != nil {
		return nil, fail(span, classify("stream transactions", err))
	}

	span.SetAttributes(attribute.Int("transactions.streamed", len(txs)))
	return txs, nil
}

// Balances returns every user's recorded cumulative spend keyed by user id.
func (s *Store) Balances(ctx context.Context) (map[int64]decimal.Decimal, error) {
	ctx, span := s.tracer.Start(ctx, "store.balances")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `SELECT id, spent FROM users`)
	if err != nil {
		return nil, fail(span, classify("query balances", err))
	}
	defer rows.Close()

	balances := make(map[int64]decimal.Decimal)
	for rows.Next() {
		var (
			id    int64
			spent decimal.Decimal
		)
		if err := rows.Scan(&id, &spent); err != nil {
			return nil, fail(span, classify("scan balance", err))
		}
		balances[id] = spent
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, classify("iterate balances", err))
	}
	return balances, nil
}

// LedgerDrift counts users whose cumulative spend differs from the sum of their log entries.
func (s *Store) LedgerDrift(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "store.ledger_drift")
	defer span.End()

	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM users u
		LEFT JOIN (
			SELECT user_id, SUM(amount) AS total
			FROM transactions
			GROUP BY user_id
		) t ON t.user_id = u.id
		WHERE u.spent <> COALESCE(t.total, 0)
	`).Scan(&n)
	if err != nil {
		return 0, fail(span, classify("count ledger drift", err))
	}

	span.SetAttributes(attribute.Int("drift.users", n))
	return n, nil
}

// NegativeBalances counts users whose cumulative spend is below zero.
func (s *Store) NegativeBalances(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "store.negative_balances")
	defer span.End()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE spent < 0`).Scan(&n); err != nil {
		return 0, fail(span, classify("count negative balances", err))
	}
	return n, nil
}
