// internal/store/schema.go
package store

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		identity TEXT NOT NULL UNIQUE,
		display_name TEXT,
		spent NUMERIC(20, 2) NOT NULL DEFAULT 0 CHECK (spent >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		amount NUMERIC(20, 2) NOT NULL CHECK (amount > 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_user_id_idx ON transactions (user_id, id)`,
	`CREATE INDEX IF NOT EXISTS users_leaderboard_idx ON users (spent DESC, created_at ASC, id ASC) WHERE spent > 0`,
	`CREATE TABLE IF NOT EXISTS community_total (
		id BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (id),
		total NUMERIC(22, 2) NOT NULL DEFAULT 0 CHECK (total >= 0)
	)`,
	`INSERT INTO community_total (id, total)
		SELECT TRUE, COALESCE(SUM(spent), 0) FROM users
		ON CONFLICT (id) DO NOTHING`,
}

// Migrate creates the tables and indexes if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "store.migrate")
	defer span.End()

	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fail(span, fmt.Errorf("apply schema statement %d: %w", i, classify("migrate", err)))
		}
	}
	return nil
}
