// Package migrations applies the engine's PostgreSQL schema. Every
// statement is idempotent, so Apply runs unconditionally at boot.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS jackpot_drawings (
		id BIGINT PRIMARY KEY,
		status TEXT NOT NULL,
		normal_max INT NOT NULL,
		bonus_max INT NOT NULL,
		pick_size INT NOT NULL,
		ticket_price BIGINT NOT NULL,
		tiers JSONB NOT NULL,
		winning_numbers JSONB NOT NULL,
		winning_bonus INT NOT NULL DEFAULT 0,
		ticket_revenue BIGINT NOT NULL DEFAULT 0,
		prize_pool BIGINT NOT NULL DEFAULT 0,
		total_user_payout BIGINT NOT NULL DEFAULT 0,
		protocol_fee BIGINT NOT NULL DEFAULT 0,
		payouts JSONB NOT NULL,
		tickets_sold BIGINT NOT NULL DEFAULT 0,
		duplicates_sold BIGINT NOT NULL DEFAULT 0,
		opened_at TIMESTAMPTZ NOT NULL,
		closed_at TIMESTAMPTZ,
		settled_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS jackpot_tickets (
		id TEXT PRIMARY KEY,
		drawing_id BIGINT NOT NULL,
		account_id TEXT NOT NULL,
		numbers JSONB NOT NULL,
		bonus INT NOT NULL,
		duplicate BOOLEAN NOT NULL DEFAULT FALSE,
		price BIGINT NOT NULL,
		claimed BOOLEAN NOT NULL DEFAULT FALSE,
		claimed_amount BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		claimed_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS jackpot_positions (
		lp TEXT PRIMARY KEY,
		consolidated_shares BIGINT NOT NULL DEFAULT 0,
		deposit_amount BIGINT NOT NULL DEFAULT 0,
		deposit_drawing BIGINT NOT NULL DEFAULT 0,
		withdrawal_shares BIGINT NOT NULL DEFAULT 0,
		withdrawal_drawing BIGINT NOT NULL DEFAULT 0,
		claimable BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS jackpot_drawing_states (
		drawing_id BIGINT PRIMARY KEY,
		pool_total BIGINT NOT NULL DEFAULT 0,
		pending_deposits BIGINT NOT NULL DEFAULT 0,
		pending_withdrawals BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS jackpot_accumulators (
		drawing_id BIGINT PRIMARY KEY,
		price TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jackpot_tickets_drawing ON jackpot_tickets (drawing_id)`,
	`CREATE INDEX IF NOT EXISTS idx_jackpot_tickets_account ON jackpot_tickets (account_id)`,
}

// Apply executes the schema statements in order using the provided
// database handle.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
	}
	return nil
}
