package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements are idempotent and safe to run on every boot.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		full_name TEXT,
		email TEXT,
		phone_number TEXT,
		address TEXT,
		country TEXT,
		gender TEXT,
		kyc_status TEXT NOT NULL DEFAULT 'not_started',
		sumsub_applicant_id TEXT,
		sumsub_review_status TEXT,
		sumsub_review_result TEXT,
		manual_override_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		manual_override_reason TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS manual_override_updated_at TIMESTAMPTZ`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS manual_override_updated_by TEXT`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS kyc_submitted_at TIMESTAMPTZ`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS kyc_decided_at TIMESTAMPTZ`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS kyc_decided_by TEXT`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS kyc_decision_reason TEXT`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'users_kyc_status_check') THEN
			ALTER TABLE users ADD CONSTRAINT users_kyc_status_check
				CHECK (kyc_status IN ('not_started', 'pending', 'approved', 'rejected'));
		END IF;
	END $$`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_sumsub_applicant_id_key
		ON users (sumsub_applicant_id) WHERE sumsub_applicant_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS users_kyc_queue_idx
		ON users (kyc_status, kyc_submitted_at DESC)`,

	`CREATE TABLE IF NOT EXISTS profile_update_requests (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users (id),
		full_name TEXT,
		email TEXT,
		phone_number TEXT,
		address TEXT,
		country TEXT,
		gender TEXT,
		status TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'approved', 'rejected', 'cancelled')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		reviewed_at TIMESTAMPTZ,
		reviewed_by TEXT,
		admin_comment TEXT
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ` + pendingRequestConstraint + `
		ON profile_update_requests (user_id) WHERE status = 'pending'`,
	`CREATE INDEX IF NOT EXISTS profile_update_requests_user_created_idx
		ON profile_update_requests (user_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS kyc_audit_log (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		action TEXT NOT NULL,
		actor_id TEXT,
		previous_status TEXT,
		new_status TEXT,
		override_enabled BOOLEAN,
		reason TEXT,
		review_status TEXT,
		review_result TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS kyc_audit_log_user_idx ON kyc_audit_log (user_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS event_outbox (
		id BIGSERIAL PRIMARY KEY,
		exchange TEXT NOT NULL,
		routing_key TEXT NOT NULL,
		payload JSONB NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INT NOT NULL DEFAULT 0,
		next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processing_started_at TIMESTAMPTZ,
		published_at TIMESTAMPTZ,
		last_error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS event_outbox_pending_idx ON event_outbox (status, next_attempt_at)`,
}

// EnsureSchema creates the tables and indexes the service relies on.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	for i, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
