package store

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS repos (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		owner TEXT NOT NULL,
		name TEXT NOT NULL,
		installation_id BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (owner, name)
	)`,
	`CREATE TABLE IF NOT EXISTS policies (
		repo_id BIGINT PRIMARY KEY REFERENCES repos(id) ON DELETE CASCADE,
		block_risk_threshold INT NOT NULL DEFAULT 0,
		block_on_high_severity_security BOOLEAN NOT NULL DEFAULT false,
		max_issue_count INT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		repo_id BIGINT NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
		pr_number INT NOT NULL,
		head_sha TEXT NOT NULL,
		delivery_id TEXT NOT NULL,
		status TEXT NOT NULL,
		verb TEXT NOT NULL DEFAULT '',
		risk_score INT NOT NULL DEFAULT 0,
		summary TEXT NOT NULL DEFAULT '',
		partial BOOLEAN NOT NULL DEFAULT false,
		blocked BOOLEAN NOT NULL DEFAULT false,
		block_reason TEXT NOT NULL DEFAULT '',
		trace_id TEXT NOT NULL DEFAULT '',
		prompt_tokens INT NOT NULL DEFAULT 0,
		completion_tokens INT NOT NULL DEFAULT 0,
		total_tokens INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS reviews_repo_created_idx ON reviews (repo_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS reviews_delivery_idx ON reviews (delivery_id)`,
	`CREATE TABLE IF NOT EXISTS findings (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		review_id BIGINT NOT NULL REFERENCES reviews(id) ON DELETE CASCADE,
		file TEXT NOT NULL,
		line INT NOT NULL DEFAULT 0,
		severity TEXT NOT NULL,
		category TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL,
		suggestion TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS findings_review_idx ON findings (review_id)`,
}

// Bootstrap applies the schema. Statements are idempotent so this runs on
// every startup.
func (s *Store) Bootstrap(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
