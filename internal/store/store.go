// Package store persists repositories, review policies, finished reviews
// and token usage in PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diffsentry/pkg/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

type Store struct {
	pool *pgxpool.Pool
}

// New connects a Store to an existing pool. The pool is shared with the
// job queue, so the Store never closes it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// FindOrCreateRepo resolves a repository row, creating it on first sight.
// The installation id is refreshed on every call since the app can be
// reinstalled under a new installation.
func (s *Store) FindOrCreateRepo(ctx context.Context, owner, name string, installationID int64) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO repos (owner, name, installation_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner, name)
		DO UPDATE SET installation_id = EXCLUDED.installation_id
		RETURNING id`,
		owner, name, installationID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to find or create repo %s/%s: %w", owner, name, err)
	}
	return id, nil
}

// GetPolicy returns the review policy for a repo, or nil when none is
// configured. A nil policy means reviews never block.
func (s *Store) GetPolicy(ctx context.Context, repoID int64) (*models.Policy, error) {
	var pol models.Policy
	err := s.pool.QueryRow(ctx, `
		SELECT block_risk_threshold, block_on_high_severity_security, max_issue_count
		FROM policies WHERE repo_id = $1`,
		repoID).Scan(&pol.BlockRiskThreshold, &pol.BlockOnHighSeveritySecurity, &pol.MaxIssueCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load policy for repo %d: %w", repoID, err)
	}
	return &pol, nil
}

// SavePolicy upserts the policy for a repo.
func (s *Store) SavePolicy(ctx context.Context, repoID int64, pol models.Policy) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO policies (repo_id, block_risk_threshold, block_on_high_severity_security, max_issue_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (repo_id)
		DO UPDATE SET
			block_risk_threshold = EXCLUDED.block_risk_threshold,
			block_on_high_severity_security = EXCLUDED.block_on_high_severity_security,
			max_issue_count = EXCLUDED.max_issue_count`,
		repoID, pol.BlockRiskThreshold, pol.BlockOnHighSeveritySecurity, pol.MaxIssueCount)
	if err != nil {
		return fmt.Errorf("failed to save policy for repo %d: %w", repoID, err)
	}
	return nil
}

// SaveReview writes the review record and its findings in one transaction
// and returns the review id.
func (s *Store) SaveReview(ctx context.Context, rec models.ReviewRecord, findings []models.ReviewFinding) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var reviewID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO reviews (repo_id, pr_number, head_sha, delivery_id, status, verb,
			risk_score, summary, partial, blocked, block_reason, trace_id,
			prompt_tokens, completion_tokens, total_tokens)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`,
		rec.RepoID, rec.PRNumber, rec.HeadSHA, rec.DeliveryID, rec.Status, rec.Verb,
		rec.RiskScore, rec.Summary, rec.Partial, rec.Blocked, rec.BlockReason, rec.TraceID,
		rec.Usage.PromptTokens, rec.Usage.CompletionTokens, rec.Usage.TotalTokens).Scan(&reviewID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert review: %w", err)
	}

	for _, f := range findings {
		_, err = tx.Exec(ctx, `
			INSERT INTO findings (review_id, file, line, severity, category, title, description, suggestion)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			reviewID, f.File, f.Line, string(f.Severity), string(f.Category), f.Title, f.Description, f.Suggestion)
		if err != nil {
			return 0, fmt.Errorf("failed to insert finding for %s:%d: %w", f.File, f.Line, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit review: %w", err)
	}
	return reviewID, nil
}

// GetReview loads a single review record by id.
func (s *Store) GetReview(ctx context.Context, reviewID int64) (*models.ReviewRecord, error) {
	var rec models.ReviewRecord
	err := s.pool.QueryRow(ctx, `
		SELECT id, repo_id, pr_number, head_sha, delivery_id, status, verb,
			risk_score, summary, partial, blocked, block_reason, trace_id,
			prompt_tokens, completion_tokens, total_tokens, created_at
		FROM reviews WHERE id = $1`,
		reviewID).Scan(
		&rec.ID, &rec.RepoID, &rec.PRNumber, &rec.HeadSHA, &rec.DeliveryID, &rec.Status, &rec.Verb,
		&rec.RiskScore, &rec.Summary, &rec.Partial, &rec.Blocked, &rec.BlockReason, &rec.TraceID,
		&rec.Usage.PromptTokens, &rec.Usage.CompletionTokens, &rec.Usage.TotalTokens, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load review %d: %w", reviewID, err)
	}
	return &rec, nil
}

// ListReviews returns the most recent reviews for a repo, newest first.
func (s *Store) ListReviews(ctx context.Context, repoID int64, limit int) ([]models.ReviewRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, repo_id, pr_number, head_sha, delivery_id, status, verb,
			risk_score, summary, partial, blocked, block_reason, trace_id,
			prompt_tokens, completion_tokens, total_tokens, created_at
		FROM reviews WHERE repo_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		repoID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews for repo %d: %w", repoID, err)
	}
	defer rows.Close()

	var recs []models.ReviewRecord
	for rows.Next() {
		var rec models.ReviewRecord
		if err := rows.Scan(
			&rec.ID, &rec.RepoID, &rec.PRNumber, &rec.HeadSHA, &rec.DeliveryID, &rec.Status, &rec.Verb,
			&rec.RiskScore, &rec.Summary, &rec.Partial, &rec.Blocked, &rec.BlockReason, &rec.TraceID,
			&rec.Usage.PromptTokens, &rec.Usage.CompletionTokens, &rec.Usage.TotalTokens, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review row: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ListFindings returns the findings attached to a review.
func (s *Store) ListFindings(ctx context.Context, reviewID int64) ([]models.ReviewFinding, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT file, line, severity, category, title, description, suggestion
		FROM findings WHERE review_id = $1
		ORDER BY file, line`,
		reviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to list findings for review %d: %w", reviewID, err)
	}
	defer rows.Close()

	var findings []models.ReviewFinding
	for rows.Next() {
		var f models.ReviewFinding
		var severity, category string
		if err := rows.Scan(&f.File, &f.Line, &severity, &category, &f.Title, &f.Description, &f.Suggestion); err != nil {
			return nil, fmt.Errorf("failed to scan finding row: %w", err)
		}
		f.Severity = models.Severity(severity)
		f.Category = models.Category(category)
		findings = append(findings, f)
	}
	return findings, rows.Err()
}
