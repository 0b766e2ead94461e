// Package review orchestrates one pull request review end to end: fetch,
// sanitize, prioritize, prompt, call the model, aggregate, score, apply
// policy, persist, and post the result back to the host.
package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/diffsentry/internal/aggregate"
	"github.com/diffsentry/internal/budget"
	"github.com/diffsentry/internal/diff"
	"github.com/diffsentry/internal/engine"
	"github.com/diffsentry/internal/hostclient"
	"github.com/diffsentry/internal/policy"
	"github.com/diffsentry/internal/prompts"
	"github.com/diffsentry/pkg/models"
)

// TokenSource hands out installation tokens.
type TokenSource interface {
	GetToken(ctx context.Context, installationID int64) (string, error)
}

// ClientFactory builds a host client for an installation token.
type ClientFactory func(ctx context.Context, token string) (hostclient.Client, error)

// UnitReviewer runs prompt units against the model.
type UnitReviewer interface {
	ReviewAll(ctx context.Context, units []models.PromptUnit) ([]engine.UnitResult, error)
}

// Persister is the slice of the store the pipeline writes through.
type Persister interface {
	FindOrCreateRepo(ctx context.Context, owner, name string, installationID int64) (int64, error)
	GetPolicy(ctx context.Context, repoID int64) (*models.Policy, error)
	SaveReview(ctx context.Context, rec models.ReviewRecord, findings []models.ReviewFinding) (int64, error)
}

// Service wires the pipeline stages together. One Service serves all jobs;
// per-job state lives on the stack.
type Service struct {
	tokens    TokenSource
	clients   ClientFactory
	store     Persister
	sanitizer *diff.Sanitizer
	builder   *prompts.Builder
	reviewer  UnitReviewer
	logger    zerolog.Logger
}

func NewService(tokens TokenSource, clients ClientFactory, persister Persister, builder *prompts.Builder, reviewer UnitReviewer, logger zerolog.Logger) *Service {
	return &Service{
		tokens:    tokens,
		clients:   clients,
		store:     persister,
		sanitizer: diff.NewSanitizer(),
		builder:   builder,
		reviewer:  reviewer,
		logger:    logger.With().Str("component", "review_service").Logger(),
	}
}

// Run executes the full pipeline for one pull request. Errors before
// persistence propagate so the job retries; a failure to post the finished
// review is logged and swallowed since the review itself succeeded.
func (s *Service) Run(ctx context.Context, pr models.PullRequest, deliveryID, traceID string) error {
	logger := s.logger.With().
		Str("trace_id", traceID).
		Str("pr", fmt.Sprintf("%s#%d", pr.FullName(), pr.Number)).
		Logger()

	token, err := s.tokens.GetToken(ctx, pr.InstallationID)
	if err != nil {
		return fmt.Errorf("failed to authenticate installation %d: %w", pr.InstallationID, err)
	}

	client, err := s.clients(ctx, token)
	if err != nil {
		return err
	}

	pullCtx, err := client.FetchPullContext(ctx, pr)
	if err != nil {
		return err
	}

	repoID, err := s.store.FindOrCreateRepo(ctx, pr.Owner, pr.Repo, pr.InstallationID)
	if err != nil {
		return err
	}

	changes := s.sanitizer.Sanitize(pullCtx.Diff, pullCtx.Files)
	if len(changes) == 0 {
		return s.completeNoChanges(ctx, client, pr, repoID, deliveryID, traceID, logger)
	}

	changes = budget.Prioritize(changes)
	units := s.builder.Build(changes)

	logger.Info().
		Int("files", len(changes)).
		Int("units", len(units)).
		Msg("Reviewing pull request")

	results, err := s.reviewer.ReviewAll(ctx, units)
	if err != nil {
		return err
	}

	merged, err := aggregate.Merge(results)
	if err != nil {
		if errors.Is(err, aggregate.ErrNoReview) {
			return fmt.Errorf("no prompt unit produced a usable review for %s#%d: %w", pr.FullName(), pr.Number, err)
		}
		return err
	}

	pol, err := s.store.GetPolicy(ctx, repoID)
	if err != nil {
		return err
	}

	decision := policy.Evaluate(merged, pol)
	verb := policy.Verb(decision)

	rec := models.ReviewRecord{
		RepoID:      repoID,
		PRNumber:    pr.Number,
		HeadSHA:     pr.HeadSHA,
		DeliveryID:  deliveryID,
		Status:      reviewStatus(merged),
		Verb:        verb,
		Summary:     merged.Summary,
		RiskScore:   merged.RiskScore,
		Blocked:     decision.IsBlocked,
		BlockReason: decision.Reason,
		Partial:     merged.Partial,
		Usage:       merged.Usage,
		TraceID:     traceID,
	}

	reviewID, err := s.store.SaveReview(ctx, rec, merged.Findings)
	if err != nil {
		return fmt.Errorf("failed to persist review for %s#%d: %w", pr.FullName(), pr.Number, err)
	}

	body, comments := renderReview(merged, decision)
	if err := client.PostReview(ctx, pr, verb, body, comments, pullCtx.Patches); err != nil {
		// The review is recorded; a host hiccup on publish is not worth
		// rerunning the whole pipeline and paying for the model again.
		logger.Warn().Err(err).Int64("review_id", reviewID).Msg("Failed to post review to host")
		return nil
	}

	logger.Info().
		Int64("review_id", reviewID).
		Int("risk_score", merged.RiskScore).
		Int("findings", len(merged.Findings)).
		Bool("blocked", decision.IsBlocked).
		Msg("Review posted")
	return nil
}

func (s *Service) completeNoChanges(ctx context.Context, client hostclient.Client, pr models.PullRequest, repoID int64, deliveryID, traceID string, logger zerolog.Logger) error {
	rec := models.ReviewRecord{
		RepoID:     repoID,
		PRNumber:   pr.Number,
		HeadSHA:    pr.HeadSHA,
		DeliveryID: deliveryID,
		Status:     models.ReviewStatusNoChanges,
		TraceID:    traceID,
	}
	if _, err := s.store.SaveReview(ctx, rec, nil); err != nil {
		return err
	}

	if err := client.PostComment(ctx, pr, noChangesComment); err != nil {
		logger.Warn().Err(err).Msg("Failed to post no-changes comment")
	}
	logger.Info().Msg("No reviewable changes in pull request")
	return nil
}

func reviewStatus(merged *models.AggregatedReview) string {
	if merged.Partial {
		return models.ReviewStatusPartial
	}
	return models.ReviewStatusCompleted
}
