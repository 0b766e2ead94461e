// Package engine executes review prompts against an LLM under the strict
// response contract: JSON only, one in-place retry per malformed response,
// model-reported risk scores discarded.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/diffsentry/internal/budget"
	"github.com/diffsentry/internal/llm"
	"github.com/diffsentry/internal/retry"
	"github.com/diffsentry/pkg/models"
)

// UnitResult is the outcome of one prompt unit. Failed units carry Err and
// are excluded from aggregation; they are not retried at the batch level.
type UnitResult struct {
	Unit   models.PromptUnit
	Review *llm.ParsedReview
	Usage  models.Usage
	Err    error
}

// Failed reports whether the unit produced no usable review.
func (r UnitResult) Failed() bool { return r.Err != nil }

// Options tunes the engine. CallDelay spaces sequential LLM calls to stay
// inside external rate limits; CallTimeout bounds each call so a hung
// request cannot pin a worker slot.
type Options struct {
	CallDelay   time.Duration
	CallTimeout time.Duration
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		CallDelay:   2 * time.Second,
		CallTimeout: 90 * time.Second,
	}
}

// Engine runs prompt units against a model, sequentially per job. Cross-job
// parallelism comes from running jobs in separate workers; the limiter here
// is shared so total LLM throughput stays bounded.
type Engine struct {
	model   Model
	limiter *rate.Limiter
	opts    Options
	logger  zerolog.Logger
}

// New creates an engine around model. The limiter may be shared across
// engines; pass nil to derive one from CallDelay.
func New(model Model, limiter *rate.Limiter, opts Options, logger zerolog.Logger) *Engine {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultOptions().CallTimeout
	}
	if limiter == nil {
		interval := opts.CallDelay
		if interval <= 0 {
			interval = DefaultOptions().CallDelay
		}
		limiter = rate.NewLimiter(rate.Every(interval), 1)
	}

	return &Engine{
		model:   model,
		limiter: limiter,
		opts:    opts,
		logger:  logger,
	}
}

// ReviewAll executes every unit in order and returns one result per unit,
// in the same order. A failed unit never aborts the rest of the batch.
func (e *Engine) ReviewAll(ctx context.Context, units []models.PromptUnit) ([]UnitResult, error) {
	results := make([]UnitResult, 0, len(units))

	for _, unit := range units {
		if err := e.limiter.Wait(ctx); err != nil {
			return results, err
		}

		result := e.ReviewUnit(ctx, unit)
		if result.Failed() {
			e.logger.Warn().
				Err(result.Err).
				Str("file", unit.Filename).
				Int("chunk", unit.ChunkIndex).
				Msg("review unit failed, excluding from aggregation")
		}
		results = append(results, result)
	}

	return results, nil
}

// ReviewUnit issues one LLM call for the unit. A contract violation is
// retried once with the same prompt; a second violation marks the unit
// failed. The model's risk_score is parsed but never propagated as the
// review score.
func (e *Engine) ReviewUnit(ctx context.Context, unit models.PromptUnit) UnitResult {
	result := UnitResult{Unit: unit}

	raw, err := e.callModel(ctx, unit.PromptText)
	if err != nil {
		result.Err = err
		return result
	}

	review, err := llm.ParseReview(raw, unit.Filename)

	var contractErr *llm.ContractError
	if errors.As(err, &contractErr) {
		e.logger.Warn().
			Str("file", unit.Filename).
			Str("reason", contractErr.Reason).
			Msg("malformed model output, retrying call once")

		raw, err = e.callModel(ctx, unit.PromptText)
		if err != nil {
			result.Err = err
			return result
		}
		review, err = llm.ParseReview(raw, unit.Filename)
	}

	if err != nil {
		result.Err = err
		return result
	}

	result.Review = review
	result.Usage = models.Usage{
		PromptTokens:     budget.EstimateTokens(unit.PromptText),
		CompletionTokens: budget.EstimateTokens(raw),
	}
	result.Usage.TotalTokens = result.Usage.PromptTokens + result.Usage.CompletionTokens

	return result
}

func (e *Engine) callModel(ctx context.Context, prompt string) (string, error) {
	var raw string

	err := retry.Do(ctx, retry.LLMConfig(), e.logger, func() error {
		callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
		defer cancel()

		var callErr error
		raw, callErr = e.model.Call(callCtx, prompt)
		return callErr
	})
	if err != nil {
		return "", err
	}
	return raw, nil
}
