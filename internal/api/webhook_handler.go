package api

import (
	"net/http"

	"github.com/google/go-github/v73/github"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/diffsentry/pkg/models"
)

// Pull request actions that trigger a review. Everything else, including
// label and assignee churn, is acknowledged and dropped.
var reviewableActions = map[string]struct{}{
	"opened":           {},
	"synchronize":      {},
	"reopened":         {},
	"ready_for_review": {},
}

// handleWebhook validates the signature, filters for reviewable pull
// request events, and enqueues a job keyed on the delivery id. The host
// retries deliveries it considers failed, so anything we have decided
// about gets a 2xx even when we do no work.
func (s *Server) handleWebhook(c echo.Context) error {
	req := c.Request()

	payload, err := github.ValidatePayload(req, s.webhookSecret)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Rejected webhook with bad signature or payload")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid signature or payload"})
	}

	deliveryID := github.DeliveryID(req)
	if deliveryID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing delivery id"})
	}

	event, err := github.ParseWebHook(github.WebHookType(req), payload)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed payload"})
	}

	prEvent, ok := event.(*github.PullRequestEvent)
	if !ok {
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored", "reason": "not a pull_request event"})
	}

	if _, ok := reviewableActions[prEvent.GetAction()]; !ok {
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored", "reason": "action not reviewable"})
	}

	if prEvent.GetPullRequest().GetDraft() {
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored", "reason": "draft pull request"})
	}

	pr := models.PullRequest{
		Owner:          prEvent.GetRepo().GetOwner().GetLogin(),
		Repo:           prEvent.GetRepo().GetName(),
		Number:         prEvent.GetPullRequest().GetNumber(),
		Title:          prEvent.GetPullRequest().GetTitle(),
		HeadSHA:        prEvent.GetPullRequest().GetHead().GetSHA(),
		InstallationID: prEvent.GetInstallation().GetID(),
	}

	if pr.Owner == "" || pr.Repo == "" || pr.Number == 0 || pr.InstallationID == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "payload missing required pull request fields"})
	}

	traceID := uuid.NewString()

	inserted, err := s.queue.EnqueueReview(req.Context(), pr, deliveryID, traceID)
	if err != nil {
		s.logger.Error().Err(err).Str("delivery_id", deliveryID).Msg("Failed to enqueue review")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to enqueue review"})
	}

	if !inserted {
		s.logger.Info().Str("delivery_id", deliveryID).Msg("Duplicate delivery, review already enqueued")
		return c.JSON(http.StatusOK, map[string]string{"status": "duplicate", "delivery_id": deliveryID})
	}

	s.logger.Info().
		Str("delivery_id", deliveryID).
		Str("trace_id", traceID).
		Str("pr", pr.FullName()).
		Int("number", pr.Number).
		Msg("Enqueued review")

	return c.JSON(http.StatusAccepted, map[string]string{
		"status":      "queued",
		"delivery_id": deliveryID,
		"trace_id":    traceID,
	})
}
