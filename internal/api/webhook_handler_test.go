package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diffsentry/internal/store"
	"github.com/diffsentry/pkg/models"
)

const testSecret = "webhook-secret"

type fakeQueue struct {
	pr        models.PullRequest
	delivery  string
	calls     int
	duplicate bool
	err       error
}

func (f *fakeQueue) EnqueueReview(_ context.Context, pr models.PullRequest, deliveryID, _ string) (bool, error) {
	f.calls++
	f.pr = pr
	f.delivery = deliveryID
	if f.err != nil {
		return false, f.err
	}
	return !f.duplicate, nil
}

type fakeReviews struct {
	review   *models.ReviewRecord
	reviews  []models.ReviewRecord
	findings []models.ReviewFinding
}

func (f *fakeReviews) GetReview(_ context.Context, _ int64) (*models.ReviewRecord, error) {
	if f.review == nil {
		return nil, store.ErrNotFound
	}
	return f.review, nil
}

func (f *fakeReviews) ListReviews(_ context.Context, _ int64, _ int) ([]models.ReviewRecord, error) {
	return f.reviews, nil
}

func (f *fakeReviews) ListFindings(_ context.Context, _ int64) ([]models.ReviewFinding, error) {
	return f.findings, nil
}

const prPayload = `{
	"action": "%ACTION%",
	"number": 3,
	"pull_request": {
		"number": 3,
		"title": "Add feature",
		"draft": %DRAFT%,
		"head": {"sha": "abc123"}
	},
	"repository": {
		"name": "widgets",
		"owner": {"login": "acme"}
	},
	"installation": {"id": 42}
}`

func payloadFor(action string, draft bool) string {
	out := strings.Replace(prPayload, "%ACTION%", action, 1)
	if draft {
		return strings.Replace(out, "%DRAFT%", "true", 1)
	}
	return strings.Replace(out, "%DRAFT%", "false", 1)
}

func signBody(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func webhookRequest(t *testing.T, event, delivery, body string, signed bool) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", event)
	if delivery != "" {
		req.Header.Set("X-GitHub-Delivery", delivery)
	}
	if signed {
		req.Header.Set("X-Hub-Signature-256", signBody(testSecret, body))
	}
	return req
}

func newTestServer(queue *fakeQueue, reviews ReviewReader) *Server {
	if reviews == nil {
		reviews = &fakeReviews{}
	}
	return NewServer("127.0.0.1", 0, testSecret, queue, reviews, zerolog.Nop())
}

func TestWebhookEnqueuesReview(t *testing.T) {
	queue := &fakeQueue{}
	srv := newTestServer(queue, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, webhookRequest(t, "pull_request", "delivery-1", payloadFor("opened", false), true))

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, 1, queue.calls)
	assert.Equal(t, "delivery-1", queue.delivery)
	assert.Equal(t, models.PullRequest{
		Owner:          "acme",
		Repo:           "widgets",
		Number:         3,
		Title:          "Add feature",
		HeadSHA:        "abc123",
		InstallationID: 42,
	}, queue.pr)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	queue := &fakeQueue{}
	srv := newTestServer(queue, nil)

	req := webhookRequest(t, "pull_request", "delivery-1", payloadFor("opened", false), false)
	req.Header.Set("X-Hub-Signature-256", "sha256="+strings.Repeat("0", 64))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, queue.calls)
}

func TestWebhookRejectsMissingDeliveryID(t *testing.T) {
	queue := &fakeQueue{}
	srv := newTestServer(queue, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, webhookRequest(t, "pull_request", "", payloadFor("opened", false), true))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, queue.calls)
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	queue := &fakeQueue{}
	srv := newTestServer(queue, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, webhookRequest(t, "push", "delivery-2", `{"ref":"refs/heads/main"}`, true))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ignored")
	assert.Zero(t, queue.calls)
}

func TestWebhookIgnoresNonReviewableActions(t *testing.T) {
	for _, action := range []string{"labeled", "closed", "assigned", "edited"} {
		t.Run(action, func(t *testing.T) {
			queue := &fakeQueue{}
			srv := newTestServer(queue, nil)

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, webhookRequest(t, "pull_request", "delivery-3", payloadFor(action, false), true))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Zero(t, queue.calls)
		})
	}
}

func TestWebhookReviewableActions(t *testing.T) {
	for _, action := range []string{"opened", "synchronize", "reopened", "ready_for_review"} {
		t.Run(action, func(t *testing.T) {
			queue := &fakeQueue{}
			srv := newTestServer(queue, nil)

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, webhookRequest(t, "pull_request", "delivery-4", payloadFor(action, false), true))

			assert.Equal(t, http.StatusAccepted, rec.Code)
			assert.Equal(t, 1, queue.calls)
		})
	}
}

func TestWebhookIgnoresDrafts(t *testing.T) {
	queue := &fakeQueue{}
	srv := newTestServer(queue, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, webhookRequest(t, "pull_request", "delivery-5", payloadFor("opened", true), true))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, queue.calls)
}

func TestWebhookDuplicateDelivery(t *testing.T) {
	queue := &fakeQueue{duplicate: true}
	srv := newTestServer(queue, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, webhookRequest(t, "pull_request", "delivery-6", payloadFor("opened", false), true))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "duplicate")
}

func TestWebhookEnqueueFailure(t *testing.T) {
	queue := &fakeQueue{err: errors.New("queue down")}
	srv := newTestServer(queue, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, webhookRequest(t, "pull_request", "delivery-7", payloadFor("opened", false), true))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(&fakeQueue{}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestListReviewsRequiresRepoID(t *testing.T) {
	srv := newTestServer(&fakeQueue{}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reviews", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListReviews(t *testing.T) {
	reviews := &fakeReviews{reviews: []models.ReviewRecord{{ID: 1, RepoID: 7, RiskScore: 25}}}
	srv := newTestServer(&fakeQueue{}, reviews)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reviews?repo_id=7", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"risk_score":25`)
}

func TestGetReviewByID(t *testing.T) {
	reviews := &fakeReviews{
		review: &models.ReviewRecord{ID: 9, RiskScore: 40},
		findings: []models.ReviewFinding{
			{File: "main.go", Line: 2, Severity: models.SeverityHigh, Category: models.CategorySecurity, Description: "issue"},
		},
	}
	srv := newTestServer(&fakeQueue{}, reviews)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reviews/9", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"findings"`)
	assert.Contains(t, rec.Body.String(), "main.go")
}

func TestGetReviewByIDNotFound(t *testing.T) {
	srv := newTestServer(&fakeQueue{}, &fakeReviews{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reviews/123", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
