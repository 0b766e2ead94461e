// Package api exposes the HTTP surface: the webhook receiver that feeds
// the job queue and a small read API over persisted reviews.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/diffsentry/pkg/models"
)

// Enqueuer inserts review jobs. The bool reports whether the job was new
// or skipped as a duplicate delivery.
type Enqueuer interface {
	EnqueueReview(ctx context.Context, pr models.PullRequest, deliveryID, traceID string) (bool, error)
}

// ReviewReader is the slice of the store the read API serves from.
type ReviewReader interface {
	GetReview(ctx context.Context, reviewID int64) (*models.ReviewRecord, error)
	ListReviews(ctx context.Context, repoID int64, limit int) ([]models.ReviewRecord, error)
	ListFindings(ctx context.Context, reviewID int64) ([]models.ReviewFinding, error)
}

// Server represents the API server.
type Server struct {
	echo          *echo.Echo
	host          string
	port          int
	webhookSecret []byte
	queue         Enqueuer
	reviews       ReviewReader
	logger        zerolog.Logger
}

// NewServer creates the server with routes and middleware installed.
func NewServer(host string, port int, webhookSecret string, queue Enqueuer, reviews ReviewReader, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo:          e,
		host:          host,
		port:          port,
		webhookSecret: []byte(webhookSecret),
		queue:         queue,
		reviews:       reviews,
		logger:        logger.With().Str("component", "api").Logger(),
	}

	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	s.echo.POST("/webhooks/github", s.handleWebhook)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/reviews", s.listReviews)
	v1.GET("/reviews/:id", s.getReviewByID)
}

// Start runs the server until interrupted, then shuts down gracefully.
func (s *Server) Start() error {
	go func() {
		addr := fmt.Sprintf("%s:%d", s.host, s.port)
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying http.Handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
