package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/diffsentry/internal/store"
	"github.com/diffsentry/pkg/models"
)

type reviewResponse struct {
	models.ReviewRecord
	Findings []models.ReviewFinding `json:"findings"`
}

func (s *Server) listReviews(c echo.Context) error {
	repoID, err := strconv.ParseInt(c.QueryParam("repo_id"), 10, 64)
	if err != nil || repoID <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "repo_id query parameter is required"})
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	recs, err := s.reviews.ListReviews(c.Request().Context(), repoID, limit)
	if err != nil {
		s.logger.Error().Err(err).Int64("repo_id", repoID).Msg("Failed to list reviews")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list reviews"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"reviews": recs})
}

func (s *Server) getReviewByID(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid review id"})
	}

	rec, err := s.reviews.GetReview(c.Request().Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "review not found"})
	}
	if err != nil {
		s.logger.Error().Err(err).Int64("review_id", id).Msg("Failed to load review")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load review"})
	}

	findings, err := s.reviews.ListFindings(c.Request().Context(), id)
	if err != nil {
		s.logger.Error().Err(err).Int64("review_id", id).Msg("Failed to load findings")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load findings"})
	}

	return c.JSON(http.StatusOK, reviewResponse{ReviewRecord: *rec, Findings: findings})
}
