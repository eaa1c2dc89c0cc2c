package api

import (
	"casescraper/internal/domain"
	"casescraper/internal/storage"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func (s *Server) handleScrapeRequest(w http.ResponseWriter, r *http.Request) {
	var req domain.ScrapeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	if !s.running.CompareAndSwap(false, true) {
		s.respondWithError(w, http.StatusConflict, "A scrape run is already in progress")
		return
	}
	defer s.running.Store(false)

	s.logger.Info("scrape run triggered", zap.String("county", req.County))
	summary := s.scraper.Run(r.Context())
	s.logger.Info("scrape run finished",
		zap.Int("pages_fetched", summary.PagesFetched),
		zap.Int("solved", summary.Solved),
		zap.Int("extracted", summary.Extracted),
		zap.Int("pages_failed", summary.PagesFailed))

	s.respondWithJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCaseLookup(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	if caseID == "" {
		s.respondWithError(w, http.StatusBadRequest, "caseID path parameter is required")
		return
	}

	record, updatedAt, err := s.pgStore.FindByCaseID(r.Context(), caseID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondWithError(w, http.StatusNotFound, "Case not found")
			return
		}
		s.logger.Error("failed to look up case", zap.String("case_id", caseID), zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not retrieve case")
		return
	}

	s.respondWithJSON(w, http.StatusOK, domain.CaseStatusResponse{
		CaseID:          record.CaseID,
		CaseStatus:      record.CaseStatus,
		FilingType:      record.FilingType,
		PropertyAddress: record.PropertyAddress,
		NeedsReview:     record.NeedsReview,
		UpdatedAt:       updatedAt,
	})
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	healthStatus := make(map[string]string)

	// Check Postgres
	if err := s.pgStore.Ping(ctx); err != nil {
		healthStatus["postgres"] = "unhealthy"
		s.logger.Error("health check failed for postgres", zap.Error(err))
	} else {
		healthStatus["postgres"] = "healthy"
	}

	// Check Redis
	if err := s.redisStore.Ping(ctx); err != nil {
		healthStatus["redis"] = "unhealthy"
		s.logger.Error("health check failed for redis", zap.Error(err))
	} else {
		healthStatus["redis"] = "healthy"
	}

	isHealthy := healthStatus["postgres"] == "healthy" && healthStatus["redis"] == "healthy"
	if !isHealthy {
		s.respondWithJSON(w, http.StatusServiceUnavailable, healthStatus)
		return
	}

	s.respondWithJSON(w, http.StatusOK, healthStatus)
}

// --- Helper Functions ---

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
