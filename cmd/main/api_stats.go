package main

import (
	"log/slog"
	"net/http"

	"github.com/CTAG07/sdxstore/pkg/store"
	"github.com/CTAG07/sdxstore/pkg/templating"
)

// StatsSummary is the body of /api/stats/summary.
type StatsSummary struct {
	store.Summary
	Templates int `json:"templates"`
}

// StatsAPI holds the dependencies for the statistics handlers.
type StatsAPI struct {
	store  *store.Store
	tm     *templating.TemplateManager
	logger *slog.Logger
}

func NewStatsAPI(st *store.Store, tm *templating.TemplateManager, logger *slog.Logger) *StatsAPI {
	return &StatsAPI{
		store:  st,
		tm:     tm,
		logger: logger,
	}
}

func (s *StatsAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/stats/summary", s.handleSummary)
}

func (s *StatsAPI) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if !requireScope(w, r, scopeStatsRead) {
		return
	}

	summary, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("Failed to query store statistics", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database query failed")
		return
	}
	respondWithJSON(w, http.StatusOK, StatsSummary{Summary: summary, Templates: len(s.tm.GetTemplateNames())})
}
