// Package handlers provides HTTP handlers for the portfolio dashboard.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/cfholanda/investrack/internal/domain"
	"github.com/cfholanda/investrack/internal/modules/dashboard"
	"github.com/cfholanda/investrack/internal/modules/equity"
)

// Handler provides HTTP handlers for dashboard endpoints.
type Handler struct {
	service *dashboard.Service
	log     zerolog.Logger
}

// NewHandler creates a new dashboard handler.
func NewHandler(service *dashboard.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "dashboard").Logger(),
	}
}

// RegisterRoutes mounts the dashboard routes on a router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/dashboard/summary", h.HandleSummary)
	r.Get("/api/dashboard/chart", h.HandleChart)
}

func displayCurrency(r *http.Request) domain.Currency {
	if c := r.URL.Query().Get("currency"); c != "" {
		return domain.Currency(c)
	}
	return domain.CurrencyUSD
}

// HandleSummary handles GET /api/dashboard/summary
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	user := r.Header.Get("X-User-ID")
	if user == "" {
		http.Error(w, "Missing user identity", http.StatusUnauthorized)
		return
	}

	summary, err := h.service.Summary(user, displayCurrency(r))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute summary")
		http.Error(w, "Failed to compute summary", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode summary response")
	}
}

// HandleChart handles GET /api/dashboard/chart
func (h *Handler) HandleChart(w http.ResponseWriter, r *http.Request) {
	user := r.Header.Get("X-User-ID")
	if user == "" {
		http.Error(w, "Missing user identity", http.StatusUnauthorized)
		return
	}

	period := r.URL.Query().Get("period")
	if period == "" {
		period = equity.PeriodSixMonths
	}

	chart, err := h.service.Chart(user, displayCurrency(r), period)
	if err != nil {
		if errors.Is(err, dashboard.ErrUnknownPeriod) {
			http.Error(w, "Unknown period", http.StatusBadRequest)
			return
		}
		h.log.Error().Err(err).Msg("Failed to build chart")
		http.Error(w, "Failed to build chart", http.StatusInternalServerError)
		return
	}
	if chart == nil {
		chart = []equity.Point{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(chart); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode chart response")
	}
}
