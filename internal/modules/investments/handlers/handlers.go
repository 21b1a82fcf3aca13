// Package handlers provides HTTP handlers for investment management.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/cfholanda/investrack/internal/domain"
	"github.com/cfholanda/investrack/internal/modules/equity"
	"github.com/cfholanda/investrack/internal/modules/investments"
)

// Handler provides HTTP handlers for investment endpoints. The user identity
// comes from the X-User-ID header, set by the trusted proxy in front of the
// service.
type Handler struct {
	service *investments.Service
	log     zerolog.Logger
}

// NewHandler creates a new investments handler.
func NewHandler(service *investments.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "investments").Logger(),
	}
}

// RegisterRoutes mounts the investment routes on a router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/investments", h.HandleList)
	r.Post("/api/investments", h.HandleCreate)
	r.Post("/api/investments/refresh-prices", h.HandleRefreshPrices)
	r.Get("/api/investments/{id}", h.HandleGet)
	r.Put("/api/investments/{id}", h.HandleUpdate)
	r.Delete("/api/investments/{id}", h.HandleDelete)
	r.Get("/api/investments/{id}/metrics", h.HandleMetrics)
	r.Get("/api/investments/{id}/equity-series", h.HandleEquitySeries)
	r.Get("/api/investments/{id}/transactions", h.HandleListTransactions)
	r.Post("/api/investments/{id}/transactions", h.HandleAddTransaction)
	r.Delete("/api/investments/{id}/transactions/{transactionId}", h.HandleDeleteTransaction)
	r.Get("/api/investments/{id}/dividends", h.HandleListDividends)
	r.Post("/api/investments/{id}/dividends", h.HandleAddDividend)
	r.Delete("/api/investments/{id}/dividends/{dividendId}", h.HandleDeleteDividend)
	r.Post("/api/investments/{id}/dividends/sync", h.HandleSyncDividends)
}

// pageBounds resolves optional limit/page query parameters into slice bounds
// over a list of n items. Without a limit the whole list is returned.
func pageBounds(r *http.Request, n int) (int, int) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return 0, n
	}
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	if start > n {
		start = n
	}
	end := start + limit
	if end > n {
		end = n
	}
	return start, end
}

func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get("X-User-ID")
	if id == "" {
		http.Error(w, "Missing user identity", http.StatusUnauthorized)
		return "", false
	}
	return id, true
}

func (h *Handler) respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, investments.ErrNotFound) {
		http.Error(w, msg+": not found", http.StatusNotFound)
		return
	}
	http.Error(w, msg, http.StatusInternalServerError)
}

// HandleList handles GET /api/investments
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListByUser(user)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list investments")
		h.fail(w, err, "Failed to list investments")
		return
	}
	if list == nil {
		list = []domain.Investment{}
	}
	h.respond(w, http.StatusOK, list)
}

// HandleCreate handles POST /api/investments
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}

	var in investments.NewInvestmentInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	inv, err := h.service.CreateInvestment(user, in)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", in.Symbol).Msg("Failed to create investment")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.respond(w, http.StatusCreated, inv)
}

// HandleGet handles GET /api/investments/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}

	inv, err := h.service.Get(user, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err, "Failed to get investment")
		return
	}
	h.respond(w, http.StatusOK, inv)
}

// HandleUpdate handles PUT /api/investments/{id}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}

	var in investments.UpdateInvestmentInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	inv, err := h.service.UpdateInvestment(user, chi.URLParam(r, "id"), in)
	if err != nil {
		if errors.Is(err, investments.ErrNotFound) {
			http.Error(w, "Investment not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Msg("Failed to update investment")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.respond(w, http.StatusOK, inv)
}

// HandleDelete handles DELETE /api/investments/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteInvestment(user, chi.URLParam(r, "id")); err != nil {
		h.log.Error().Err(err).Msg("Failed to delete investment")
		h.fail(w, err, "Failed to delete investment")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMetrics handles GET /api/investments/{id}/metrics
func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}

	m, err := h.service.Metrics(user, chi.URLParam(r, "id"))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute metrics")
		h.fail(w, err, "Failed to compute metrics")
		return
	}
	h.respond(w, http.StatusOK, m)
}

// HandleEquitySeries handles GET /api/investments/{id}/equity-series
func (h *Handler) HandleEquitySeries(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}

	opts := equity.Options{
		StopWhenZero: r.URL.Query().Get("stopWhenZero") == "true",
	}
	series, err := h.service.EquitySeries(user, chi.URLParam(r, "id"), opts)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build equity series")
		h.fail(w, err, "Failed to build equity series")
		return
	}
	if series == nil {
		series = []equity.Point{}
	}
	h.respond(w, http.StatusOK, series)
}

// HandleListTransactions handles GET /api/investments/{id}/transactions
func (h *Handler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}

	list, err := h.service.Transactions(user, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err, "Failed to list transactions")
		return
	}
	if list == nil {
		list = []domain.Transaction{}
	}
	start, end := pageBounds(r, len(list))
	h.respond(w, http.StatusOK, list[start:end])
}

// HandleAddTransaction handles POST /api/investments/{id}/transactions
func (h *Handler) HandleAddTransaction(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}

	var in investments.NewTransactionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	record, err := h.service.AddTransaction(user, chi.URLParam(r, "id"), in)
	if err != nil {
		if errors.Is(err, investments.ErrNotFound) {
			http.Error(w, "Investment not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Msg("Failed to add transaction")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.respond(w, http.StatusCreated, record)
}

// HandleDeleteTransaction handles DELETE /api/investments/{id}/transactions/{transactionId}
func (h *Handler) HandleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}

	err := h.service.DeleteTransaction(user, chi.URLParam(r, "id"), chi.URLParam(r, "transactionId"))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to delete transaction")
		h.fail(w, err, "Failed to delete transaction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListDividends handles GET /api/investments/{id}/dividends
func (h *Handler) HandleListDividends(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}

	list, err := h.service.Dividends(user, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err, "Failed to list dividends")
		return
	}
	if list == nil {
		list = []domain.Dividend{}
	}
	start, end := pageBounds(r, len(list))
	h.respond(w, http.StatusOK, list[start:end])
}

// HandleAddDividend handles POST /api/investments/{id}/dividends
func (h *Handler) HandleAddDividend(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}

	var d domain.Dividend
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	created, err := h.service.AddDividend(user, chi.URLParam(r, "id"), d)
	if err != nil {
		if errors.Is(err, investments.ErrNotFound) {
			http.Error(w, "Investment not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.respond(w, http.StatusCreated, created)
}

// HandleDeleteDividend handles DELETE /api/investments/{id}/dividends/{dividendId}
func (h *Handler) HandleDeleteDividend(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}

	err := h.service.DeleteDividend(user, chi.URLParam(r, "id"), chi.URLParam(r, "dividendId"))
	if err != nil {
		h.fail(w, err, "Failed to delete dividend")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSyncDividends handles POST /api/investments/{id}/dividends/sync
func (h *Handler) HandleSyncDividends(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}

	result, err := h.service.SyncDividends(user, chi.URLParam(r, "id"))
	if err != nil {
		h.log.Error().Err(err).Msg("Dividend sync failed")
		h.fail(w, err, "Dividend sync failed")
		return
	}
	h.respond(w, http.StatusOK, result)
}

// HandleRefreshPrices handles POST /api/investments/refresh-prices
func (h *Handler) HandleRefreshPrices(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}

	failed, err := h.service.RefreshPrices(user)
	if err != nil {
		h.log.Error().Err(err).Msg("Price refresh failed")
		h.fail(w, err, "Price refresh failed")
		return
	}
	if failed == nil {
		failed = []string{}
	}
	h.respond(w, http.StatusOK, map[string]interface{}{"failedSymbols": failed})
}
