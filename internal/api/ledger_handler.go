package api

import (
	"log/slog"
	"net/http"

	"github.com/dingsen2/micronutrient-radar/internal/api/shared"
	"github.com/dingsen2/micronutrient-radar/internal/domain"
	"github.com/dingsen2/micronutrient-radar/internal/platform/logger"
	"github.com/dingsen2/micronutrient-radar/internal/service"
)

// LedgerHandler serves the weekly nutrient ledgers.
type LedgerHandler struct {
	ledgers service.LedgerService
	logger  *slog.Logger
}

// NewLedgerHandler creates a LedgerHandler.
func NewLedgerHandler(ledgers service.LedgerService, logger *slog.Logger) *LedgerHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerHandler{
		ledgers: ledgers,
		logger:  logger.With("component", "ledger_handler"),
	}
}

// List handles GET /ledgers?weeks=N.
func (h *LedgerHandler) List(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}

	weeks, err := queryInt(r, "weeks", service.DefaultLedgerWeeks)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	ledgers, err := h.ledgers.ListWeeks(r.Context(), userID, weeks)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list ledgers")
		return
	}
	if ledgers == nil {
		ledgers = []*domain.NutrientLedger{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ledgers)
}

// Current handles GET /ledgers/current.
func (h *LedgerHandler) Current(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}

	ledger, err := h.ledgers.CurrentWeek(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to retrieve ledger")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ledger)
}
