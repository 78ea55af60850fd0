package api

import (
	"net/http"

	"github.com/dingsen2/micronutrient-radar/internal/api/shared"
)

// Health handles GET /health.
func Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "ok"})
}
