package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	chains  []uint64
	indexer bool
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler reporting the configured chains
// and whether the indexer is running.
func NewHealthHandler(chains []uint64, indexer bool, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{chains: chains, indexer: indexer, logger: logger}
}

// HealthCheck responds with the server status and deployment shape.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"chains":    h.chains,
		"indexer":   h.indexer,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
