package server

import (
	"net/http"
	"strconv"

	"github.com/vertextoedge/download-controller/internal/domain/event"
	"github.com/vertextoedge/download-controller/internal/port"
	"go.uber.org/zap"
)

// DebugHandler handles history and statistics requests
type DebugHandler struct {
	history      port.HistoryRepository
	metrics      *event.MetricsHandler
	defaultLimit int
	logger       *zap.Logger
}

// NewDebugHandler creates a new DebugHandler
func NewDebugHandler(history port.HistoryRepository, metrics *event.MetricsHandler, defaultLimit int, logger *zap.Logger) *DebugHandler {
	return &DebugHandler{
		history:      history,
		metrics:      metrics,
		defaultLimit: defaultLimit,
		logger:       logger,
	}
}

// HandleStats returns notification counters and history totals
func (h *DebugHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{}

	if h.metrics != nil {
		response["notifications"] = h.metrics.GetMetrics()
	}

	if h.history != nil {
		counts, err := h.history.CountByStatus()
		if err != nil {
			h.logger.Error("failed to get history stats", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to get history stats")
			return
		}
		response["history"] = counts
	}

	writeJSON(w, http.StatusOK, response)
}

// HandleHistory lists recorded transfers, newest first: GET /history?limit=N
func (h *DebugHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history disabled")
		return
	}

	limit := h.defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := h.history.ListTransfers(limit)
	if err != nil {
		h.logger.Error("failed to list history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transfers": records})
}
