package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/civicwatch/pkg/metrics"
)

// HealthHandler handles liveness and metrics requests.
type HealthHandler struct {
	events  EventReader
	runs    RunController
	metrics http.Handler
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(events EventReader, runs RunController) *HealthHandler {
	return &HealthHandler{
		events:  events,
		runs:    runs,
		metrics: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}),
	}
}

type healthResponse struct {
	Status    string `json:"status"`
	Events    int    `json:"events"`
	LastRunID string `json:"last_run_id,omitempty"`
}

// HandleHealth handles GET /healthz. It reports unavailable when the store
// can't be read.
func (h *HealthHandler) HandleHealth(c *gin.Context) {
	n, err := h.events.Count(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusServiceUnavailable, "store_unavailable", err)
		return
	}
	resp := healthResponse{Status: "ok", Events: n}
	if run, ok := h.runs.Last(); ok {
		resp.LastRunID = run.RunID
	}
	c.JSON(http.StatusOK, resp)
}

// HandleMetrics handles GET /metrics from the process registry.
func (h *HealthHandler) HandleMetrics(c *gin.Context) {
	h.metrics.ServeHTTP(c.Writer, c.Request)
}
