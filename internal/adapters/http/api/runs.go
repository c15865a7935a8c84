package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	service "github.com/okian/civicwatch/internal/app"
	"github.com/okian/civicwatch/internal/domain/model"
)

// RunsHandler triggers pipeline runs and reports the latest one.
type RunsHandler struct {
	runs    RunController
	sources SourceLister
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(runs RunController) *RunsHandler {
	return &RunsHandler{runs: runs}
}

type runRequest struct {
	SourceIDs []string `json:"source_ids"`
}

type runResponse struct {
	*service.PipelineRun
	Totals service.Totals `json:"totals"`
}

func newRunResponse(run *service.PipelineRun) runResponse {
	return runResponse{PipelineRun: run, Totals: run.Totals()}
}

// HandleTrigger handles POST /runs. The body is optional; when present it may
// name the sources to run.
func (h *RunsHandler) HandleTrigger(c *gin.Context) {
	const op = "api.trigger_run"
	var req runRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w: %w", op, ErrBadRequest, err))
			return
		}
	}
	run, err := h.runs.Trigger(c.Request.Context(), req.SourceIDs...)
	if err != nil {
		if errors.Is(err, service.ErrNoSources) {
			writeError(c, http.StatusUnprocessableEntity, "no_sources", err)
			return
		}
		writeError(c, http.StatusInternalServerError, "internal_error", fmt.Errorf("%s: %w", op, err))
		return
	}
	c.JSON(http.StatusOK, newRunResponse(run))
}

// HandleLast handles GET /runs/last.
func (h *RunsHandler) HandleLast(c *gin.Context) {
	run, ok := h.runs.Last()
	if !ok {
		writeError(c, http.StatusNotFound, "not_found", ErrNoRun)
		return
	}
	c.JSON(http.StatusOK, newRunResponse(run))
}

type sourcesResponse struct {
	Count   int                  `json:"count"`
	Sources []model.SourceConfig `json:"sources"`
}

// HandleSources handles GET /sources.
func (h *RunsHandler) HandleSources(c *gin.Context) {
	sources := []model.SourceConfig{}
	if h.sources != nil {
		sources = append(sources, h.sources.Sources()...)
	}
	c.JSON(http.StatusOK, sourcesResponse{Count: len(sources), Sources: sources})
}
