// Package api exposes stored events and pipeline runs over HTTP for
// reporting collaborators.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/okian/civicwatch/internal/adapters/repository"
	service "github.com/okian/civicwatch/internal/app"
	"github.com/okian/civicwatch/internal/domain/model"
	"github.com/okian/civicwatch/pkg/logger"
)

const (
	defaultMaxLimit = 500
	defaultNewSince = 24 * time.Hour
	defaultUpcoming = 7 * 24 * time.Hour
)

// EventReader is the read side of the event store.
type EventReader interface {
	Get(ctx context.Context, id string) (model.CivicEvent, error)
	Count(ctx context.Context) (int, error)
	GetWhatsNew(ctx context.Context, since time.Duration) ([]model.CivicEvent, error)
	GetUpcoming(ctx context.Context, window time.Duration) ([]model.CivicEvent, error)
	GetEvents(ctx context.Context, f repository.Filter) ([]model.CivicEvent, error)
	GetByEntity(ctx context.Context, name string) ([]model.CivicEvent, error)
}

// RunController starts pipeline runs and reports the latest one.
type RunController interface {
	Trigger(ctx context.Context, sourceIDs ...string) (*service.PipelineRun, error)
	Last() (*service.PipelineRun, bool)
}

// SourceLister reports the configured sources.
type SourceLister interface {
	Sources() []model.SourceConfig
}

// Server wires HTTP routes for the query and ops API.
type Server struct {
	healthHandler *HealthHandler
	eventsHandler *EventsHandler
	runsHandler   *RunsHandler
	logger        logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used by the recovery middleware.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSourceLister exposes configured sources on GET /sources.
func WithSourceLister(l SourceLister) Option {
	return func(s *Server) {
		if l != nil {
			s.runsHandler.sources = l
		}
	}
}

// WithMaxLimit caps the limit accepted by GET /events.
func WithMaxLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.eventsHandler.maxLimit = n
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(events EventReader, runs RunController, opts ...Option) *Server {
	s := &Server{
		healthHandler: NewHealthHandler(events, runs),
		eventsHandler: NewEventsHandler(events),
		runsHandler:   NewRunsHandler(runs),
		logger:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns a gin engine carrying every route and middleware.
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.Use(Recovery(s.logger), MetricsMiddleware())
	s.Register(r)
	return r
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r gin.IRouter) {
	r.GET("/healthz", s.healthHandler.HandleHealth)
	r.GET("/metrics", s.healthHandler.HandleMetrics)

	r.GET("/events", s.eventsHandler.HandleList)
	r.GET("/events/new", s.eventsHandler.HandleWhatsNew)
	r.GET("/events/upcoming", s.eventsHandler.HandleUpcoming)
	r.GET("/events/search", s.eventsHandler.HandleSearch)
	r.GET("/events/:id", s.eventsHandler.HandleGet)

	r.GET("/sources", s.runsHandler.HandleSources)
	r.POST("/runs", s.runsHandler.HandleTrigger)
	r.GET("/runs/last", s.runsHandler.HandleLast)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(c *gin.Context, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, errorResponse{Code: code, Message: msg})
}

// writeStoreError maps store errors onto HTTP statuses.
func writeStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, repository.ErrInvalidSpan):
		writeError(c, http.StatusBadRequest, "bad_request", err)
	default:
		writeError(c, http.StatusInternalServerError, "internal_error", err)
	}
}

type listResponse struct {
	Count  int                `json:"count"`
	Events []model.CivicEvent `json:"events"`
}

func writeEvents(c *gin.Context, events []model.CivicEvent) {
	if events == nil {
		events = []model.CivicEvent{}
	}
	c.JSON(http.StatusOK, listResponse{Count: len(events), Events: events})
}
