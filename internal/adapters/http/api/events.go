package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/okian/civicwatch/internal/adapters/repository"
)

// EventsHandler serves event queries.
type EventsHandler struct {
	events   EventReader
	maxLimit int
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(events EventReader) *EventsHandler {
	return &EventsHandler{events: events, maxLimit: defaultMaxLimit}
}

// HandleList handles GET /events?source_id=&tags=a,b&since=&limit=.
func (h *EventsHandler) HandleList(c *gin.Context) {
	const op = "api.list_events"
	f := repository.Filter{SourceID: strings.TrimSpace(c.Query("source_id"))}
	for _, raw := range c.QueryArray("tags") {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.Tags = append(f.Tags, t)
			}
		}
	}
	if v := c.Query("since"); v != "" {
		since, err := parseSince(v, time.Now())
		if err != nil {
			writeError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w: since: %w", op, ErrBadRequest, err))
			return
		}
		f.Since = since
	}
	f.Limit = h.maxLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w: limit must be a positive integer", op, ErrBadRequest))
			return
		}
		if n > h.maxLimit {
			writeError(c, http.StatusBadRequest, "limit_exceeded", fmt.Errorf("%s: %w: limit above %d", op, ErrBadRequest, h.maxLimit))
			return
		}
		f.Limit = n
	}

	events, err := h.events.GetEvents(c.Request.Context(), f)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	writeEvents(c, events)
}

// HandleWhatsNew handles GET /events/new?since=24h.
func (h *EventsHandler) HandleWhatsNew(c *gin.Context) {
	since, ok := windowParam(c, "since", defaultNewSince)
	if !ok {
		return
	}
	events, err := h.events.GetWhatsNew(c.Request.Context(), since)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	writeEvents(c, events)
}

// HandleUpcoming handles GET /events/upcoming?window=7d.
func (h *EventsHandler) HandleUpcoming(c *gin.Context) {
	window, ok := windowParam(c, "window", defaultUpcoming)
	if !ok {
		return
	}
	events, err := h.events.GetUpcoming(c.Request.Context(), window)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	writeEvents(c, events)
}

// HandleSearch handles GET /events/search?entity=.
func (h *EventsHandler) HandleSearch(c *gin.Context) {
	name := strings.TrimSpace(c.Query("entity"))
	if name == "" {
		writeError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("api.search_events: %w: missing entity", ErrBadRequest))
		return
	}
	events, err := h.events.GetByEntity(c.Request.Context(), name)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	writeEvents(c, events)
}

// HandleGet handles GET /events/:id.
func (h *EventsHandler) HandleGet(c *gin.Context) {
	ev, err := h.events.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

func windowParam(c *gin.Context, name string, def time.Duration) (time.Duration, bool) {
	v := c.Query(name)
	if v == "" {
		return def, true
	}
	d, err := parseWindow(v)
	if err != nil || d <= 0 {
		writeError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %s must be a positive duration like 36h or 7d", ErrBadRequest, name))
		return 0, false
	}
	return d, true
}

// parseWindow accepts Go durations plus a whole-day suffix, e.g. "7d".
func parseWindow(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if days, ok := strings.CutSuffix(v, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid day count %q", v)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(v)
}

// parseSince accepts an RFC 3339 timestamp, a date, or a look-back window.
func parseSince(v string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	d, err := parseWindow(v)
	if err != nil || d <= 0 {
		return time.Time{}, fmt.Errorf("expected RFC 3339 time, date or positive window, got %q", v)
	}
	return now.Add(-d), nil
}
