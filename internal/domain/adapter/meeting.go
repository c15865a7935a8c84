package adapter

import (
	"strings"

	"github.com/okian/civicwatch/internal/domain/extract"
	"github.com/okian/civicwatch/internal/domain/model"
)

// Meeting adapts meeting portal listings.
type Meeting struct {
	builder
}

// NewMeeting returns a meeting adapter using x for extraction.
func NewMeeting(x extract.Extractor) *Meeting { return &Meeting{builder{x: x}} }

// Type implements Adapter.
func (*Meeting) Type() model.SourceType { return model.SourceMeeting }

// Adapt implements Adapter.
func (m *Meeting) Adapt(rec Record, cfg model.SourceConfig) (model.CivicEvent, error) {
	r, ok := rec.(*MeetingRecord)
	if !ok || r == nil {
		return model.CivicEvent{}, wrongVariant(model.SourceMeeting, rec)
	}
	id := strings.TrimSpace(string(r.ID))
	title := strings.TrimSpace(r.Title)
	if id == "" {
		return model.CivicEvent{}, skipf("meeting record without id")
	}
	if title == "" {
		return model.CivicEvent{}, skipf("meeting %s without title", id)
	}

	ev := model.CivicEvent{
		EventID:     EventID(cfg.ID, model.SourceMeeting, id),
		EventType:   model.EventMeeting,
		SourceID:    cfg.ID,
		Timestamp:   r.Date.Time,
		Title:       title,
		Description: strings.TrimSpace(r.Description),
		Documents:   documents(r.Attachments),
		RawData:     r.Raw(),
	}
	if r.Location != "" || r.Lat != nil || r.Lon != nil {
		ev.Location = &model.Location{Address: strings.TrimSpace(r.Location), Lat: r.Lat, Lon: r.Lon}
	}

	var known []model.Entity
	if body := strings.TrimSpace(r.Body); body != "" {
		known = append(known, model.Entity{Name: body, Kind: model.EntityOrganization})
	}
	m.finish(&ev, parts{
		cfg:        cfg,
		typeTag:    "meeting",
		categories: append(append([]string{}, r.Categories...), r.Body),
		text:       joinText(title, ev.Description),
		entities:   known,
	})
	return ev, nil
}
