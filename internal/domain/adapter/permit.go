package adapter

import (
	"strings"

	"github.com/okian/civicwatch/internal/domain/extract"
	"github.com/okian/civicwatch/internal/domain/model"
)

// issuedStatuses are registry statuses meaning the permit was granted.
var issuedStatuses = map[string]bool{
	"issued":   true,
	"approved": true,
	"granted":  true,
	"finaled":  true,
	"final":    true,
}

// Permit adapts permit registry rows.
type Permit struct {
	builder
}

// NewPermit returns a permit adapter using x for extraction.
func NewPermit(x extract.Extractor) *Permit { return &Permit{builder{x: x}} }

// Type implements Adapter.
func (*Permit) Type() model.SourceType { return model.SourcePermit }

// Adapt implements Adapter. A permit keeps its EventID when it moves from
// application to issued; only its type and content change.
func (p *Permit) Adapt(rec Record, cfg model.SourceConfig) (model.CivicEvent, error) {
	r, ok := rec.(*PermitRecord)
	if !ok || r == nil {
		return model.CivicEvent{}, wrongVariant(model.SourcePermit, rec)
	}
	num := strings.TrimSpace(string(r.PermitNumber))
	if num == "" {
		return model.CivicEvent{}, skipf("permit record without permit_number")
	}
	title := strings.TrimSpace(r.Title)
	if title == "" && strings.TrimSpace(r.PermitType) != "" {
		title = strings.TrimSpace(r.PermitType) + " permit " + num
	}
	if title == "" {
		return model.CivicEvent{}, skipf("permit %s without title", num)
	}

	ev := model.CivicEvent{
		EventID:     EventID(cfg.ID, model.SourcePermit, num),
		EventType:   model.EventPermitApplication,
		SourceID:    cfg.ID,
		Timestamp:   r.FiledDate.Time,
		Title:       title,
		Description: strings.TrimSpace(r.Description),
		Documents:   documents(r.Attachments),
		RawData:     r.Raw(),
	}
	if issuedStatuses[strings.ToLower(strings.TrimSpace(r.Status))] || !r.IssuedDate.IsZero() {
		ev.EventType = model.EventPermitIssued
		if !r.IssuedDate.IsZero() {
			ev.Timestamp = r.IssuedDate.Time
		}
	}
	if r.Address != "" || r.Parcel != "" {
		ev.Location = &model.Location{Address: strings.TrimSpace(r.Address), Parcel: strings.TrimSpace(r.Parcel)}
	}

	known := []model.Entity{{Name: num, Kind: model.EntityCaseNumber}}
	if a := strings.TrimSpace(r.Applicant); a != "" {
		known = append(known, model.Entity{Name: a, Kind: model.EntityPerson})
	}
	if a := strings.TrimSpace(r.Address); a != "" {
		known = append(known, model.Entity{Name: a, Kind: model.EntityAddress})
	}
	p.finish(&ev, parts{
		cfg:        cfg,
		typeTag:    "permit",
		categories: []string{r.Category, r.PermitType},
		text:       joinText(title, ev.Description),
		entities:   known,
	})
	return ev, nil
}
