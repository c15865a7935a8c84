package adapter

import (
	"strings"

	"github.com/okian/civicwatch/internal/domain/extract"
	"github.com/okian/civicwatch/internal/domain/model"
)

// Notice adapts legal and public notices.
type Notice struct {
	builder
}

// NewNotice returns a notice adapter using x for extraction.
func NewNotice(x extract.Extractor) *Notice { return &Notice{builder{x: x}} }

// Type implements Adapter.
func (*Notice) Type() model.SourceType { return model.SourceNotice }

// Adapt implements Adapter. Notices without their own id fall back to the
// notice URL as natural key. A hearing date makes the notice a hearing.
func (n *Notice) Adapt(rec Record, cfg model.SourceConfig) (model.CivicEvent, error) {
	r, ok := rec.(*NoticeRecord)
	if !ok || r == nil {
		return model.CivicEvent{}, wrongVariant(model.SourceNotice, rec)
	}
	key := strings.TrimSpace(string(r.NoticeID))
	if key == "" {
		key = strings.TrimSpace(r.URL)
	}
	if key == "" {
		return model.CivicEvent{}, skipf("notice record without notice_id or url")
	}
	title := strings.TrimSpace(r.Headline)
	if title == "" {
		return model.CivicEvent{}, skipf("notice %s without headline", key)
	}

	ev := model.CivicEvent{
		EventID:     EventID(cfg.ID, model.SourceNotice, key),
		EventType:   model.EventPublicNotice,
		SourceID:    cfg.ID,
		Timestamp:   r.Published.Time,
		Title:       title,
		Description: strings.TrimSpace(r.Body),
		Documents:   documents(r.Attachments),
		RawData:     r.Raw(),
	}
	if u := strings.TrimSpace(r.URL); u != "" {
		ev.Documents = append(ev.Documents, model.Document{URL: u, Type: "notice"})
	}
	if a := strings.TrimSpace(r.Address); a != "" {
		ev.Location = &model.Location{Address: a}
	}

	var extra []string
	if !r.HearingDate.IsZero() {
		ev.Timestamp = r.HearingDate.Time
		extra = append(extra, "hearing")
	}
	n.finish(&ev, parts{
		cfg:        cfg,
		typeTag:    "notice",
		categories: []string{r.Category},
		text:       joinText(title, ev.Description),
		extraTags:  extra,
	})
	return ev, nil
}
