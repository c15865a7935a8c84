// Package adapter turns raw per-source records into CivicEvents.
//
// Adapters are pure: the same record and source config always produce the
// same event, including its EventID, which is what makes re-ingestion
// idempotent downstream.
package adapter

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/okian/civicwatch/internal/domain/extract"
	"github.com/okian/civicwatch/internal/domain/model"
)

// Namespace seeds the name-based UUIDs used for event ids.
var Namespace = uuid.MustParse("5b0c9f0e-2f7a-4d1e-9b6c-3a8e1d4f7c21")

// Adapter converts one raw record of its source type into a CivicEvent.
// It returns an error wrapping ErrSkip when the record can't be used.
type Adapter interface {
	Type() model.SourceType
	Adapt(rec Record, cfg model.SourceConfig) (model.CivicEvent, error)
}

// EventID derives the stable id for a natural key within a source.
func EventID(sourceID string, kind model.SourceType, naturalKey string) string {
	name := sourceID + "\x00" + string(kind) + "\x00" + naturalKey
	return sourceID + ":" + uuid.NewSHA1(Namespace, []byte(name)).String()
}

// Registry dispatches records to the adapter registered for their type.
type Registry struct {
	adapters map[model.SourceType]Adapter
}

// NewRegistry returns a registry holding the given adapters. Later entries
// replace earlier ones of the same type.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[model.SourceType]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Type()] = a
	}
	return r
}

// Default wires the meeting, permit and notice adapters around x.
func Default(x extract.Extractor) *Registry {
	return NewRegistry(NewMeeting(x), NewPermit(x), NewNotice(x))
}

// Lookup returns the adapter for st.
func (r *Registry) Lookup(st model.SourceType) (Adapter, error) {
	a, ok := r.adapters[st]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, st)
	}
	return a, nil
}

// Adapt runs the adapter for cfg.Type over rec. A panicking adapter is
// reported as a skip so one bad record never takes down a source job.
func (r *Registry) Adapt(rec Record, cfg model.SourceConfig) (ev model.CivicEvent, err error) {
	a, err := r.Lookup(cfg.Type)
	if err != nil {
		return model.CivicEvent{}, err
	}
	defer func() {
		if p := recover(); p != nil {
			ev = model.CivicEvent{}
			err = fmt.Errorf("%w: adapter panic: %v", ErrSkip, p)
		}
	}()
	return a.Adapt(rec, cfg)
}

// skipf builds an ErrSkip-wrapped error.
func skipf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrSkip}, args...)...)
}

// wrongVariant reports a record of the wrong shape for an adapter.
func wrongVariant(want model.SourceType, rec Record) error {
	if m, ok := rec.(*Malformed); ok {
		return skipf("malformed %s record: %v", m.Type, m.Err)
	}
	got := "nil"
	if rec != nil {
		got = string(rec.SourceType())
	}
	return skipf("%s adapter got %s record", want, got)
}

// builder collects the parts every adapter shares: extraction, tag
// derivation and sealing.
type builder struct {
	x extract.Extractor
}

type parts struct {
	cfg        model.SourceConfig
	typeTag    string
	categories []string
	text       string
	extraTags  []string
	entities   []model.Entity
}

// finish extracts entities and tags, derives the tag set and seals ev.
func (b builder) finish(ev *model.CivicEvent, p parts) {
	res, _ := extract.Safe(b.x, p.text)

	ev.Entities = append(append([]model.Entity{}, p.entities...), res.Entities...)
	if ev.Documents == nil {
		ev.Documents = []model.Document{}
	}

	tags := []string{p.typeTag}
	tags = append(tags, p.cfg.DefaultTags...)
	tags = append(tags, mapCategories(p.categories, p.cfg.CategoryTags)...)
	tags = append(tags, extract.MatchKeywords(p.text, p.cfg.Keywords)...)
	tags = append(tags, res.Tags...)
	tags = append(tags, p.extraTags...)
	ev.Tags = tags
	ev.Seal()
}

// mapCategories maps source categories through the configured table.
// Categories without a mapping don't enter the universal vocabulary.
func mapCategories(categories []string, table map[string]string) []string {
	if len(table) == 0 {
		return nil
	}
	lc := make(map[string]string, len(table))
	for k, v := range table {
		lc[strings.ToLower(strings.TrimSpace(k))] = v
	}
	var out []string
	for _, c := range categories {
		if tag, ok := lc[strings.ToLower(strings.TrimSpace(c))]; ok && tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

func documents(in []Attachment) []model.Document {
	out := make([]model.Document, 0, len(in))
	for _, a := range in {
		if strings.TrimSpace(a.URL) == "" {
			continue
		}
		out = append(out, model.Document{URL: strings.TrimSpace(a.URL), Type: a.Type, Hash: a.Hash})
	}
	return out
}

func joinText(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p)
	}
	return b.String()
}
