// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventType is the closed set of civic event kinds.
type EventType string

// Known event types.
const (
	EventMeeting           EventType = "meeting"
	EventPermitApplication EventType = "permit_application"
	EventPermitIssued      EventType = "permit_issued"
	EventPublicNotice      EventType = "public_notice"
)

// EventTypes lists every valid EventType.
var EventTypes = []EventType{EventMeeting, EventPermitApplication, EventPermitIssued, EventPublicNotice}

// Valid reports whether t belongs to the closed set.
func (t EventType) Valid() bool {
	for _, k := range EventTypes {
		if t == k {
			return true
		}
	}
	return false
}

// ParseEventType parses a case-insensitive event type name.
func ParseEventType(s string) (EventType, error) {
	t := EventType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, s)
	}
	return t, nil
}

// EntityKind classifies an extracted entity.
type EntityKind string

// Entity kinds produced by the extractors.
const (
	EntityPerson       EntityKind = "person"
	EntityOrganization EntityKind = "organization"
	EntityAddress      EntityKind = "address"
	EntityCaseNumber   EntityKind = "case_number"
)

// Entity is a named entity pulled out of event text. Extraction is heuristic,
// so duplicates by name are allowed.
type Entity struct {
	Name string     `json:"name"`
	Kind EntityKind `json:"kind"`
}

// Document references an attached file.
type Document struct {
	URL  string `json:"url"`
	Type string `json:"type,omitempty"`
	Hash string `json:"hash,omitempty"`
}

// Location is an optional structured geo reference.
type Location struct {
	Address string   `json:"address,omitempty"`
	Parcel  string   `json:"parcel,omitempty"`
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
}

// CivicEvent is the canonical normalized representation of one discovered
// government-activity item.
type CivicEvent struct {
	EventID      string          `json:"event_id"`      // stable, derived by the adapter
	EventType    EventType       `json:"event_type"`    // closed set
	SourceID     string          `json:"source_id"`     // producing source
	Timestamp    time.Time       `json:"timestamp"`     // real-world occurrence, may be in the future
	DiscoveredAt time.Time       `json:"discovered_at"` // first observation, set once by the store
	UpdatedAt    time.Time       `json:"updated_at"`    // last content change, set by the store
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	Location     *Location       `json:"location,omitempty"`
	Entities     []Entity        `json:"entities"`
	Documents    []Document      `json:"documents"`
	Tags         []string        `json:"tags"`
	ContentHash  string          `json:"content_hash"`
	RawData      json.RawMessage `json:"raw_data,omitempty"` // passthrough, never interpreted
}

// HasTag reports whether the event carries tag (case-insensitive).
func (e *CivicEvent) HasTag(tag string) bool {
	tag = strings.ToLower(strings.TrimSpace(tag))
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Seal normalizes the tag set and recomputes ContentHash.
func (e *CivicEvent) Seal() {
	e.Tags = NormalizeTags(e.Tags)
	e.ContentHash = ComputeContentHash(e)
}

// Clone returns a deep copy so stored events can't be mutated by callers.
func (e *CivicEvent) Clone() CivicEvent {
	c := *e
	if e.Location != nil {
		loc := *e.Location
		if e.Location.Lat != nil {
			lat := *e.Location.Lat
			loc.Lat = &lat
		}
		if e.Location.Lon != nil {
			lon := *e.Location.Lon
			loc.Lon = &lon
		}
		c.Location = &loc
	}
	c.Entities = append([]Entity(nil), e.Entities...)
	c.Documents = append([]Document(nil), e.Documents...)
	c.Tags = append([]string(nil), e.Tags...)
	c.RawData = append(json.RawMessage(nil), e.RawData...)
	return c
}

// IsUpcomingKind reports whether the event is a meeting or a hearing notice.
func (e *CivicEvent) IsUpcomingKind() bool {
	return e.EventType == EventMeeting || e.HasTag("hearing")
}

// Validate checks the fields the store relies on.
func (e *CivicEvent) Validate() error {
	switch {
	case strings.TrimSpace(e.EventID) == "":
		return fmt.Errorf("%w: missing event_id", ErrInvalidEvent)
	case strings.TrimSpace(e.SourceID) == "":
		return fmt.Errorf("%w: missing source_id for %s", ErrInvalidEvent, e.EventID)
	case !e.EventType.Valid():
		return fmt.Errorf("%w: bad event_type %q for %s", ErrInvalidEvent, e.EventType, e.EventID)
	}
	return nil
}
