package model

import (
	"fmt"
	"strings"
	"time"
)

// Severity is an ordered alert level: info < notable < warning < critical.
type Severity string

// Known severities, lowest first.
const (
	SeverityInfo     Severity = "info"
	SeverityNotable  Severity = "notable"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityInfo:     1,
	SeverityNotable:  2,
	SeverityWarning:  3,
	SeverityCritical: 4,
}

// Rank returns the ordinal of s, 0 when s is unknown.
func (s Severity) Rank() int { return severityRank[s] }

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool { return s.Rank() > 0 }

// ParseSeverity parses a case-insensitive severity name.
func ParseSeverity(v string) (Severity, error) {
	s := Severity(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown severity %q", v)
	}
	return s, nil
}

// Alert is produced by rule evaluation and handed to delivery collaborators.
type Alert struct {
	RuleName    string    `json:"rule_name"`
	Severity    Severity  `json:"severity"`
	EventID     string    `json:"event_id"`
	SourceID    string    `json:"source_id"`
	Message     string    `json:"message"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Key is the natural alert key used for at-least-once delivery dedupe.
func (a Alert) Key() string { return a.RuleName + "|" + a.EventID }

// ChangeStatus is the store's classification of a save.
type ChangeStatus int

// Change statuses.
const (
	StatusNew ChangeStatus = iota + 1
	StatusUpdated
	StatusUnchanged
)

func (c ChangeStatus) String() string {
	switch c {
	case StatusNew:
		return "NEW"
	case StatusUpdated:
		return "UPDATED"
	case StatusUnchanged:
		return "UNCHANGED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status name in JSON and logs.
func (c ChangeStatus) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// Changed reports whether the save wrote new content.
func (c ChangeStatus) Changed() bool { return c == StatusNew || c == StatusUpdated }
