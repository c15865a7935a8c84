// Package rules evaluates declarative watch rules against civic events.
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/okian/civicwatch/internal/domain/model"
)

// Rule is a data-only watch condition. Predicates are AND-combined; a rule
// that sets none of them never matches.
type Rule struct {
	Name                string            `yaml:"name" toml:"name" koanf:"name" json:"name"`
	Severity            model.Severity    `yaml:"severity" toml:"severity" koanf:"severity" json:"severity"`
	EventTypeFilter     []model.EventType `yaml:"event_type_filter" toml:"event_type_filter" koanf:"event_type_filter" json:"event_type_filter,omitempty"`
	RequiredTags        []string          `yaml:"required_tags" toml:"required_tags" koanf:"required_tags" json:"required_tags,omitempty"`
	AnyTags             []string          `yaml:"any_tags" toml:"any_tags" koanf:"any_tags" json:"any_tags,omitempty"`
	TitleContains       []string          `yaml:"title_contains" toml:"title_contains" koanf:"title_contains" json:"title_contains,omitempty"`
	DescriptionContains []string          `yaml:"description_contains" toml:"description_contains" koanf:"description_contains" json:"description_contains,omitempty"`
	MessageTemplate     string            `yaml:"message_template" toml:"message_template" koanf:"message_template" json:"message_template"`
	// Enabled defaults to true when omitted from a rule file.
	Enabled *bool `yaml:"enabled" toml:"enabled" koanf:"enabled" json:"enabled,omitempty"`
}

// IsEnabled reports whether the rule takes part in evaluation.
func (r *Rule) IsEnabled() bool { return r.Enabled == nil || *r.Enabled }

// HasPredicate reports whether at least one predicate field is set.
func (r *Rule) HasPredicate() bool {
	return len(r.EventTypeFilter) > 0 || len(r.RequiredTags) > 0 || len(r.AnyTags) > 0 ||
		len(r.TitleContains) > 0 || len(r.DescriptionContains) > 0
}

var placeholderRe = regexp.MustCompile(`\{([a-z_]+)\}`)

// placeholders known to the message renderer.
var placeholders = map[string]bool{
	"title":       true,
	"description": true,
	"event_type":  true,
	"event_id":    true,
	"source_id":   true,
	"timestamp":   true,
	"tags":        true,
	"rule_name":   true,
	"severity":    true,
}

// Validate reports why a rule can't be compiled.
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidRule)
	}
	if _, err := model.ParseSeverity(string(r.Severity)); err != nil {
		return fmt.Errorf("%w: rule %s: %v", ErrInvalidRule, r.Name, err)
	}
	for _, t := range r.EventTypeFilter {
		if _, err := model.ParseEventType(string(t)); err != nil {
			return fmt.Errorf("%w: rule %s: %v", ErrInvalidRule, r.Name, err)
		}
	}
	for _, m := range placeholderRe.FindAllStringSubmatch(r.MessageTemplate, -1) {
		if !placeholders[m[1]] {
			return fmt.Errorf("%w: rule %s: unknown placeholder {%s}", ErrInvalidRule, r.Name, m[1])
		}
	}
	return nil
}

// compiled is a validated rule with normalized predicates.
type compiled struct {
	name     string
	severity model.Severity
	types    map[model.EventType]struct{}
	required []string
	any      []string
	title    []string
	desc     []string
	template string
	empty    bool
}

func compile(r Rule) (compiled, error) {
	if err := r.Validate(); err != nil {
		return compiled{}, err
	}
	sev, _ := model.ParseSeverity(string(r.Severity))
	c := compiled{
		name:     strings.TrimSpace(r.Name),
		severity: sev,
		required: model.NormalizeTags(r.RequiredTags),
		any:      model.NormalizeTags(r.AnyTags),
		title:    lowerAll(r.TitleContains),
		desc:     lowerAll(r.DescriptionContains),
		template: r.MessageTemplate,
	}
	if len(r.EventTypeFilter) > 0 {
		c.types = make(map[model.EventType]struct{}, len(r.EventTypeFilter))
		for _, t := range r.EventTypeFilter {
			et, _ := model.ParseEventType(string(t))
			c.types[et] = struct{}{}
		}
	}
	// blank entries don't count as predicates
	c.empty = c.types == nil && len(c.required) == 0 && len(c.any) == 0 && len(c.title) == 0 && len(c.desc) == 0
	if c.template == "" {
		c.template = "{rule_name}: {title}"
	}
	return c, nil
}

// match applies the predicates in their fixed order.
func (c *compiled) match(e *model.CivicEvent) bool {
	if c.empty {
		return false
	}
	if c.types != nil {
		if _, ok := c.types[e.EventType]; !ok {
			return false
		}
	}
	for _, t := range c.required {
		if !e.HasTag(t) {
			return false
		}
	}
	if len(c.any) > 0 {
		hit := false
		for _, t := range c.any {
			if e.HasTag(t) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if len(c.title) > 0 && !containsAny(e.Title, c.title) {
		return false
	}
	if len(c.desc) > 0 && !containsAny(e.Description, c.desc) {
		return false
	}
	return true
}

func (c *compiled) render(e *model.CivicEvent) string {
	ts := ""
	if !e.Timestamp.IsZero() {
		ts = e.Timestamp.UTC().Format("2006-01-02 15:04 MST")
	}
	return placeholderRe.ReplaceAllStringFunc(c.template, func(m string) string {
		switch m[1 : len(m)-1] {
		case "title":
			return e.Title
		case "description":
			return e.Description
		case "event_type":
			return string(e.EventType)
		case "event_id":
			return e.EventID
		case "source_id":
			return e.SourceID
		case "timestamp":
			return ts
		case "tags":
			return strings.Join(e.Tags, ", ")
		case "rule_name":
			return c.name
		case "severity":
			return string(c.severity)
		}
		return m
	})
}

func containsAny(field string, needles []string) bool {
	lc := strings.ToLower(field)
	for _, n := range needles {
		if strings.Contains(lc, n) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
