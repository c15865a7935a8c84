package model

import (
	"fmt"
	"strings"
	"time"
)

// SourceType selects the adapter and raw record shape for a source.
type SourceType string

// Supported source types.
const (
	SourceMeeting SourceType = "meeting"
	SourcePermit  SourceType = "permit"
	SourceNotice  SourceType = "notice"
)

// Valid reports whether t is a supported source type.
func (t SourceType) Valid() bool {
	switch t {
	case SourceMeeting, SourcePermit, SourceNotice:
		return true
	}
	return false
}

// SourceConfig describes one configured feed. It is loaded once and passed by
// value; nothing mutates it after load.
type SourceConfig struct {
	ID       string        `koanf:"id" json:"id"`
	Type     SourceType    `koanf:"type" json:"type"`
	Disabled bool          `koanf:"disabled" json:"disabled,omitempty"`
	Timeout  time.Duration `koanf:"timeout" json:"timeout,omitempty"`

	// Fetch parameters. Path wins over URL when both are set.
	URL     string            `koanf:"url" json:"url,omitempty"`
	Path    string            `koanf:"path" json:"path,omitempty"`
	Headers map[string]string `koanf:"headers" json:"-"`

	// CategoryTags maps source-specific categories to universal tags.
	CategoryTags map[string]string `koanf:"category_tags" json:"category_tags,omitempty"`
	// Keywords maps a tag to the keywords that imply it.
	Keywords map[string][]string `koanf:"keywords" json:"keywords,omitempty"`
	// DefaultTags are attached to every event from the source.
	DefaultTags []string `koanf:"default_tags" json:"default_tags,omitempty"`
}

// Validate checks the fields every source needs.
func (c *SourceConfig) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("source id must not be empty")
	}
	if !c.Type.Valid() {
		return fmt.Errorf("source %s: unknown type %q", c.ID, c.Type)
	}
	if c.URL == "" && c.Path == "" {
		return fmt.Errorf("source %s: one of url or path is required", c.ID)
	}
	return nil
}
