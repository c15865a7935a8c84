package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// hashView is the canonical shape fed to the digest. Field order is fixed by
// the struct, slices are sorted so extraction order never leaks into the hash.
type hashView struct {
	EventType   EventType  `json:"t"`
	Timestamp   string     `json:"ts"`
	Title       string     `json:"ti"`
	Description string     `json:"de"`
	Location    *Location  `json:"lo"`
	Entities    []Entity   `json:"en"`
	Documents   []Document `json:"do"`
	Tags        []string   `json:"ta"`
}

// ComputeContentHash digests the semantically meaningful fields of e.
// DiscoveredAt, UpdatedAt, RawData and ContentHash itself are excluded, so
// re-ingesting identical source content yields an identical hash.
func ComputeContentHash(e *CivicEvent) string {
	v := hashView{
		EventType:   e.EventType,
		Title:       strings.TrimSpace(e.Title),
		Description: strings.TrimSpace(e.Description),
		Location:    e.Location,
		Entities:    sortedEntities(e.Entities),
		Documents:   sortedDocuments(e.Documents),
		Tags:        NormalizeTags(e.Tags),
	}
	if !e.Timestamp.IsZero() {
		v.Timestamp = e.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	b, err := json.Marshal(v)
	if err != nil {
		// every field is a plain value; Marshal can't fail here
		panic(err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// NormalizeTags lowercases, trims, dedupes and sorts tags.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func sortedEntities(in []Entity) []Entity {
	out := make([]Entity, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

func sortedDocuments(in []Document) []Document {
	out := make([]Document, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool {
		if out[i].URL != out[j].URL {
			return out[i].URL < out[j].URL
		}
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Hash < out[j].Hash
	})
	return out
}
