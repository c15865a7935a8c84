// Package repository persists civic events and classifies every save as new,
// updated or unchanged by content hash.
package repository

import (
	"context"
	"sort"
	"time"

	"github.com/okian/civicwatch/internal/domain/model"
)

// Filter narrows GetEvents. Set fields are AND-combined; Tags matches when
// the event carries at least one of them.
type Filter struct {
	SourceID string
	Tags     []string
	Since    time.Time // lower bound on Timestamp, zero = unbounded
	Limit    int       // 0 = no limit
}

// EventStore provides change-detecting writes and query access to events.
// List results are ordered by Timestamp desc, then EventID asc.
type EventStore interface {
	// SaveEvent inserts or updates e and reports how its content changed.
	// DiscoveredAt is set once on insert; UpdatedAt advances on each change.
	SaveEvent(ctx context.Context, e model.CivicEvent) (model.ChangeStatus, error)
	// SaveEvents applies SaveEvent semantics to every item in order and
	// commits the batch as one unit. On error no statuses are returned and
	// nothing from the batch is visible.
	SaveEvents(ctx context.Context, batch []model.CivicEvent) ([]model.ChangeStatus, error)

	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (model.CivicEvent, error)
	Count(ctx context.Context) (int, error)

	GetWhatsNew(ctx context.Context, since time.Duration) ([]model.CivicEvent, error)
	GetUpcoming(ctx context.Context, window time.Duration) ([]model.CivicEvent, error)
	GetEvents(ctx context.Context, f Filter) ([]model.CivicEvent, error)
	GetByEntity(ctx context.Context, name string) ([]model.CivicEvent, error)
}

// SortEvents applies the store ordering in place.
func SortEvents(events []model.CivicEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.After(events[j].Timestamp)
		}
		return events[i].EventID < events[j].EventID
	})
}

// prepare validates e and fills in the hash if the adapter didn't seal it.
func prepare(e *model.CivicEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}
	e.Tags = model.NormalizeTags(e.Tags)
	e.ContentHash = model.ComputeContentHash(e)
	return nil
}

// Classify decides the change status of incoming against the stored version
// (nil when absent) and stamps incoming's bookkeeping times accordingly.
// For StatusUnchanged incoming must not be written.
func Classify(existing, incoming *model.CivicEvent, now time.Time) model.ChangeStatus {
	switch {
	case existing == nil:
		incoming.DiscoveredAt = now
		incoming.UpdatedAt = now
		return model.StatusNew
	case existing.ContentHash == incoming.ContentHash:
		incoming.DiscoveredAt = existing.DiscoveredAt
		incoming.UpdatedAt = existing.UpdatedAt
		return model.StatusUnchanged
	default:
		incoming.DiscoveredAt = existing.DiscoveredAt
		incoming.UpdatedAt = now
		return model.StatusUpdated
	}
}
