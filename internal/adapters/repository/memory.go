package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/civicwatch/internal/domain/model"
	"github.com/okian/civicwatch/pkg/metrics"
)

// MemoryStore is an in-memory EventStore with source and tag indexes.
//
// A single lock guards all state, so the hash comparison and write of a save
// are atomic and a batch is never partially visible.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]*model.CivicEvent
	bySource map[string]map[string]struct{}
	byTag    map[string]map[string]struct{}

	capacity int // 0 = unbounded
	now      func() time.Time
}

var _ EventStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		byID:     make(map[string]*model.CivicEvent),
		bySource: make(map[string]map[string]struct{}),
		byTag:    make(map[string]map[string]struct{}),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SaveEvent implements EventStore.
func (s *MemoryStore) SaveEvent(ctx context.Context, e model.CivicEvent) (model.ChangeStatus, error) {
	st, err := s.SaveEvents(ctx, []model.CivicEvent{e})
	if err != nil {
		return 0, err
	}
	return st[0], nil
}

// SaveEvents implements EventStore.
func (s *MemoryStore) SaveEvents(ctx context.Context, batch []model.CivicEvent) ([]model.ChangeStatus, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreLatency("save_events", float64(time.Since(start).Microseconds())/1000)
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	staged := make([]model.CivicEvent, len(batch))
	for i := range batch {
		staged[i] = batch[i].Clone()
		if err := prepare(&staged[i]); err != nil {
			metrics.RecordErrorByComponent("repository", "invalid_event")
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	statuses := make([]model.ChangeStatus, len(staged))
	// later items see earlier ones from the same batch
	overlay := make(map[string]*model.CivicEvent, len(staged))
	inserts := 0
	for i := range staged {
		e := &staged[i]
		cur, ok := overlay[e.EventID]
		if !ok {
			cur = s.byID[e.EventID]
		}
		statuses[i] = Classify(cur, e, now)
		switch statuses[i] {
		case model.StatusNew:
			inserts++
			overlay[e.EventID] = e
		case model.StatusUpdated:
			overlay[e.EventID] = e
		}
	}
	if s.capacity > 0 && len(s.byID)+inserts > s.capacity {
		metrics.RecordErrorByComponent("repository", "capacity")
		return nil, fmt.Errorf("%w: %d stored, %d new, cap %d", ErrCapacity, len(s.byID), inserts, s.capacity)
	}

	for id, e := range overlay {
		s.put(id, e)
	}
	metrics.UpdateStoreEvents(len(s.byID))
	return statuses, nil
}

// put replaces the stored event and keeps the indexes in step.
// Must be called with s.mu held.
func (s *MemoryStore) put(id string, e *model.CivicEvent) {
	if old, ok := s.byID[id]; ok {
		unindex(s.bySource, old.SourceID, id)
		for _, t := range old.Tags {
			unindex(s.byTag, t, id)
		}
	}
	s.byID[id] = e
	index(s.bySource, e.SourceID, id)
	for _, t := range e.Tags {
		index(s.byTag, t, id)
	}
}

func index(idx map[string]map[string]struct{}, key, id string) {
	set, ok := idx[key]
	if !ok {
		set = make(map[string]struct{})
		idx[key] = set
	}
	set[id] = struct{}{}
}

func unindex(idx map[string]map[string]struct{}, key, id string) {
	if set, ok := idx[key]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(idx, key)
		}
	}
}

// Get implements EventStore.
func (s *MemoryStore) Get(_ context.Context, id string) (model.CivicEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.CivicEvent{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.Clone(), nil
}

// Count implements EventStore.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

// GetWhatsNew implements EventStore.
func (s *MemoryStore) GetWhatsNew(_ context.Context, since time.Duration) ([]model.CivicEvent, error) {
	if since < 0 {
		return nil, fmt.Errorf("%w: since %s", ErrInvalidSpan, since)
	}
	defer s.observe("whats_new", time.Now())
	cutoff := s.now().UTC().Add(-since)
	return s.scan(nil, func(e *model.CivicEvent) bool {
		return !e.DiscoveredAt.Before(cutoff)
	}, 0), nil
}

// GetUpcoming implements EventStore.
func (s *MemoryStore) GetUpcoming(_ context.Context, window time.Duration) ([]model.CivicEvent, error) {
	if window < 0 {
		return nil, fmt.Errorf("%w: window %s", ErrInvalidSpan, window)
	}
	defer s.observe("upcoming", time.Now())
	now := s.now().UTC()
	end := now.Add(window)
	return s.scan(nil, func(e *model.CivicEvent) bool {
		return e.IsUpcomingKind() && !e.Timestamp.Before(now) && !e.Timestamp.After(end)
	}, 0), nil
}

// GetEvents implements EventStore.
func (s *MemoryStore) GetEvents(_ context.Context, f Filter) ([]model.CivicEvent, error) {
	defer s.observe("get_events", time.Now())
	s.mu.RLock()
	candidates := s.candidates(f)
	s.mu.RUnlock()

	return s.scan(candidates, func(e *model.CivicEvent) bool {
		return f.Since.IsZero() || !e.Timestamp.Before(f.Since)
	}, f.Limit), nil
}

// candidates narrows by the source and tag indexes. nil means "all ids".
// Must be called with s.mu held.
func (s *MemoryStore) candidates(f Filter) map[string]struct{} {
	var out map[string]struct{}
	if f.SourceID != "" {
		out = make(map[string]struct{})
		for id := range s.bySource[f.SourceID] {
			out[id] = struct{}{}
		}
	}
	tags := model.NormalizeTags(f.Tags)
	if len(tags) == 0 {
		return out
	}
	union := make(map[string]struct{})
	for _, t := range tags {
		for id := range s.byTag[t] {
			if out == nil {
				union[id] = struct{}{}
			} else if _, ok := out[id]; ok {
				union[id] = struct{}{}
			}
		}
	}
	return union
}

// GetByEntity implements EventStore.
func (s *MemoryStore) GetByEntity(_ context.Context, name string) ([]model.CivicEvent, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return []model.CivicEvent{}, nil
	}
	defer s.observe("by_entity", time.Now())
	return s.scan(nil, func(e *model.CivicEvent) bool {
		for _, ent := range e.Entities {
			if strings.Contains(strings.ToLower(ent.Name), needle) {
				return true
			}
		}
		return false
	}, 0), nil
}

// scan returns sorted clones of the events in ids (or all events when ids is
// nil) that satisfy keep.
func (s *MemoryStore) scan(ids map[string]struct{}, keep func(*model.CivicEvent) bool, limit int) []model.CivicEvent {
	s.mu.RLock()
	out := make([]model.CivicEvent, 0)
	if ids == nil {
		for _, e := range s.byID {
			if keep(e) {
				out = append(out, e.Clone())
			}
		}
	} else {
		for id := range ids {
			if e, ok := s.byID[id]; ok && keep(e) {
				out = append(out, e.Clone())
			}
		}
	}
	s.mu.RUnlock()

	SortEvents(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *MemoryStore) observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
}
