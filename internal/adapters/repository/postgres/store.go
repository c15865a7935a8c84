// Package postgres is a durable EventStore on PostgreSQL via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/okian/civicwatch/internal/adapters/repository"
	"github.com/okian/civicwatch/internal/domain/model"
	"github.com/okian/civicwatch/pkg/metrics"
)

// Store implements repository.EventStore. Each batch runs in one
// transaction; a transaction-scoped advisory lock per event id serializes
// concurrent saves of the same event across processes.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ repository.EventStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall clock used for DiscoveredAt and UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("opening first pgx connection: %w", err)
	}
	return New(pool, opts...), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the table and indexes if missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// withTx runs f in a transaction, committing only if f succeeds.
func withTx(ctx context.Context, pool *pgxpool.Pool, f func(pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := f(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SaveEvent implements repository.EventStore.
func (s *Store) SaveEvent(ctx context.Context, e model.CivicEvent) (model.ChangeStatus, error) {
	st, err := s.SaveEvents(ctx, []model.CivicEvent{e})
	if err != nil {
		return 0, err
	}
	return st[0], nil
}

// SaveEvents implements repository.EventStore.
func (s *Store) SaveEvents(ctx context.Context, batch []model.CivicEvent) ([]model.ChangeStatus, error) {
	defer observe("save_events", time.Now())

	staged := make([]model.CivicEvent, len(batch))
	for i := range batch {
		staged[i] = batch[i].Clone()
		if err := staged[i].Validate(); err != nil {
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
		staged[i].Tags = model.NormalizeTags(staged[i].Tags)
		staged[i].ContentHash = model.ComputeContentHash(&staged[i])
	}

	now := s.now().UTC()
	statuses := make([]model.ChangeStatus, len(staged))
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		for i := range staged {
			st, err := saveOne(ctx, tx, &staged[i], now)
			if err != nil {
				return fmt.Errorf("save %s: %w", staged[i].EventID, err)
			}
			statuses[i] = st
		}
		return nil
	})
	if err != nil {
		metrics.RecordErrorByComponent("repository", "postgres")
		return nil, err
	}
	return statuses, nil
}

func saveOne(ctx context.Context, tx pgx.Tx, e *model.CivicEvent, now time.Time) (model.ChangeStatus, error) {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, e.EventID); err != nil {
		return 0, err
	}

	var existing *model.CivicEvent
	var cur model.CivicEvent
	err := tx.QueryRow(ctx,
		`SELECT content_hash, discovered_at, updated_at FROM civic_events WHERE event_id = $1 FOR UPDATE`,
		e.EventID).Scan(&cur.ContentHash, &cur.DiscoveredAt, &cur.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return 0, err
	default:
		existing = &cur
	}

	st := repository.Classify(existing, e, now)
	if st == model.StatusUnchanged {
		return st, nil
	}

	row, err := encode(e)
	if err != nil {
		return 0, err
	}
	if st == model.StatusNew {
		_, err = tx.Exec(ctx, `INSERT INTO civic_events (event_id, event_type, source_id, ts, discovered_at,
			updated_at, title, description, location, entities, documents, tags, entity_names, content_hash, raw_data)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
			e.EventID, string(e.EventType), e.SourceID, e.Timestamp, e.DiscoveredAt, e.UpdatedAt,
			e.Title, e.Description, row.location, row.entities, row.documents, e.Tags, row.entityNames,
			e.ContentHash, row.raw)
	} else {
		_, err = tx.Exec(ctx, `UPDATE civic_events SET event_type=$2, source_id=$3, ts=$4, updated_at=$5,
			title=$6, description=$7, location=$8, entities=$9, documents=$10, tags=$11, entity_names=$12,
			content_hash=$13, raw_data=$14 WHERE event_id=$1`,
			e.EventID, string(e.EventType), e.SourceID, e.Timestamp, e.UpdatedAt,
			e.Title, e.Description, row.location, row.entities, row.documents, e.Tags, row.entityNames,
			e.ContentHash, row.raw)
	}
	if err != nil {
		return 0, err
	}
	return st, nil
}

// encoded holds the json columns of one event.
type encoded struct {
	location    []byte
	entities    []byte
	documents   []byte
	raw         []byte
	entityNames string
}

func encode(e *model.CivicEvent) (encoded, error) {
	var (
		out encoded
		err error
	)
	if e.Location != nil {
		if out.location, err = json.Marshal(e.Location); err != nil {
			return out, err
		}
	}
	entities := e.Entities
	if entities == nil {
		entities = []model.Entity{}
	}
	if out.entities, err = json.Marshal(entities); err != nil {
		return out, err
	}
	documents := e.Documents
	if documents == nil {
		documents = []model.Document{}
	}
	if out.documents, err = json.Marshal(documents); err != nil {
		return out, err
	}
	if len(e.RawData) > 0 && json.Valid(e.RawData) {
		out.raw = e.RawData
	}
	names := make([]string, 0, len(e.Entities))
	for _, ent := range e.Entities {
		names = append(names, strings.ToLower(ent.Name))
	}
	out.entityNames = strings.Join(names, "\n")
	return out, nil
}

// Get implements repository.EventStore.
func (s *Store) Get(ctx context.Context, id string) (model.CivicEvent, error) {
	defer observe("get", time.Now())
	events, err := s.query(ctx, `SELECT `+columns+` FROM civic_events WHERE event_id = $1`, id)
	if err != nil {
		return model.CivicEvent{}, err
	}
	if len(events) == 0 {
		return model.CivicEvent{}, fmt.Errorf("%w: %s", repository.ErrNotFound, id)
	}
	return events[0], nil
}

// Count implements repository.EventStore.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM civic_events`).Scan(&n); err != nil {
		return 0, err
	}
	metrics.UpdateStoreEvents(n)
	return n, nil
}

// GetWhatsNew implements repository.EventStore.
func (s *Store) GetWhatsNew(ctx context.Context, since time.Duration) ([]model.CivicEvent, error) {
	if since < 0 {
		return nil, fmt.Errorf("%w: since %s", repository.ErrInvalidSpan, since)
	}
	defer observe("whats_new", time.Now())
	return s.query(ctx, `SELECT `+columns+` FROM civic_events WHERE discovered_at >= $1`+orderBy,
		s.now().UTC().Add(-since))
}

// GetUpcoming implements repository.EventStore.
func (s *Store) GetUpcoming(ctx context.Context, window time.Duration) ([]model.CivicEvent, error) {
	if window < 0 {
		return nil, fmt.Errorf("%w: window %s", repository.ErrInvalidSpan, window)
	}
	defer observe("upcoming", time.Now())
	now := s.now().UTC()
	return s.query(ctx, `SELECT `+columns+` FROM civic_events
		WHERE (event_type = $1 OR 'hearing' = ANY(tags)) AND ts >= $2 AND ts <= $3`+orderBy,
		string(model.EventMeeting), now, now.Add(window))
}

// GetEvents implements repository.EventStore.
func (s *Store) GetEvents(ctx context.Context, f repository.Filter) ([]model.CivicEvent, error) {
	defer observe("get_events", time.Now())
	sql, args := filterQuery(f)
	return s.query(ctx, sql, args...)
}

// filterQuery builds the GetEvents statement.
func filterQuery(f repository.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.SourceID != "" {
		where = append(where, "source_id = "+arg(f.SourceID))
	}
	if tags := model.NormalizeTags(f.Tags); len(tags) > 0 {
		where = append(where, "tags && "+arg(tags)+"::text[]")
	}
	if !f.Since.IsZero() {
		where = append(where, "ts >= "+arg(f.Since.UTC()))
	}
	sql := `SELECT ` + columns + ` FROM civic_events`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += orderBy
	if f.Limit > 0 {
		sql += " LIMIT " + arg(f.Limit)
	}
	return sql, args
}

// GetByEntity implements repository.EventStore.
func (s *Store) GetByEntity(ctx context.Context, name string) ([]model.CivicEvent, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return []model.CivicEvent{}, nil
	}
	defer observe("by_entity", time.Now())
	return s.query(ctx, `SELECT `+columns+` FROM civic_events WHERE strpos(entity_names, $1) > 0`+orderBy, needle)
}

func (s *Store) query(ctx context.Context, sql string, args ...any) ([]model.CivicEvent, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.CivicEvent, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEvent(row pgx.Row) (model.CivicEvent, error) {
	var (
		e                             model.CivicEvent
		eventType                     string
		location, entities, docs, raw []byte
	)
	err := row.Scan(&e.EventID, &eventType, &e.SourceID, &e.Timestamp, &e.DiscoveredAt, &e.UpdatedAt,
		&e.Title, &e.Description, &location, &entities, &docs, &e.Tags, &e.ContentHash, &raw)
	if err != nil {
		return e, err
	}
	e.EventType = model.EventType(eventType)
	e.Timestamp = e.Timestamp.UTC()
	e.DiscoveredAt = e.DiscoveredAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	if len(location) > 0 {
		e.Location = &model.Location{}
		if err := json.Unmarshal(location, e.Location); err != nil {
			return e, fmt.Errorf("decode location of %s: %w", e.EventID, err)
		}
	}
	if err := json.Unmarshal(entities, &e.Entities); err != nil {
		return e, fmt.Errorf("decode entities of %s: %w", e.EventID, err)
	}
	if err := json.Unmarshal(docs, &e.Documents); err != nil {
		return e, fmt.Errorf("decode documents of %s: %w", e.EventID, err)
	}
	if len(raw) > 0 {
		e.RawData = json.RawMessage(raw)
	}
	return e, nil
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
}
