package postgres

// schema is applied by Migrate. Tags live in a text[] with a GIN index for
// the tag filter; entity_names is a lowercased, newline-joined copy of the
// entity names for substring search.
const schema = `
CREATE TABLE IF NOT EXISTS civic_events (
	event_id      text PRIMARY KEY,
	event_type    text        NOT NULL,
	source_id     text        NOT NULL,
	ts            timestamptz NOT NULL,
	discovered_at timestamptz NOT NULL,
	updated_at    timestamptz NOT NULL,
	title         text        NOT NULL,
	description   text        NOT NULL DEFAULT '',
	location      jsonb,
	entities      jsonb       NOT NULL DEFAULT '[]',
	documents     jsonb       NOT NULL DEFAULT '[]',
	tags          text[]      NOT NULL DEFAULT '{}',
	entity_names  text        NOT NULL DEFAULT '',
	content_hash  text        NOT NULL,
	raw_data      jsonb
);
CREATE INDEX IF NOT EXISTS civic_events_source_idx ON civic_events (source_id);
CREATE INDEX IF NOT EXISTS civic_events_tags_idx ON civic_events USING GIN (tags);
CREATE INDEX IF NOT EXISTS civic_events_ts_idx ON civic_events (ts DESC, event_id);
CREATE INDEX IF NOT EXISTS civic_events_discovered_idx ON civic_events (discovered_at);
`

const columns = `event_id, event_type, source_id, ts, discovered_at, updated_at, title, description,
	location, entities, documents, tags, content_hash, raw_data`

const orderBy = ` ORDER BY ts DESC, event_id ASC`
