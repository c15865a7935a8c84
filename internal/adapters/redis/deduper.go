package redis

import (
	"context"
	"time"

	"github.com/okian/civicwatch/internal/domain/dedupe"
	"github.com/okian/civicwatch/pkg/logger"
	"github.com/okian/civicwatch/pkg/metrics"
	goredis "github.com/redis/go-redis/v9"
)

// Deduper implements dedupe.Deduper with SET NX and a key TTL equal to the
// suppression window. When Redis is unreachable it lets alerts through:
// a duplicate alert is acceptable, a lost one isn't.
type Deduper struct {
	client *goredis.Client
	prefix string
	window time.Duration
	log    logger.Logger
}

var _ dedupe.Deduper = (*Deduper)(nil)

// Option configures a Deduper.
type Option func(*Deduper)

// WithPrefix namespaces the keys, default "civicwatch:alert:".
func WithPrefix(p string) Option {
	return func(d *Deduper) {
		if p != "" {
			d.prefix = p
		}
	}
}

// WithWindow sets how long a recorded key suppresses repeats.
func WithWindow(w time.Duration) Option {
	return func(d *Deduper) {
		if w > 0 {
			d.window = w
		}
	}
}

// WithLogger sets the logger for Redis failures.
func WithLogger(l logger.Logger) Option {
	return func(d *Deduper) {
		if l != nil {
			d.log = l
		}
	}
}

// NewDeduper wraps client.
func NewDeduper(client *goredis.Client, opts ...Option) *Deduper {
	d := &Deduper{
		client: client,
		prefix: "civicwatch:alert:",
		window: time.Hour,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SeenAndRecord implements dedupe.Deduper.
func (d *Deduper) SeenAndRecord(ctx context.Context, key string) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	fresh, err := d.client.SetNX(ctx, d.prefix+key, 1, d.window).Result()
	if err != nil {
		metrics.RecordErrorByComponent("dedupe", "redis")
		d.log.Warn(ctx, "alert dedupe unavailable, letting alert through", logger.String("key", key), logger.Error(err))
		return false
	}
	return !fresh
}

// Unrecord implements dedupe.Deduper.
func (d *Deduper) Unrecord(ctx context.Context, key string) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := d.client.Del(ctx, d.prefix+key).Err(); err != nil {
		metrics.RecordErrorByComponent("dedupe", "redis")
		d.log.Warn(ctx, "failed to unrecord alert key", logger.String("key", key), logger.Error(err))
	}
}

// Size counts the live keys under the prefix. It scans, so keep it off hot
// paths.
func (d *Deduper) Size() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultConnectTimeout)
	defer cancel()

	var (
		n      int64
		cursor uint64
	)
	for {
		keys, next, err := d.client.Scan(ctx, cursor, d.prefix+"*", 500).Result()
		if err != nil {
			d.log.Warn(ctx, "failed to count alert keys", logger.Error(err))
			return n
		}
		n += int64(len(keys))
		if next == 0 {
			return n
		}
		cursor = next
	}
}
