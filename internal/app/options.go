package service

import (
	"context"
	"time"

	"github.com/okian/civicwatch/internal/adapters/fetch"
	"github.com/okian/civicwatch/internal/domain/adapter"
	"github.com/okian/civicwatch/internal/domain/dedupe"
	"github.com/okian/civicwatch/internal/domain/model"
	"github.com/okian/civicwatch/internal/domain/rules"
	"github.com/okian/civicwatch/pkg/logger"
)

// AlertSink receives the alerts of one source job after evaluation. A
// returned error un-records the alert keys so a later run may deliver them.
type AlertSink func(ctx context.Context, sourceID string, alerts []model.Alert) error

// Option applies a configuration option to the Orchestrator.
type Option func(*Orchestrator)

// WithSources sets the configured sources, in run order.
func WithSources(sources []model.SourceConfig) Option {
	return func(o *Orchestrator) {
		o.sources = append([]model.SourceConfig(nil), sources...)
	}
}

// WithRegistry sets the adapter registry.
func WithRegistry(r *adapter.Registry) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithEngine sets the rule engine.
func WithEngine(e *rules.Engine) Option {
	return func(o *Orchestrator) {
		if e != nil {
			o.engine = e
		}
	}
}

// WithFetcher sets how raw records are retrieved.
func WithFetcher(f fetch.Fetcher) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.fetcher = f
		}
	}
}

// WithDeduper enables alert suppression by natural alert key.
func WithDeduper(d dedupe.Deduper) Option {
	return func(o *Orchestrator) {
		o.deduper = d
	}
}

// WithAlertSink sets the alert hand-off.
func WithAlertSink(s AlertSink) Option {
	return func(o *Orchestrator) {
		o.sink = s
	}
}

// WithConcurrency bounds how many sources are processed at once.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithFetchTimeout sets the fetch timeout for sources without their own.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.fetchTimeout = d
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets a custom logger for the orchestrator.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}
