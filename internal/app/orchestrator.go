// Package service drives ingestion: it runs every configured source through
// fetch, adapt, persist and evaluate, one bounded worker pool per run.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/civicwatch/internal/adapters/fetch"
	"github.com/okian/civicwatch/internal/adapters/mq/queue"
	"github.com/okian/civicwatch/internal/adapters/mq/worker"
	"github.com/okian/civicwatch/internal/adapters/repository"
	"github.com/okian/civicwatch/internal/domain/adapter"
	"github.com/okian/civicwatch/internal/domain/dedupe"
	"github.com/okian/civicwatch/internal/domain/extract"
	"github.com/okian/civicwatch/internal/domain/model"
	"github.com/okian/civicwatch/internal/domain/rules"
	"github.com/okian/civicwatch/pkg/logger"
	"github.com/okian/civicwatch/pkg/metrics"
)

const (
	defaultConcurrency  = 4
	defaultFetchTimeout = 30 * time.Second
)

// Orchestrator runs pipeline cycles. It holds no per-run state, so
// concurrent RunPipeline calls are safe as far as the store is.
type Orchestrator struct {
	store    repository.EventStore
	registry *adapter.Registry
	engine   *rules.Engine
	fetcher  fetch.Fetcher
	deduper  dedupe.Deduper
	sink     AlertSink

	sources      []model.SourceConfig
	concurrency  int
	fetchTimeout time.Duration

	now    func() time.Time
	logger logger.Logger
}

// New constructs an Orchestrator persisting into store.
func New(store repository.EventStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:        store,
		registry:     adapter.Default(extract.NewHeuristic()),
		engine:       rules.New(nil),
		fetcher:      fetch.NewRouter(),
		concurrency:  defaultConcurrency,
		fetchTimeout: defaultFetchTimeout,
		now:          time.Now,
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Sources returns the configured sources.
func (o *Orchestrator) Sources() []model.SourceConfig {
	return append([]model.SourceConfig(nil), o.sources...)
}

// resolve picks the enabled sources to run. Unknown ids are logged and
// ignored; only an empty selection is an error.
func (o *Orchestrator) resolve(ctx context.Context, ids []string) ([]model.SourceConfig, error) {
	if len(ids) == 0 {
		var out []model.SourceConfig
		for _, s := range o.sources {
			if !s.Disabled {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil, ErrNoSources
		}
		return out, nil
	}

	byID := make(map[string]model.SourceConfig, len(o.sources))
	for _, s := range o.sources {
		byID[s.ID] = s
	}
	seen := make(map[string]bool, len(ids))
	var out []model.SourceConfig
	for _, id := range ids {
		s, ok := byID[id]
		switch {
		case !ok:
			o.logger.Warn(ctx, "unknown source requested", logger.String("source_id", id))
		case s.Disabled:
			o.logger.Warn(ctx, "disabled source requested", logger.String("source_id", id))
		case !seen[id]:
			seen[id] = true
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: none of %v resolved", ErrNoSources, ids)
	}
	return out, nil
}

// RunPipeline runs one cycle over every enabled source, or over the named
// subset. Per-source failures are reported in the returned run; the error is
// reserved for problems that prevent the run from happening at all.
func (o *Orchestrator) RunPipeline(ctx context.Context, sourceIDs ...string) (*PipelineRun, error) {
	sources, err := o.resolve(ctx, sourceIDs)
	if err != nil {
		return nil, err
	}

	run := &PipelineRun{
		RunID:     uuid.NewString(),
		StartedAt: o.now().UTC(),
		Jobs:      make([]JobResult, len(sources)),
	}
	for i, s := range sources {
		run.Jobs[i] = JobResult{SourceID: s.ID, State: StatePending}
	}

	log := o.logger.Named("run")
	log.Info(ctx, "pipeline run started", logger.String("run_id", run.RunID), logger.Int("sources", len(sources)))

	q := queue.NewInMemoryQueue(queue.WithCapacity(len(sources)))
	for i, s := range sources {
		q.Enqueue(ctx, queue.Job{RunID: run.RunID, Seq: i, Source: s})
	}
	_ = q.Close()

	// Each job writes only its own slot; Wait orders those writes before
	// the reads below.
	h := worker.HandlerFunc(func(ctx context.Context, job queue.Job) {
		if ctx.Err() != nil {
			return
		}
		run.Jobs[job.Seq] = o.runSource(ctx, job.Source)
	})
	pool := worker.NewPool(min(o.concurrency, len(sources)), q, h, worker.WithLogger(o.logger))
	pool.Start(ctx)
	stopped := make(chan struct{})
	go func() {
		pool.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		log.Warn(ctx, "pipeline run cancelled",
			logger.String("run_id", run.RunID),
			logger.Int("queued", q.Len(ctx)),
		)
		// started sources still run to completion
		if err := pool.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Warn(ctx, "worker pool shutdown", logger.Error(err))
		}
		<-stopped
	}

	for i := range run.Jobs {
		j := &run.Jobs[i]
		if j.State != StatePending {
			continue
		}
		cause := ctx.Err()
		if cause == nil {
			cause = ErrNotStarted
		}
		run.Cancelled = run.Cancelled || ctx.Err() != nil
		j.fail(cause)
		j.FinishedAt = o.now().UTC()
		metrics.RecordSourceJob(j.SourceID, "not_started", 0)
	}

	run.FinishedAt = o.now().UTC()
	metrics.RecordRun(float64(run.Duration().Milliseconds()))

	t := run.Totals()
	log.Info(ctx, "pipeline run finished",
		logger.String("run_id", run.RunID),
		logger.Int("failed", t.Failed),
		logger.Int("created", t.Created),
		logger.Int("updated", t.Updated),
		logger.Int("unchanged", t.Unchanged),
		logger.Int("skipped", t.Skipped),
		logger.Int("alerts", t.Alerts),
		logger.Bool("cancelled", run.Cancelled),
		logger.Duration("took", run.Duration()),
	)
	return run, nil
}

// runSource takes one source from PENDING to DONE or FAILED. Within a source
// every step is sequential.
func (o *Orchestrator) runSource(ctx context.Context, src model.SourceConfig) (res JobResult) { //nolint:gocritic // hugeParam
	log := o.logger.Named("source")
	start := o.now()
	res = JobResult{SourceID: src.ID, State: StatePending, StartedAt: start.UTC()}

	defer func() {
		if r := recover(); r != nil {
			res.fail(fmt.Errorf("%w: %v", ErrJobPanic, r))
			metrics.RecordErrorByComponent("orchestrator", "panic")
		}
		end := o.now()
		res.FinishedAt = end.UTC()
		outcome := "done"
		if res.Failed() {
			outcome = "failed"
			log.Warn(ctx, "source job failed",
				logger.String("source_id", src.ID),
				logger.String("failed_in", string(res.FailedIn)),
				logger.Bool("transient", res.Transient),
				logger.Error(res.Err),
			)
		}
		metrics.RecordSourceJob(src.ID, outcome, float64(end.Sub(start).Milliseconds()))
	}()

	res.advance(StateFetching)
	records, err := o.fetchSource(ctx, src)
	if err != nil {
		res.Transient = fetch.IsTransient(err)
		res.fail(err)
		return res
	}
	res.Fetched = len(records)

	res.advance(StateAdapting)
	events := make([]model.CivicEvent, 0, len(records))
	for i, rec := range records {
		ev, err := o.registry.Adapt(rec, src)
		if err != nil {
			if !errors.Is(err, adapter.ErrSkip) {
				res.fail(err)
				return res
			}
			res.Skipped++
			if res.FirstSkip == "" {
				res.FirstSkip = err.Error()
			}
			log.Debug(ctx, "record skipped", logger.String("source_id", src.ID), logger.Int("index", i), logger.Error(err))
			continue
		}
		events = append(events, ev)
	}
	metrics.RecordSkipped(src.ID, res.Skipped)

	res.advance(StatePersisting)
	statuses, err := o.store.SaveEvents(ctx, events)
	if err != nil {
		res.fail(fmt.Errorf("persist %d events: %w", len(events), err))
		return res
	}

	res.advance(StateEvaluating)
	for i, st := range statuses {
		metrics.RecordEventStatus(st.String())
		switch st {
		case model.StatusNew:
			res.Created++
		case model.StatusUpdated:
			res.Updated++
		default:
			res.Unchanged++
			continue
		}
		for _, a := range o.engine.Evaluate(events[i]) {
			res.AlertsGenerated++
			if o.deduper != nil && o.deduper.SeenAndRecord(ctx, a.Key()) {
				res.Suppressed++
				metrics.RecordAlertSuppressed()
				continue
			}
			metrics.RecordAlert(string(a.Severity))
			res.Alerts = append(res.Alerts, a)
		}
	}
	o.handOff(ctx, src.ID, res.Alerts)

	res.advance(StateDone)
	log.Info(ctx, "source job done",
		logger.String("source_id", src.ID),
		logger.Int("fetched", res.Fetched),
		logger.Int("created", res.Created),
		logger.Int("updated", res.Updated),
		logger.Int("unchanged", res.Unchanged),
		logger.Int("alerts", len(res.Alerts)),
	)
	return res
}

// fetchSource bounds the fetch by the source timeout, or the global one.
func (o *Orchestrator) fetchSource(ctx context.Context, src model.SourceConfig) ([]adapter.Record, error) { //nolint:gocritic // hugeParam
	timeout := src.Timeout
	if timeout <= 0 {
		timeout = o.fetchTimeout
	}
	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	records, err := o.boundedFetch(fctx, src)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: fetch timed out after %s: %w", fetch.ErrTransient, timeout, err)
		}
		kind := "fatal"
		if fetch.IsTransient(err) {
			kind = "transient"
		}
		metrics.RecordErrorByComponent("fetch", kind)
		return nil, err
	}
	metrics.RecordFetch(src.ID, float64(time.Since(start).Milliseconds()), len(records))
	return records, nil
}

type fetchResult struct {
	records []adapter.Record
	err     error
}

// boundedFetch returns when the fetcher does or when ctx ends, whichever is
// first. A fetcher that ignores ctx is left to finish in the background.
func (o *Orchestrator) boundedFetch(ctx context.Context, src model.SourceConfig) ([]adapter.Record, error) { //nolint:gocritic // hugeParam
	done := make(chan fetchResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fetchResult{err: fmt.Errorf("%w: %v", ErrJobPanic, r)}
			}
		}()
		records, err := o.fetcher.Fetch(ctx, src)
		done <- fetchResult{records: records, err: err}
	}()

	select {
	case r := <-done:
		if r.err == nil && ctx.Err() != nil {
			// finished, but past the deadline
			return nil, ctx.Err()
		}
		return r.records, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (o *Orchestrator) handOff(ctx context.Context, sourceID string, alerts []model.Alert) {
	if o.sink == nil || len(alerts) == 0 {
		return
	}
	if err := o.sink(ctx, sourceID, alerts); err != nil {
		metrics.RecordErrorByComponent("orchestrator", "alert_sink")
		o.logger.Error(ctx, "alert hand-off failed", logger.String("source_id", sourceID), logger.Error(err))
		if o.deduper != nil {
			for _, a := range alerts {
				o.deduper.Unrecord(ctx, a.Key())
			}
		}
	}
}
