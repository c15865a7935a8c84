package rules

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/okian/civicwatch/internal/domain/model"
	"github.com/okian/civicwatch/pkg/logger"
)

// Engine evaluates a fixed rule set. It is stateless after construction and
// safe for concurrent use.
type Engine struct {
	rules   []compiled
	skipped []error
	log     logger.Logger
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for rule warnings.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithClock overrides the clock stamped on generated alerts.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New compiles rules. Malformed rules are dropped with a warning and
// reported by Skipped; they never stop the remaining rules from loading.
func New(rules []Rule, opts ...Option) *Engine {
	e := &Engine{log: logger.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	ctx := context.Background()
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		c, err := compile(r)
		if err == nil && seen[c.name] {
			err = fmt.Errorf("%w: duplicate rule name %s", ErrInvalidRule, c.name)
		}
		if err != nil {
			e.skipped = append(e.skipped, err)
			e.log.Warn(ctx, "skipping malformed rule", logger.Int("index", i), logger.String("rule", r.Name), logger.Error(err))
			continue
		}
		seen[c.name] = true
		if !r.IsEnabled() {
			e.log.Debug(ctx, "rule disabled", logger.String("rule", c.name))
			continue
		}
		if c.empty {
			e.log.Warn(ctx, "rule has no predicates and will never match", logger.String("rule", c.name))
		}
		e.rules = append(e.rules, c)
	}
	// severity desc, then name, so input order never shows in the output
	sort.SliceStable(e.rules, func(i, j int) bool {
		return less(e.rules[i].severity, e.rules[i].name, e.rules[j].severity, e.rules[j].name)
	})
	return e
}

// Len returns the number of active rules.
func (e *Engine) Len() int { return len(e.rules) }

// Skipped returns the validation errors of dropped rules.
func (e *Engine) Skipped() []error { return append([]error(nil), e.skipped...) }

// Evaluate runs every active rule against ev and returns the alerts of the
// rules that matched, ordered by severity then rule name. A rule that panics
// is logged and skipped.
func (e *Engine) Evaluate(ev model.CivicEvent) []model.Alert {
	now := e.now().UTC()
	var alerts []model.Alert
	for i := range e.rules {
		a, ok := e.apply(&e.rules[i], &ev, now)
		if ok {
			alerts = append(alerts, a)
		}
	}
	return alerts
}

func (e *Engine) apply(c *compiled, ev *model.CivicEvent, now time.Time) (a model.Alert, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn(context.Background(), "rule evaluation panicked",
				logger.String("rule", c.name), logger.Error(fmt.Errorf("%v", r)))
			a, ok = model.Alert{}, false
		}
	}()
	if !c.match(ev) {
		return model.Alert{}, false
	}
	return model.Alert{
		RuleName:    c.name,
		Severity:    c.severity,
		EventID:     ev.EventID,
		SourceID:    ev.SourceID,
		Message:     c.render(ev),
		GeneratedAt: now,
	}, true
}

func less(si model.Severity, ni string, sj model.Severity, nj string) bool {
	if si.Rank() != sj.Rank() {
		return si.Rank() > sj.Rank()
	}
	return ni < nj
}

// SortAlerts orders alerts by severity desc, rule name, then event id.
func SortAlerts(alerts []model.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Severity != alerts[j].Severity || alerts[i].RuleName != alerts[j].RuleName {
			return less(alerts[i].Severity, alerts[i].RuleName, alerts[j].Severity, alerts[j].RuleName)
		}
		return alerts[i].EventID < alerts[j].EventID
	})
}
