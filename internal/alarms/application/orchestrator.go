package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	alarms "shopfloor-cloud/internal/alarms/domain"
	"shopfloor-cloud/internal/alarms/evaluator"
	"shopfloor-cloud/internal/alarms/store"
	"shopfloor-cloud/internal/interval"
	"shopfloor-cloud/internal/observability/metrics"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// CheckOptions scope one orchestrator run. A zero Now falls back to the
// orchestrator clock; setting it is meant for tests.
type CheckOptions struct {
	Name     string
	MaxCount int
	Now      time.Time
}

// Firing reports one alarm that fired during a run. Count is the number
// of disjoint intervals of the intersection; exactly one event is
// created regardless.
type Firing struct {
	AlarmName string `json:"alarm_name"`
	Count     int    `json:"firing_count"`
	EventID   string `json:"event_id"`
}

// Orchestrator evaluates eligible alarm definitions against the log and
// creates alarm events plus per-subscriber recipient rows. One run is
// one transaction: it commits everything or aborts everything.
type Orchestrator struct {
	txr       store.TxRunner
	clock     Clock
	logger    *log.Logger
	slopeAxis evaluator.SlopeAxis
}

// OrchestratorOption customizes the orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithClock assigns a clock.
func WithClock(clock Clock) OrchestratorOption {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithSlopeAxis selects the slope aggregate axis.
func WithSlopeAxis(axis evaluator.SlopeAxis) OrchestratorOption {
	return func(o *Orchestrator) {
		o.slopeAxis = axis
	}
}

// NewOrchestrator constructs an orchestrator.
func NewOrchestrator(txr store.TxRunner, logger *log.Logger, opts ...OrchestratorOption) (*Orchestrator, error) {
	if txr == nil {
		return nil, errors.New("orchestrator: nil store")
	}
	o := &Orchestrator{
		txr:       txr,
		clock:     systemClock{},
		logger:    logger,
		slopeAxis: evaluator.SlopeSeconds,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Check runs one evaluation pass and returns the firings.
func (o *Orchestrator) Check(ctx context.Context, opts CheckOptions) ([]Firing, error) {
	if o == nil {
		return nil, errors.New("orchestrator: nil receiver")
	}
	now := opts.Now
	if now.IsZero() {
		now = o.clock.Now()
	}
	now = now.UTC()

	var firings []Firing
	err := o.txr.InTx(ctx, func(st store.Store) error {
		firings = nil
		candidates, suppressed, err := o.selectCandidates(ctx, st, opts, now)
		if err != nil {
			return err
		}
		for _, def := range candidates {
			firing, err := o.evaluateAlarm(ctx, st, def, now)
			if err != nil {
				return err
			}
			if err := st.MarkDefChecked(ctx, def.Name, now); err != nil {
				return err
			}
			if firing != nil {
				firings = append(firings, *firing)
			}
		}
		// The max_freq gate suppresses reporting, not the check itself:
		// gated definitions still record this run in last_check.
		for _, def := range suppressed {
			if err := st.MarkDefChecked(ctx, def.Name, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		metrics.IncAlarmCheck("error")
		return nil, err
	}
	metrics.IncAlarmCheck("success")
	return firings, nil
}

// selectCandidates splits the active definitions, optionally restricted
// by name, into those admitted by the max_freq gate and those it
// suppresses. Admitted definitions are truncated to the stalest
// MaxCount entries; truncated-out ones stay unchecked so they remain
// stale for the next run.
func (o *Orchestrator) selectCandidates(ctx context.Context, st store.Store, opts CheckOptions, now time.Time) (candidates, suppressed []alarms.Def, err error) {
	defs, err := st.ListDefs(ctx, store.DefFilter{Name: opts.Name, Status: alarms.StatusActive})
	if err != nil {
		return nil, nil, err
	}
	for _, def := range defs {
		if def.Reportable(now) {
			candidates = append(candidates, def)
		} else {
			suppressed = append(suppressed, def)
		}
	}
	if opts.MaxCount > 0 && len(candidates) > opts.MaxCount {
		sort.SliceStable(candidates, func(i, j int) bool {
			wi, wj := staleness(candidates[i], now), staleness(candidates[j], now)
			if wi != wj {
				return wi > wj
			}
			return candidates[i].LastCheck.Before(candidates[j].LastCheck)
		})
		candidates = candidates[:opts.MaxCount]
	}
	return candidates, suppressed, nil
}

// staleness weighs how overdue a definition is. Definitions without
// max_freq degrade to plain elapsed seconds since last_check.
func staleness(def alarms.Def, now time.Time) float64 {
	elapsed := now.Sub(def.LastCheck).Seconds()
	if gap, ok := def.MaxFreq(); ok {
		return elapsed / gap.Seconds()
	}
	return elapsed
}

func (o *Orchestrator) evaluateAlarm(ctx context.Context, st store.Store, def alarms.Def, now time.Time) (*Firing, error) {
	var total interval.Series
	haveTotal := false
	if window, ok := def.Window(); ok {
		total.Add(interval.From(def.LastCheck.Add(-window), ""))
		haveTotal = true
	}

	// Condition order matters: condition and event series bound the
	// probe range before samples widen their look-back.
	for _, cond := range orderConditions(def.Conditions) {
		from := def.LastCheck
		if cond.Kind == alarms.KindSample && haveTotal {
			if first, ok := total.First(); ok && first.Start != nil && first.Start.Before(from) {
				from = *first.Start
			}
		}
		ev, err := evaluator.Compile(cond, evaluator.WithSlopeAxis(o.slopeAxis))
		if err != nil {
			return nil, err
		}
		series, err := ev.Evaluate(ctx, st, from, now)
		if err != nil {
			return nil, err
		}
		if !haveTotal {
			total = series
			haveTotal = true
		} else {
			total = interval.Intersect(total, series, nil)
		}
		if total.Len() == 0 {
			return nil, nil
		}
	}
	if !haveTotal || total.Len() == 0 {
		return nil, nil
	}

	event := &alarms.Event{
		ID:          alarms.NewID(),
		AlarmName:   def.Name,
		Created:     now,
		Summary:     buildSummary(def.Name, total),
		Description: buildDescription(total),
	}
	if err := st.CreateEvent(ctx, event); err != nil {
		return nil, err
	}

	targets, err := st.ResolveGroup(ctx, def.SubsGroup)
	if err != nil {
		return nil, err
	}
	for _, target := range targets {
		recipient := &alarms.Recipient{
			ID:      alarms.NewID(),
			EventID: event.ID,
			User:    target.User,
			Method:  target.Method,
			Address: target.Address,
			Status:  alarms.RecipientOutbox,
		}
		if err := st.CreateRecipient(ctx, recipient); err != nil {
			return nil, err
		}
	}
	if err := st.MarkDefReported(ctx, def.Name, now); err != nil {
		return nil, err
	}

	if o.logger != nil {
		o.logger.Printf("alarm fired: name=%s intervals=%d recipients=%d", def.Name, total.Len(), len(targets))
	}
	metrics.IncAlarmFired()
	metrics.AddRecipientsCreated(len(targets))
	return &Firing{AlarmName: def.Name, Count: total.Len(), EventID: event.ID}, nil
}

func orderConditions(conds []alarms.Condition) []alarms.Condition {
	ordered := append([]alarms.Condition(nil), conds...)
	rank := func(kind alarms.ConditionKind) int {
		switch kind {
		case alarms.KindCondition:
			return 0
		case alarms.KindEvent:
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return rank(ordered[i].Kind) < rank(ordered[j].Kind)
	})
	return ordered
}

func buildSummary(name string, series interval.Series) string {
	first, _ := series.First()
	last, _ := series.Last()
	return fmt.Sprintf("%s   %s – %s", name, formatBound(first.Start), formatBound(last.End))
}

func buildDescription(series interval.Series) string {
	parts := make([]string, 0, series.Len())
	for _, p := range series.Periods() {
		b := strings.Builder{}
		b.WriteString(formatBound(p.Start))
		b.WriteString(" – ")
		b.WriteString(formatBound(p.End))
		if p.Extra != "" {
			for _, line := range strings.Split(p.Extra, "\n") {
				b.WriteString("\n\t")
				b.WriteString(line)
			}
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "\n\n")
}

func formatBound(t *time.Time) string {
	if t == nil {
		return "…"
	}
	return t.UTC().Format(time.RFC3339)
}

// Name identifies the checker to the scheduler.
func (o *Orchestrator) Name() string { return "alarm-check" }

// RunOnce runs an unscoped check pass for the scheduler.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	_, err := o.Check(ctx, CheckOptions{})
	return err
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
