package usage

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/lessonforge/scribe/internal/types"
)

// Filter selects outcomes for a usage report. Zero values match everything.
type Filter struct {
	WorkflowID string
	StepName   string
}

type aggKey struct {
	workflowID string
	stepName   string
	provider   string
	model      string
}

type aggregate struct {
	count        int64
	errorCount   int64
	inputTokens  int64
	outputTokens int64
	costUSD      float64
	avgDurMs     float64
}

// Tracker records one GenerationOutcome per terminal request and serves usage
// reports from incrementally maintained aggregates, so reporting never
// re-scans the full history. The append path is a narrow critical section;
// the request lifecycle itself runs outside the lock.
type Tracker struct {
	mu         sync.Mutex
	history    []types.GenerationOutcome
	aggregates map[aggKey]*aggregate

	store  OutcomeStore
	logger *slog.Logger
}

// NewTracker creates a tracker. store may be nil, in which case outcomes are
// kept in memory only.
func NewTracker(store OutcomeStore, logger *slog.Logger) *Tracker {
	return &Tracker{
		aggregates: make(map[aggKey]*aggregate),
		store:      store,
		logger:     logger,
	}
}

// Record appends an outcome. Outcomes are immutable once recorded; persistence
// failures are logged, never surfaced to the request path.
func (t *Tracker) Record(ctx context.Context, o types.GenerationOutcome) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}

	t.mu.Lock()
	t.history = append(t.history, o)
	key := aggKey{workflowID: o.WorkflowID, stepName: o.StepName, provider: o.Provider, model: o.Model}
	agg, ok := t.aggregates[key]
	if !ok {
		agg = &aggregate{}
		t.aggregates[key] = agg
	}
	agg.count++
	if o.Status == types.StatusError {
		agg.errorCount++
	}
	if o.InputTokens != nil {
		agg.inputTokens += int64(*o.InputTokens)
	}
	if o.OutputTokens != nil {
		agg.outputTokens += int64(*o.OutputTokens)
	}
	agg.costUSD += o.CostUSD
	// Welford-style running mean; avoids summing and dividing at report time.
	agg.avgDurMs += (float64(o.Duration.Milliseconds()) - agg.avgDurMs) / float64(agg.count)
	t.mu.Unlock()

	if t.store != nil {
		if err := t.store.Insert(ctx, o); err != nil {
			t.logger.Error("failed to persist generation outcome", "error", err, "outcome_id", o.ID)
		}
	}
}

// Count returns the number of recorded outcomes.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.history)
}

// Outcomes returns a copy of the recorded history, oldest first.
func (t *Tracker) Outcomes() []types.GenerationOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.GenerationOutcome, len(t.history))
	copy(out, t.history)
	return out
}

// Report aggregates recorded outcomes by provider+model, restricted to the
// filter. Reports are always recomputed from the aggregates, never stored.
func (t *Tracker) Report(filter Filter) types.UsageReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	type lineKey struct{ provider, model string }
	merged := make(map[lineKey]*aggregate)
	for key, agg := range t.aggregates {
		if filter.WorkflowID != "" && key.workflowID != filter.WorkflowID {
			continue
		}
		if filter.StepName != "" && key.stepName != filter.StepName {
			continue
		}
		lk := lineKey{provider: key.provider, model: key.model}
		m, ok := merged[lk]
		if !ok {
			m = &aggregate{}
			merged[lk] = m
		}
		mergeInto(m, agg)
	}

	report := types.UsageReport{
		WorkflowID: filter.WorkflowID,
		StepName:   filter.StepName,
	}
	totals := &aggregate{}
	for lk, agg := range merged {
		report.Lines = append(report.Lines, types.UsageLine{
			Provider:       lk.provider,
			Model:          lk.model,
			UsageAggregate: toAggregate(agg),
		})
		mergeInto(totals, agg)
	}
	sort.Slice(report.Lines, func(i, j int) bool {
		if report.Lines[i].Provider != report.Lines[j].Provider {
			return report.Lines[i].Provider < report.Lines[j].Provider
		}
		return report.Lines[i].Model < report.Lines[j].Model
	})
	report.Totals = toAggregate(totals)
	return report
}

// mergeInto folds src into dst, combining running averages by weight.
func mergeInto(dst, src *aggregate) {
	total := dst.count + src.count
	if total > 0 {
		dst.avgDurMs = (dst.avgDurMs*float64(dst.count) + src.avgDurMs*float64(src.count)) / float64(total)
	}
	dst.count = total
	dst.errorCount += src.errorCount
	dst.inputTokens += src.inputTokens
	dst.outputTokens += src.outputTokens
	dst.costUSD += src.costUSD
}

func toAggregate(a *aggregate) types.UsageAggregate {
	return types.UsageAggregate{
		Count:         a.count,
		ErrorCount:    a.errorCount,
		InputTokens:   a.inputTokens,
		OutputTokens:  a.outputTokens,
		CostUSD:       a.costUSD,
		AvgDurationMs: a.avgDurMs,
	}
}
