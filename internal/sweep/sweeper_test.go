package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/estatehub/reportsweep/internal/inquiry"
	"github.com/estatehub/reportsweep/internal/report"
	"github.com/estatehub/reportsweep/internal/rule"
	"github.com/estatehub/reportsweep/internal/store"
	"github.com/estatehub/reportsweep/internal/synthesis"
)

// 2024-12-01 09:30 UTC, half an hour past a Sunday 09:00 due date
var sweepTime = time.Date(2024, 12, 1, 9, 30, 0, 0, time.UTC)

type fakeSynth struct {
	calls     atomic.Int64
	err       error
	panicMsg  string
	narrative string
}

func (f *fakeSynth) Synthesize(ctx context.Context, prop synthesis.PropertyContext, events []inquiry.Event) (*synthesis.Result, error) {
	f.calls.Add(1)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return nil, f.err
	}
	summaries := make([]synthesis.EventSummary, 0, len(events))
	for _, ev := range events {
		summaries = append(summaries, synthesis.EventSummary{
			EventID:      ev.EventID,
			CustomerID:   ev.CustomerID,
			CustomerName: ev.CustomerName,
			Content:      "summary of " + ev.EventID,
		})
	}
	return &synthesis.Result{Narrative: f.narrative, Summaries: summaries}, nil
}

func setupSweeper(t *testing.T) (*Sweeper, *store.RedisStore, *fakeSynth, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	st, err := store.NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	synth := &fakeSynth{narrative: "A quiet week."}
	sw := NewSweeper(st, st, inquiry.NewAggregator(st), synth, st, st.Client(), Config{Concurrency: 2})
	sw.SetNow(func() time.Time { return sweepTime })

	return sw, st, synth, mr
}

func dueTestRule(createdAt time.Time) *rule.Rule {
	return &rule.Rule{
		TenantID:        "tenant-1",
		CreatedAt:       createdAt,
		PropertyID:      "prop-1",
		PropertyName:    "Sunrise Court 203",
		StartDate:       time.Date(2024, 11, 17, 0, 0, 0, 0, time.UTC),
		Period:          rule.PeriodOneWeek,
		TargetWeekday:   0,
		ExecutionTime:   rule.ExecutionTime{Hour: 9},
		AutoGenerate:    true,
		Status:          rule.StatusActive,
		NextExecutionAt: time.Date(2024, 12, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestRun_SuccessAdvancesRuleAndPersistsReport(t *testing.T) {
	sw, st, synth, mr := setupSweeper(t)
	defer mr.Close()
	defer st.Close()

	ctx := context.Background()
	createdAt := time.Date(2024, 11, 17, 12, 0, 0, 0, time.UTC)
	if err := st.CreateRule(ctx, dueTestRule(createdAt)); err != nil {
		t.Fatalf("failed to create rule: %v", err)
	}

	// Two events inside the report window, one before it
	windowStart := time.Date(2024, 11, 24, 9, 0, 0, 0, time.UTC)
	events := []inquiry.Event{
		{EventID: "ev-old", PropertyID: "prop-1", CustomerID: "cust-1", Category: inquiry.CategoryInquiry, OccurredAt: windowStart.Add(-24 * time.Hour)},
		{EventID: "ev-1", PropertyID: "prop-1", CustomerID: "cust-1", Category: inquiry.CategoryInquiry, OccurredAt: windowStart.Add(24 * time.Hour)},
		{EventID: "ev-2", PropertyID: "prop-1", CustomerID: "cust-2", Category: inquiry.CategoryViewing, OccurredAt: windowStart.Add(48 * time.Hour)},
	}
	for _, ev := range events {
		if err := st.AddEvent(ctx, ev); err != nil {
			t.Fatalf("failed to add event: %v", err)
		}
	}

	if err := sw.Run(ctx, "tenant-1"); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	got, err := st.GetRule(ctx, "tenant-1", createdAt)
	if err != nil {
		t.Fatalf("failed to reload rule: %v", err)
	}
	if got.ExecutionCount != 1 {
		t.Errorf("expected execution count 1, got %d", got.ExecutionCount)
	}
	if got.LastExecutionAt == nil || !got.LastExecutionAt.Equal(sweepTime) {
		t.Errorf("last execution mismatch: %v", got.LastExecutionAt)
	}
	wantNext := time.Date(2024, 12, 8, 9, 0, 0, 0, time.UTC)
	if !got.NextExecutionAt.Equal(wantNext) {
		t.Errorf("next execution mismatch: got %v, want %v", got.NextExecutionAt, wantNext)
	}

	ids, err := st.ListReports(ctx, "prop-1", windowStart, sweepTime)
	if err != nil {
		t.Fatalf("failed to list reports: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected 1 report, got %d", len(ids))
	}

	rep, err := st.GetReport(ctx, ids[0])
	if err != nil {
		t.Fatalf("failed to load report: %v", err)
	}
	if rep.Narrative != "A quiet week." {
		t.Errorf("unexpected narrative: %q", rep.Narrative)
	}
	if len(rep.Interactions) != 2 {
		t.Errorf("expected 2 interactions in report, got %d", len(rep.Interactions))
	}
	if synth.calls.Load() != 1 {
		t.Errorf("expected 1 synthesis call, got %d", synth.calls.Load())
	}
}

func TestRun_SynthesisFailureLeavesRuleUntouched(t *testing.T) {
	sw, st, synth, mr := setupSweeper(t)
	defer mr.Close()
	defer st.Close()

	synth.err = fmt.Errorf("%w: status 502", synthesis.ErrRemote)

	ctx := context.Background()
	createdAt := time.Date(2024, 11, 17, 12, 0, 0, 0, time.UTC)
	original := dueTestRule(createdAt)
	if err := st.CreateRule(ctx, original); err != nil {
		t.Fatalf("failed to create rule: %v", err)
	}

	if err := sw.Run(ctx, "tenant-1"); err != nil {
		t.Fatalf("sweep must swallow per-rule failures: %v", err)
	}

	got, err := st.GetRule(ctx, "tenant-1", createdAt)
	if err != nil {
		t.Fatalf("failed to reload rule: %v", err)
	}
	if got.ExecutionCount != 0 {
		t.Errorf("execution count changed on failure: %d", got.ExecutionCount)
	}
	if !got.NextExecutionAt.Equal(original.NextExecutionAt) {
		t.Errorf("next execution changed on failure: %v", got.NextExecutionAt)
	}
	if got.LastExecutionAt != nil {
		t.Errorf("last execution set on failure: %v", got.LastExecutionAt)
	}

	ids, err := st.ListReports(ctx, "prop-1", time.Time{}, sweepTime.AddDate(1, 0, 0))
	if err != nil {
		t.Fatalf("failed to list reports: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("report persisted despite synthesis failure")
	}

	// The rule stays due and is picked up again on the next sweep
	due, err := st.ListDue(ctx, "tenant-1", sweepTime)
	if err != nil {
		t.Fatalf("failed to list due rules: %v", err)
	}
	if len(due) != 1 {
		t.Errorf("failed rule no longer due")
	}
}

func TestRun_EmptyWindowStillCompletes(t *testing.T) {
	sw, st, synth, mr := setupSweeper(t)
	defer mr.Close()
	defer st.Close()

	synth.narrative = "No customer activity this period."

	ctx := context.Background()
	createdAt := time.Date(2024, 11, 17, 12, 0, 0, 0, time.UTC)
	if err := st.CreateRule(ctx, dueTestRule(createdAt)); err != nil {
		t.Fatalf("failed to create rule: %v", err)
	}

	if err := sw.Run(ctx, "tenant-1"); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	got, err := st.GetRule(ctx, "tenant-1", createdAt)
	if err != nil {
		t.Fatalf("failed to reload rule: %v", err)
	}
	if got.ExecutionCount != 1 {
		t.Errorf("expected one advancement, got count %d", got.ExecutionCount)
	}

	ids, err := st.ListReports(ctx, "prop-1", time.Time{}, sweepTime)
	if err != nil {
		t.Fatalf("failed to list reports: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected 1 report, got %d", len(ids))
	}

	rep, err := st.GetReport(ctx, ids[0])
	if err != nil {
		t.Fatalf("failed to load report: %v", err)
	}
	if len(rep.Interactions) != 0 {
		t.Errorf("expected empty interaction list, got %d", len(rep.Interactions))
	}
	if rep.Narrative == "" {
		t.Error("expected a narrative for the empty window")
	}

	// Running again immediately must not advance twice
	if err := sw.Run(ctx, "tenant-1"); err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	got, err = st.GetRule(ctx, "tenant-1", createdAt)
	if err != nil {
		t.Fatalf("failed to reload rule: %v", err)
	}
	if got.ExecutionCount != 1 {
		t.Errorf("rule advanced twice: count %d", got.ExecutionCount)
	}
}

func TestRun_PanicInOnePipelineDoesNotStallTheSweep(t *testing.T) {
	_, st, synth, mr := setupSweeper(t)
	defer mr.Close()
	defer st.Close()

	synth.panicMsg = "synthesizer blew up"

	ctx := context.Background()
	firstCreated := time.Date(2024, 11, 17, 12, 0, 0, 0, time.UTC)
	secondCreated := time.Date(2024, 11, 18, 12, 0, 0, 0, time.UTC)
	if err := st.CreateRule(ctx, dueTestRule(firstCreated)); err != nil {
		t.Fatalf("failed to create rule: %v", err)
	}
	second := dueTestRule(secondCreated)
	second.PropertyID = "prop-2"
	if err := st.CreateRule(ctx, second); err != nil {
		t.Fatalf("failed to create rule: %v", err)
	}

	// A single worker must survive the first rule's panic and drain the
	// second; a stalled sweep never closes done
	sw := NewSweeper(st, st, inquiry.NewAggregator(st), synth, st, st.Client(), Config{Concurrency: 1})
	sw.SetNow(func() time.Time { return sweepTime })

	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx, "tenant-1") }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("sweep failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("sweep did not return after a pipeline panic")
	}

	if synth.calls.Load() != 2 {
		t.Errorf("expected both rules attempted, got %d synthesis calls", synth.calls.Load())
	}

	for _, createdAt := range []time.Time{firstCreated, secondCreated} {
		got, err := st.GetRule(ctx, "tenant-1", createdAt)
		if err != nil {
			t.Fatalf("failed to reload rule: %v", err)
		}
		if got.ExecutionCount != 0 {
			t.Errorf("rule advanced despite panic: count %d", got.ExecutionCount)
		}
	}
}

type failingReports struct{}

func (failingReports) SaveReport(ctx context.Context, rep *report.Report) (string, error) {
	return "", errors.New("storage unavailable")
}

func TestRun_PersistenceFailureBlocksAdvancement(t *testing.T) {
	_, st, synth, mr := setupSweeper(t)
	defer mr.Close()
	defer st.Close()

	sw := NewSweeper(st, failingReports{}, inquiry.NewAggregator(st), synth, st, st.Client(), Config{Concurrency: 1})
	sw.SetNow(func() time.Time { return sweepTime })

	ctx := context.Background()
	createdAt := time.Date(2024, 11, 17, 12, 0, 0, 0, time.UTC)
	if err := st.CreateRule(ctx, dueTestRule(createdAt)); err != nil {
		t.Fatalf("failed to create rule: %v", err)
	}

	if err := sw.Run(ctx, "tenant-1"); err != nil {
		t.Fatalf("sweep must swallow per-rule failures: %v", err)
	}

	got, err := st.GetRule(ctx, "tenant-1", createdAt)
	if err != nil {
		t.Fatalf("failed to reload rule: %v", err)
	}
	if got.ExecutionCount != 0 {
		t.Errorf("rule advanced despite persistence failure: count %d", got.ExecutionCount)
	}
}

// dupRuleStore returns the same rule twice from a due listing and counts
// advances
type dupRuleStore struct {
	r        *rule.Rule
	advances atomic.Int64
}

func (d *dupRuleStore) ListDue(ctx context.Context, tenantID string, asOf time.Time) ([]*rule.Rule, error) {
	return []*rule.Rule{d.r, d.r}, nil
}

func (d *dupRuleStore) AdvanceRule(ctx context.Context, tenantID string, createdAt time.Time, expectedCount int64, newNext, lastRun time.Time) (*rule.Rule, error) {
	d.advances.Add(1)
	updated := *d.r
	updated.ExecutionCount = expectedCount + 1
	updated.NextExecutionAt = newNext
	return &updated, nil
}

func TestRun_DeduplicatesDueListing(t *testing.T) {
	_, st, synth, mr := setupSweeper(t)
	defer mr.Close()
	defer st.Close()

	dup := &dupRuleStore{r: dueTestRule(time.Date(2024, 11, 17, 12, 0, 0, 0, time.UTC))}
	sw := NewSweeper(dup, st, inquiry.NewAggregator(st), synth, st, st.Client(), Config{Concurrency: 4})
	sw.SetNow(func() time.Time { return sweepTime })

	if err := sw.Run(context.Background(), "tenant-1"); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	if dup.advances.Load() != 1 {
		t.Errorf("duplicate due entry processed twice: %d advances", dup.advances.Load())
	}
	if synth.calls.Load() != 1 {
		t.Errorf("duplicate due entry synthesized twice: %d calls", synth.calls.Load())
	}
}

func TestRun_SkipsWhenSweepLockHeld(t *testing.T) {
	sw, st, synth, mr := setupSweeper(t)
	defer mr.Close()
	defer st.Close()

	ctx := context.Background()
	createdAt := time.Date(2024, 11, 17, 12, 0, 0, 0, time.UTC)
	if err := st.CreateRule(ctx, dueTestRule(createdAt)); err != nil {
		t.Fatalf("failed to create rule: %v", err)
	}

	lock, err := store.AcquireLock(ctx, st.Client(), st.SweepLockKey("tenant-1"), time.Minute)
	if err != nil || lock == nil {
		t.Fatalf("failed to pre-acquire sweep lock: %v", err)
	}

	if err := sw.Run(ctx, "tenant-1"); err != nil {
		t.Fatalf("locked sweep must return nil: %v", err)
	}
	if synth.calls.Load() != 0 {
		t.Errorf("locked sweep still processed rules: %d synthesis calls", synth.calls.Load())
	}

	got, err := st.GetRule(ctx, "tenant-1", createdAt)
	if err != nil {
		t.Fatalf("failed to reload rule: %v", err)
	}
	if got.ExecutionCount != 0 {
		t.Errorf("locked sweep advanced a rule")
	}
}

func TestRun_RuleVanishedBeforeAdvance(t *testing.T) {
	_, st, synth, mr := setupSweeper(t)
	defer mr.Close()
	defer st.Close()

	// The rule is listed as due but deleted before the advance; the sweep
	// must tolerate the miss and keep going
	vanish := &vanishingRuleStore{r: dueTestRule(time.Date(2024, 11, 17, 12, 0, 0, 0, time.UTC))}
	sw := NewSweeper(vanish, st, inquiry.NewAggregator(st), synth, st, st.Client(), Config{Concurrency: 1})
	sw.SetNow(func() time.Time { return sweepTime })

	if err := sw.Run(context.Background(), "tenant-1"); err != nil {
		t.Fatalf("sweep must tolerate vanished rules: %v", err)
	}
}

type vanishingRuleStore struct {
	r *rule.Rule
}

func (v *vanishingRuleStore) ListDue(ctx context.Context, tenantID string, asOf time.Time) ([]*rule.Rule, error) {
	return []*rule.Rule{v.r}, nil
}

func (v *vanishingRuleStore) AdvanceRule(ctx context.Context, tenantID string, createdAt time.Time, expectedCount int64, newNext, lastRun time.Time) (*rule.Rule, error) {
	return nil, store.ErrRuleNotFound
}

func TestReportWindow(t *testing.T) {
	r := dueTestRule(time.Date(2024, 11, 17, 12, 0, 0, 0, time.UTC))

	// First run: one period before the due date
	start, end := reportWindow(r, sweepTime)
	wantStart := time.Date(2024, 11, 24, 9, 0, 0, 0, time.UTC)
	if !start.Equal(wantStart) {
		t.Errorf("first-run window start: got %v, want %v", start, wantStart)
	}
	if !end.Equal(sweepTime) {
		t.Errorf("window end: got %v, want %v", end, sweepTime)
	}

	// Subsequent runs: since the last successful execution
	last := time.Date(2024, 11, 24, 9, 2, 0, 0, time.UTC)
	r.LastExecutionAt = &last
	start, _ = reportWindow(r, sweepTime)
	if !start.Equal(last) {
		t.Errorf("repeat-run window start: got %v, want %v", start, last)
	}
}
