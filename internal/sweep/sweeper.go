// Package sweep orchestrates one pass over a tenant's due recurrence rules:
// aggregate the property's events, synthesize a report, persist it, and
// advance the rule. A failed rule keeps its due date and is retried on the
// next sweep; unchanged state is the retry mechanism.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/estatehub/reportsweep/internal/inquiry"
	"github.com/estatehub/reportsweep/internal/logger"
	"github.com/estatehub/reportsweep/internal/metrics"
	"github.com/estatehub/reportsweep/internal/report"
	"github.com/estatehub/reportsweep/internal/rule"
	"github.com/estatehub/reportsweep/internal/store"
	"github.com/estatehub/reportsweep/internal/synthesis"
)

// RuleStore is the rule persistence port the sweep consumes
type RuleStore interface {
	ListDue(ctx context.Context, tenantID string, asOf time.Time) ([]*rule.Rule, error)
	AdvanceRule(ctx context.Context, tenantID string, createdAt time.Time, expectedCount int64, newNext, lastRun time.Time) (*rule.Rule, error)
}

// ReportStore is the report persistence port
type ReportStore interface {
	SaveReport(ctx context.Context, rep *report.Report) (string, error)
}

// Aggregator collects a property's events for a window
type Aggregator interface {
	Collect(ctx context.Context, propertyID string, start, end time.Time) ([]inquiry.Event, error)
}

// LockKeys names the lock keys the sweep uses
type LockKeys interface {
	SweepLockKey(tenantID string) string
	RuleLockKey(identity string) string
}

// Config tunes one sweeper instance
type Config struct {
	// Concurrency bounds the worker pool processing due rules
	Concurrency int
	// SweepLockTTL bounds the per-tenant sweep lock
	SweepLockTTL time.Duration
	// RuleLockTTL bounds the per-rule processing marker
	RuleLockTTL time.Duration
}

// Sweeper runs timer-triggered sweeps over a tenant's due rules
type Sweeper struct {
	rules   RuleStore
	reports ReportStore
	agg     Aggregator
	synth   synthesis.Synthesizer
	keys    LockKeys
	client  *redis.Client
	cfg     Config
	log     logger.Logger
	now     func() time.Time
}

// NewSweeper wires a sweeper from its collaborators. The Redis client is
// used only for distributed locks and processing markers.
func NewSweeper(rules RuleStore, reports ReportStore, agg Aggregator, synth synthesis.Synthesizer, keys LockKeys, client *redis.Client, cfg Config) *Sweeper {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.SweepLockTTL <= 0 {
		cfg.SweepLockTTL = 5 * time.Minute
	}
	if cfg.RuleLockTTL <= 0 {
		cfg.RuleLockTTL = 2 * time.Minute
	}
	return &Sweeper{
		rules:   rules,
		reports: reports,
		agg:     agg,
		synth:   synth,
		keys:    keys,
		client:  client,
		cfg:     cfg,
		log:     logger.Default().WithComponent(logger.ComponentSweeper),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetNow overrides the sweeper's clock (tests only)
func (s *Sweeper) SetNow(now func() time.Time) {
	s.now = now
}

// Run performs one sweep for a tenant. Per-rule failures are logged and
// swallowed; only listing failures and lock transport errors are returned.
func (s *Sweeper) Run(ctx context.Context, tenantID string) error {
	asOf := s.now()
	metrics.Global().RecordSweepStarted()

	lock, err := store.AcquireLock(ctx, s.client, s.keys.SweepLockKey(tenantID), s.cfg.SweepLockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire sweep lock for tenant %s: %w", tenantID, err)
	}
	if lock == nil {
		s.log.Debug("Sweep already running for tenant, skipping", "tenant_id", tenantID)
		return nil
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			s.log.Error("Failed to release sweep lock", "tenant_id", tenantID, "error", err)
		}
	}()

	due, err := s.rules.ListDue(ctx, tenantID, asOf)
	if err != nil {
		return fmt.Errorf("failed to list due rules for tenant %s: %w", tenantID, err)
	}
	due = dedupe(due)

	s.log.Info("Sweep started",
		"tenant_id", tenantID,
		"due_rules", len(due),
		"as_of", asOf.Format(time.RFC3339))

	if len(due) > 0 {
		s.processAll(ctx, due, asOf)
	}

	metrics.Global().RecordSweepCompleted()
	s.log.Info("Sweep completed", "tenant_id", tenantID, "due_rules", len(due))
	return nil
}

// processAll runs the due rules through a bounded worker pool. Rules for
// different properties are independent; the per-rule lock keeps the same
// rule from running twice.
func (s *Sweeper) processAll(ctx context.Context, due []*rule.Rule, asOf time.Time) {
	workers := s.cfg.Concurrency
	if workers > len(due) {
		workers = len(due)
	}

	jobs := make(chan *rule.Rule)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for r := range jobs {
				s.processRuleSafe(ctx, r, asOf, workerID)
			}
		}(i + 1)
	}

	for _, r := range due {
		jobs <- r
	}
	close(jobs)
	wg.Wait()
}

// processRuleSafe confines a panic to the rule that raised it so the worker
// stays alive to drain the remaining jobs
func (s *Sweeper) processRuleSafe(ctx context.Context, r *rule.Rule, asOf time.Time, workerID int) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("Rule processing panicked",
				"worker_id", workerID,
				"tenant_id", r.TenantID,
				"rule", r.Identity(),
				"panic_value", rec,
				"stack_trace", string(debug.Stack()))
			metrics.Global().RecordRuleFailed()
		}
	}()
	s.processRule(ctx, r, asOf)
}

// processRule runs one rule's pipeline under a processing marker and
// translates any failure into a logged, non-fatal outcome
func (s *Sweeper) processRule(ctx context.Context, r *rule.Rule, asOf time.Time) {
	metrics.Global().RecordRuleProcessed()

	ruleLog := s.log.WithFields(map[string]interface{}{
		"tenant_id":   r.TenantID,
		"property_id": r.PropertyID,
		"rule":        r.Identity(),
	})

	lock, err := store.AcquireLock(ctx, s.client, s.keys.RuleLockKey(r.Identity()), s.cfg.RuleLockTTL)
	if err != nil {
		ruleLog.Error("Failed to acquire rule processing lock", "error", err)
		metrics.Global().RecordRuleFailed()
		return
	}
	if lock == nil {
		ruleLog.Debug("Rule already being processed, skipping")
		metrics.Global().RecordRuleSkipped()
		return
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			ruleLog.Error("Failed to release rule processing lock", "error", err)
		}
	}()

	if err := s.runPipeline(ctx, r, asOf, ruleLog); err != nil {
		switch {
		case errors.Is(err, store.ErrRuleNotFound):
			// Deleted between listing and advancing; nothing to retry
			ruleLog.Warn("Rule vanished during processing, skipping", "error", err)
			metrics.Global().RecordRuleSkipped()
		case errors.Is(err, store.ErrAdvanceConflict):
			// The report was already persisted; the next sweep may produce a
			// duplicate for this occurrence
			ruleLog.Warn("Rule advance rejected due to concurrent modification", "error", err)
			metrics.Global().RecordAdvanceConflict()
			metrics.Global().RecordRuleFailed()
		default:
			if errors.Is(err, synthesis.ErrRemote) || errors.Is(err, synthesis.ErrMalformedResponse) {
				metrics.Global().RecordSynthesisFailure()
			}
			ruleLog.Error("Rule processing failed, will retry next sweep", "error", err)
			metrics.Global().RecordRuleFailed()
		}
		return
	}

	metrics.Global().RecordRuleSucceeded()
}

// runPipeline is the per-rule happy path: aggregate, synthesize, persist,
// advance. Each stage failure aborts before the next; the rule is advanced
// only after the report is safely persisted.
func (s *Sweeper) runPipeline(ctx context.Context, r *rule.Rule, asOf time.Time, ruleLog logger.Logger) error {
	windowStart, windowEnd := reportWindow(r, asOf)

	events, err := s.agg.Collect(ctx, r.PropertyID, windowStart, windowEnd)
	if err != nil {
		return fmt.Errorf("aggregation failed: %w", err)
	}

	prop := synthesis.PropertyContext{
		PropertyID:   r.PropertyID,
		PropertyName: r.PropertyName,
		Counters:     countEvents(events),
		PeriodStart:  windowStart,
		PeriodEnd:    windowEnd,
	}

	result, err := s.synth.Synthesize(ctx, prop, events)
	if err != nil {
		return fmt.Errorf("synthesis failed: %w", err)
	}

	rep := report.New(r.TenantID, r.PropertyID, windowStart, windowEnd,
		result.Narrative, toInteractions(events, result.Summaries))
	if _, err := s.reports.SaveReport(ctx, rep); err != nil {
		return fmt.Errorf("report persistence failed: %w", err)
	}

	completion := s.now()
	newNext := rule.NextAfterRun(completion, r.TargetWeekday, r.ExecutionTime, r.Period)
	if _, err := s.rules.AdvanceRule(ctx, r.TenantID, r.CreatedAt, r.ExecutionCount, newNext, completion); err != nil {
		return fmt.Errorf("advancement failed: %w", err)
	}

	metrics.Global().RecordReportPersisted()
	ruleLog.Info("Report generated",
		"report_id", rep.ID,
		"events", len(events),
		"next_execution_at", newNext.Format(time.RFC3339))
	return nil
}

// reportWindow determines the period a report covers: from the last
// successful run (or one period before the due date on the first run) up to
// the sweep instant
func reportWindow(r *rule.Rule, asOf time.Time) (time.Time, time.Time) {
	if r.LastExecutionAt != nil {
		return r.LastExecutionAt.UTC(), asOf
	}
	return r.NextExecutionAt.AddDate(0, 0, -r.Period.Days()).UTC(), asOf
}

// countEvents tallies the window's events into the statistics the narrative
// call expects
func countEvents(events []inquiry.Event) synthesis.Counters {
	var c synthesis.Counters
	for _, ev := range events {
		switch ev.Category {
		case inquiry.CategoryInquiry:
			c.Inquiries++
		case inquiry.CategoryViewing:
			c.Viewings++
		case inquiry.CategoryMeeting:
			c.Meetings++
		case inquiry.CategoryView:
			c.Views++
		}
	}
	return c
}

// toInteractions pairs events with their summaries; both slices share the
// same order after the synthesizer's identity matching
func toInteractions(events []inquiry.Event, summaries []synthesis.EventSummary) []report.InteractionSummary {
	out := make([]report.InteractionSummary, 0, len(summaries))
	for i, s := range summaries {
		item := report.InteractionSummary{
			EventID:      s.EventID,
			CustomerID:   s.CustomerID,
			CustomerName: s.CustomerName,
			Summary:      s.Content,
		}
		if i < len(events) {
			item.Category = events[i].Category
			item.OccurredAt = events[i].OccurredAt
		}
		out = append(out, item)
	}
	return out
}

// dedupe drops duplicate rule identities from a due listing so no rule is
// processed twice within one sweep
func dedupe(rules []*rule.Rule) []*rule.Rule {
	seen := make(map[string]bool, len(rules))
	out := rules[:0]
	for _, r := range rules {
		id := r.Identity()
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, r)
	}
	return out
}
