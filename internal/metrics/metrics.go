// Package metrics tracks sweep outcomes in memory for operator visibility.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

var (
	globalCollector *Collector
	once            sync.Once
)

// Collector accumulates counters across sweeps
type Collector struct {
	sweepsStarted     atomic.Int64
	sweepsCompleted   atomic.Int64
	rulesProcessed    atomic.Int64
	rulesSucceeded    atomic.Int64
	rulesFailed       atomic.Int64
	rulesSkipped      atomic.Int64
	reportsPersisted  atomic.Int64
	synthesisFailures atomic.Int64
	advanceConflicts  atomic.Int64

	mu          sync.RWMutex
	startTime   time.Time
	lastSweepAt time.Time
}

// Metrics is a point-in-time snapshot of the collector
type Metrics struct {
	SweepsStarted     int64     `json:"sweeps_started"`
	SweepsCompleted   int64     `json:"sweeps_completed"`
	RulesProcessed    int64     `json:"rules_processed"`
	RulesSucceeded    int64     `json:"rules_succeeded"`
	RulesFailed       int64     `json:"rules_failed"`
	RulesSkipped      int64     `json:"rules_skipped"`
	ReportsPersisted  int64     `json:"reports_persisted"`
	SynthesisFailures int64     `json:"synthesis_failures"`
	AdvanceConflicts  int64     `json:"advance_conflicts"`
	LastSweepAt       time.Time `json:"last_sweep_at"`
	UptimeSeconds     float64   `json:"uptime_seconds"`
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Global returns the process-wide collector
func Global() *Collector {
	once.Do(func() {
		globalCollector = NewCollector()
	})
	return globalCollector
}

func (c *Collector) RecordSweepStarted() {
	c.sweepsStarted.Add(1)
	c.mu.Lock()
	c.lastSweepAt = time.Now()
	c.mu.Unlock()
}

func (c *Collector) RecordSweepCompleted()   { c.sweepsCompleted.Add(1) }
func (c *Collector) RecordRuleProcessed()    { c.rulesProcessed.Add(1) }
func (c *Collector) RecordRuleSucceeded()    { c.rulesSucceeded.Add(1) }
func (c *Collector) RecordRuleFailed()       { c.rulesFailed.Add(1) }
func (c *Collector) RecordRuleSkipped()      { c.rulesSkipped.Add(1) }
func (c *Collector) RecordReportPersisted()  { c.reportsPersisted.Add(1) }
func (c *Collector) RecordSynthesisFailure() { c.synthesisFailures.Add(1) }
func (c *Collector) RecordAdvanceConflict()  { c.advanceConflicts.Add(1) }

// Snapshot returns the current counter values
func (c *Collector) Snapshot() Metrics {
	c.mu.RLock()
	lastSweep := c.lastSweepAt
	start := c.startTime
	c.mu.RUnlock()

	return Metrics{
		SweepsStarted:     c.sweepsStarted.Load(),
		SweepsCompleted:   c.sweepsCompleted.Load(),
		RulesProcessed:    c.rulesProcessed.Load(),
		RulesSucceeded:    c.rulesSucceeded.Load(),
		RulesFailed:       c.rulesFailed.Load(),
		RulesSkipped:      c.rulesSkipped.Load(),
		ReportsPersisted:  c.reportsPersisted.Load(),
		SynthesisFailures: c.synthesisFailures.Load(),
		AdvanceConflicts:  c.advanceConflicts.Load(),
		LastSweepAt:       lastSweep,
		UptimeSeconds:     time.Since(start).Seconds(),
	}
}

// Reset zeroes all counters (tests only)
func (c *Collector) Reset() {
	c.sweepsStarted.Store(0)
	c.sweepsCompleted.Store(0)
	c.rulesProcessed.Store(0)
	c.rulesSucceeded.Store(0)
	c.rulesFailed.Store(0)
	c.rulesSkipped.Store(0)
	c.reportsPersisted.Store(0)
	c.synthesisFailures.Store(0)
	c.advanceConflicts.Store(0)

	c.mu.Lock()
	c.startTime = time.Now()
	c.lastSweepAt = time.Time{}
	c.mu.Unlock()
}
