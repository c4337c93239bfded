// Package monitoring keeps in-process metrics about green analyses and
// raises webhook alerts when failure rate or model spend cross thresholds.
package monitoring

import (
	"sync"
	"time"

	"github.com/sells-group/greenscore/internal/model"
)

// Outcome classifies a finished analysis request.
type Outcome string

const (
	OutcomeComplete Outcome = "complete"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// MetricsSnapshot holds a point-in-time view of analysis health.
type MetricsSnapshot struct {
	AnalysesTotal    int            `json:"analyses_total"`
	AnalysesComplete int            `json:"analyses_complete"`
	AnalysesRejected int            `json:"analyses_rejected"`
	AnalysesFailed   int            `json:"analyses_failed"`
	FailRate         float64        `json:"fail_rate"`
	Failures         map[string]int `json:"failures,omitempty"`
	CostUSD          float64        `json:"cost_usd"`
	AvgScore         float64        `json:"avg_score"`
	AvgTokens        int64          `json:"avg_tokens"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

type event struct {
	at      time.Time
	outcome Outcome
	reason  string
	costUSD float64
	tokens  int64
	score   int
	scored  bool
}

// Collector records analysis outcomes. A nil Collector ignores records.
type Collector struct {
	mu        sync.Mutex
	events    []event
	retention time.Duration
	now       func() time.Time
}

// NewCollector keeps events for retention. Non-positive retention keeps
// them for 24 hours.
func NewCollector(retention time.Duration) *Collector {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Collector{retention: retention, now: time.Now}
}

// RecordAnalysis records a finished analysis, gated or not.
func (c *Collector) RecordAnalysis(a *model.Analysis) {
	if c == nil || a == nil {
		return
	}
	e := event{
		outcome: OutcomeComplete,
		costUSD: a.CostUSD,
		tokens:  a.Usage.InputTokens + a.Usage.OutputTokens,
	}
	if a.Rejected {
		e.outcome = OutcomeRejected
	}
	for _, r := range a.Records {
		if score, ok := r.GreenScore(); ok {
			e.score, e.scored = score, true
			break
		}
	}
	c.add(e)
}

// RecordFailure records an analysis that ended in an error.
func (c *Collector) RecordFailure(reason string) {
	if c == nil {
		return
	}
	c.add(event{outcome: OutcomeFailed, reason: reason})
}

func (c *Collector) add(e event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e.at = c.now()
	c.events = append(c.events, e)

	cutoff := e.at.Add(-c.retention)
	drop := 0
	for drop < len(c.events) && c.events[drop].at.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		c.events = append(c.events[:0], c.events[drop:]...)
	}
}

// Collect summarizes the events of the last lookbackHours.
func (c *Collector) Collect(lookbackHours int) *MetricsSnapshot {
	snap := &MetricsSnapshot{LookbackHours: lookbackHours}
	if c == nil {
		snap.CollectedAt = time.Now().UTC()
		return snap
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	snap.CollectedAt = now.UTC()
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	var totalScore, scored int
	var totalTokens int64
	for _, e := range c.events {
		if e.at.Before(cutoff) {
			continue
		}
		snap.AnalysesTotal++
		snap.CostUSD += e.costUSD
		totalTokens += e.tokens

		switch e.outcome {
		case OutcomeComplete:
			snap.AnalysesComplete++
		case OutcomeRejected:
			snap.AnalysesRejected++
		case OutcomeFailed:
			snap.AnalysesFailed++
			if snap.Failures == nil {
				snap.Failures = map[string]int{}
			}
			snap.Failures[e.reason]++
		}
		if e.scored {
			totalScore += e.score
			scored++
		}
	}

	if snap.AnalysesTotal > 0 {
		snap.FailRate = float64(snap.AnalysesFailed) / float64(snap.AnalysesTotal)
		snap.AvgTokens = totalTokens / int64(snap.AnalysesTotal)
	}
	if scored > 0 {
		snap.AvgScore = float64(totalScore) / float64(scored)
	}
	return snap
}
