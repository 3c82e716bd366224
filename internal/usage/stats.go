package usage

import (
	"context"
	"sync"
)

// Report summarizes recorded usage for performance analysis.
type Report struct {
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	FailedRequests     int64   `json:"failed_requests"`
	SuccessRate        float64 `json:"success_rate"`
	TotalTokens        int64   `json:"total_tokens"`
	AverageTokens      float64 `json:"average_tokens_per_request"`
	EstimatedCost      float64 `json:"estimated_cost"`
}

// Stats aggregates usage records in memory. It implements Plugin.
type Stats struct {
	mu         sync.Mutex
	enabled    bool
	total      int64
	successful int64
	failed     int64
	tokens     int64
	cost       float64
}

// NewStats creates an aggregator. When enabled is false records are dropped.
func NewStats(enabled bool) *Stats {
	return &Stats{enabled: enabled}
}

// SetEnabled toggles aggregation at runtime (config hot reload).
func (s *Stats) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

// HandleUsage records a single usage record.
func (s *Stats) HandleUsage(_ context.Context, record Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return
	}
	s.total++
	if record.Failed {
		s.failed++
		return
	}
	s.successful++
	s.tokens += record.Detail.TotalTokens
	s.cost += record.Cost
}

// Snapshot returns the aggregated report. All derived values are computed
// here so callers always observe a consistent view.
func (s *Stats) Snapshot() Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := Report{
		TotalRequests:      s.total,
		SuccessfulRequests: s.successful,
		FailedRequests:     s.failed,
		TotalTokens:        s.tokens,
		EstimatedCost:      s.cost,
	}
	if s.total > 0 {
		report.SuccessRate = float64(s.successful) / float64(s.total) * 100
	}
	if s.successful > 0 {
		report.AverageTokens = float64(s.tokens) / float64(s.successful)
	}
	return report
}
