package usage

import (
	"context"
	"testing"
)

func TestStatsSnapshot(t *testing.T) {
	t.Parallel()

	stats := NewStats(true)
	ctx := context.Background()

	stats.HandleUsage(ctx, Record{Detail: Detail{TotalTokens: 100}, Cost: 0.101})
	stats.HandleUsage(ctx, Record{Detail: Detail{TotalTokens: 50}, Cost: 0.1005})
	stats.HandleUsage(ctx, Record{Failed: true})

	report := stats.Snapshot()
	if report.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", report.TotalRequests)
	}
	if report.SuccessfulRequests != 2 || report.FailedRequests != 1 {
		t.Errorf("successful/failed = %d/%d, want 2/1", report.SuccessfulRequests, report.FailedRequests)
	}
	wantRate := float64(2) / 3 * 100
	if report.SuccessRate != wantRate {
		t.Errorf("SuccessRate = %v, want %v", report.SuccessRate, wantRate)
	}
	if report.TotalTokens != 150 {
		t.Errorf("TotalTokens = %d, want 150", report.TotalTokens)
	}
	if report.AverageTokens != 75 {
		t.Errorf("AverageTokens = %v, want 75", report.AverageTokens)
	}
	if report.EstimatedCost != 0.2015 {
		t.Errorf("EstimatedCost = %v, want 0.2015", report.EstimatedCost)
	}
}

func TestStatsEmptyReport(t *testing.T) {
	t.Parallel()

	report := NewStats(true).Snapshot()
	if report.SuccessRate != 0 || report.AverageTokens != 0 {
		t.Errorf("empty report has derived values: %+v", report)
	}
}

func TestStatsDisabledDropsRecords(t *testing.T) {
	t.Parallel()

	stats := NewStats(false)
	stats.HandleUsage(context.Background(), Record{Detail: Detail{TotalTokens: 10}})
	if report := stats.Snapshot(); report.TotalRequests != 0 {
		t.Errorf("disabled stats recorded: %+v", report)
	}

	stats.SetEnabled(true)
	stats.HandleUsage(context.Background(), Record{Detail: Detail{TotalTokens: 10}})
	if report := stats.Snapshot(); report.TotalRequests != 1 {
		t.Errorf("enabled stats dropped record: %+v", report)
	}
}
