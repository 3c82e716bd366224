package claude

import "testing"

func TestEstimateTokens(t *testing.T) {
	t.Parallel()

	count, err := EstimateTokens("What are the best practices for using the Claude API efficiently?")
	if err != nil {
		t.Fatalf("EstimateTokens() error = %v", err)
	}
	if count <= 0 {
		t.Errorf("count = %d, want > 0", count)
	}

	empty, err := EstimateTokens("   ")
	if err != nil {
		t.Fatalf("EstimateTokens() error = %v", err)
	}
	if empty != 0 {
		t.Errorf("empty count = %d, want 0", empty)
	}
}

func TestEstimateCost(t *testing.T) {
	t.Parallel()

	if got := EstimateCost(1000, 0.00001); got != 0.01 {
		t.Errorf("EstimateCost(1000) = %v, want 0.01", got)
	}
	if got := EstimateCost(0, 0.00001); got != 0 {
		t.Errorf("EstimateCost(0) = %v, want 0", got)
	}
	if got := EstimateCost(-5, 0.00001); got != 0 {
		t.Errorf("EstimateCost(-5) = %v, want 0", got)
	}
}
