package revenue

import (
	"math"
	"testing"
)

func testPrices() map[string]float64 {
	return map[string]float64{
		"blog_post": 50,
		"code":      100,
		"analysis":  75,
	}
}

func TestEstimate(t *testing.T) {
	t.Parallel()

	pricing := NewPricing(testPrices(), 0.10)

	tests := []struct {
		name        string
		service     string
		quantity    int
		customPrice float64
		wantPrice   float64
		wantRevenue float64
		wantCost    float64
	}{
		{"table price", "blog_post", 10, 0, 50, 500, 1},
		{"custom price overrides", "blog_post", 10, 80, 80, 800, 1},
		{"unknown service prices at zero", "poetry", 5, 0, 0, 0, 0.5},
		{"zero quantity", "code", 0, 0, 100, 0, 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			estimate, err := pricing.Estimate(tt.service, tt.quantity, tt.customPrice)
			if err != nil {
				t.Fatalf("Estimate() error = %v", err)
			}
			if estimate.PricePerUnit != tt.wantPrice {
				t.Errorf("PricePerUnit = %v, want %v", estimate.PricePerUnit, tt.wantPrice)
			}
			if estimate.TotalRevenue != tt.wantRevenue {
				t.Errorf("TotalRevenue = %v, want %v", estimate.TotalRevenue, tt.wantRevenue)
			}
			if math.Abs(estimate.EstimatedCost-tt.wantCost) > 1e-9 {
				t.Errorf("EstimatedCost = %v, want %v", estimate.EstimatedCost, tt.wantCost)
			}
			wantProfit := tt.wantRevenue - tt.wantCost
			if math.Abs(estimate.Profit-wantProfit) > 1e-9 {
				t.Errorf("Profit = %v, want %v", estimate.Profit, wantProfit)
			}
			if tt.wantRevenue == 0 && estimate.ProfitMargin != 0 {
				t.Errorf("ProfitMargin = %v, want 0 when revenue is 0", estimate.ProfitMargin)
			}
		})
	}
}

func TestEstimateRejectsNegativeQuantity(t *testing.T) {
	t.Parallel()

	pricing := NewPricing(testPrices(), 0.10)
	if _, err := pricing.Estimate("blog_post", -1, 0); err == nil {
		t.Fatal("expected error for negative quantity")
	}
}

func TestEstimateMargin(t *testing.T) {
	t.Parallel()

	pricing := NewPricing(map[string]float64{"code": 100}, 0.10)
	estimate, err := pricing.Estimate("code", 1, 0)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	wantMargin := (100 - 0.10) / 100 * 100
	if math.Abs(estimate.ProfitMargin-wantMargin) > 1e-9 {
		t.Errorf("ProfitMargin = %v, want %v", estimate.ProfitMargin, wantMargin)
	}
}

func TestSetPricesReplacesTable(t *testing.T) {
	t.Parallel()

	pricing := NewPricing(testPrices(), 0.10)
	pricing.SetPrices(map[string]float64{"marketing": 25})

	if got := pricing.Price("blog_post"); got != 0 {
		t.Errorf("old price survived reload: %v", got)
	}
	if got := pricing.Price("marketing"); got != 25 {
		t.Errorf("Price(marketing) = %v, want 25", got)
	}
	services := pricing.Services()
	if len(services) != 1 || services[0] != "marketing" {
		t.Errorf("Services() = %v", services)
	}
}

func TestServicesSorted(t *testing.T) {
	t.Parallel()

	pricing := NewPricing(testPrices(), 0.10)
	services := pricing.Services()
	want := []string{"analysis", "blog_post", "code"}
	if len(services) != len(want) {
		t.Fatalf("Services() = %v", services)
	}
	for i := range want {
		if services[i] != want[i] {
			t.Errorf("Services()[%d] = %q, want %q", i, services[i], want[i])
		}
	}
}
