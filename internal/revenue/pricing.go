// Package revenue prices the suite's services, projects income, logs
// transactions to a ledger, and assembles service packages with generated
// content samples.
package revenue

import (
	"fmt"
	"sort"
	"sync"
)

// Estimate is a revenue projection for a quantity of one service type.
type Estimate struct {
	ServiceType   string  `json:"service_type"`
	Quantity      int     `json:"quantity"`
	PricePerUnit  float64 `json:"price_per_unit"`
	TotalRevenue  float64 `json:"total_revenue"`
	EstimatedCost float64 `json:"estimated_cost"`
	Profit        float64 `json:"estimated_profit"`
	ProfitMargin  float64 `json:"profit_margin"`
}

// Pricing holds the per-service price table and the cost model.
type Pricing struct {
	mu             sync.RWMutex
	prices         map[string]float64
	costPerRequest float64
}

// NewPricing builds a price table. A nil prices map yields an empty table;
// unknown services then price at zero.
func NewPricing(prices map[string]float64, costPerRequest float64) *Pricing {
	copied := make(map[string]float64, len(prices))
	for service, price := range prices {
		copied[service] = price
	}
	return &Pricing{prices: copied, costPerRequest: costPerRequest}
}

// Price returns the unit price for a service type, or 0 when unknown.
func (p *Pricing) Price(serviceType string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.prices[serviceType]
}

// SetPrices replaces the price table (config hot reload).
func (p *Pricing) SetPrices(prices map[string]float64) {
	copied := make(map[string]float64, len(prices))
	for service, price := range prices {
		copied[service] = price
	}
	p.mu.Lock()
	p.prices = copied
	p.mu.Unlock()
}

// Services returns the priced service types, sorted.
func (p *Pricing) Services() []string {
	p.mu.RLock()
	services := make([]string, 0, len(p.prices))
	for service := range p.prices {
		services = append(services, service)
	}
	p.mu.RUnlock()
	sort.Strings(services)
	return services
}

// Estimate projects revenue for a quantity of a service. A positive
// customPrice overrides the table price. Margin is zero when revenue is zero.
func (p *Pricing) Estimate(serviceType string, quantity int, customPrice float64) (Estimate, error) {
	if quantity < 0 {
		return Estimate{}, fmt.Errorf("revenue: quantity must not be negative, got %d", quantity)
	}

	pricePerUnit := customPrice
	if pricePerUnit <= 0 {
		pricePerUnit = p.Price(serviceType)
	}

	totalRevenue := pricePerUnit * float64(quantity)
	estimatedCost := float64(quantity) * p.costPerRequest
	profit := totalRevenue - estimatedCost

	var margin float64
	if totalRevenue > 0 {
		margin = profit / totalRevenue * 100
	}

	return Estimate{
		ServiceType:   serviceType,
		Quantity:      quantity,
		PricePerUnit:  pricePerUnit,
		TotalRevenue:  totalRevenue,
		EstimatedCost: estimatedCost,
		Profit:        profit,
		ProfitMargin:  margin,
	}, nil
}
