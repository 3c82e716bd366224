package revenue

import (
	"context"
	"fmt"
	"time"
)

// sampleLimit caps the preview length included with each packaged service.
const sampleLimit = 200

// ContentSampler produces a content sample for a service offer.
type ContentSampler interface {
	Generate(ctx context.Context, contentType, topic string, requirements map[string]any) (string, error)
}

// ServiceSpec describes one service inside a package request.
type ServiceSpec struct {
	Type         string         `json:"type"`
	Quantity     int            `json:"quantity"`
	Topic        string         `json:"topic"`
	Requirements map[string]any `json:"requirements,omitempty"`
}

// PackagedService is one priced service with its generated sample.
type PackagedService struct {
	Service  string  `json:"service"`
	Quantity int     `json:"quantity"`
	Sample   string  `json:"sample"`
	Value    float64 `json:"value"`
}

// Package is a named bundle of priced services.
type Package struct {
	Name       string            `json:"package_name"`
	Services   []PackagedService `json:"services"`
	TotalValue float64           `json:"total_value"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Packager assembles service packages, generating a sample per service.
type Packager struct {
	pricing *Pricing
	sampler ContentSampler
}

// NewPackager creates a packager from a price table and a content sampler.
func NewPackager(pricing *Pricing, sampler ContentSampler) *Packager {
	return &Packager{pricing: pricing, sampler: sampler}
}

// Build generates a package from the given specs. Quantities default to 1 and
// topics default to "General". The first failing sample aborts the build.
func (p *Packager) Build(ctx context.Context, name string, specs []ServiceSpec) (*Package, error) {
	if name == "" {
		return nil, fmt.Errorf("revenue: package name is empty")
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("revenue: package %q has no services", name)
	}

	pkg := &Package{Name: name, CreatedAt: time.Now().UTC()}
	for _, spec := range specs {
		quantity := spec.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		topic := spec.Topic
		if topic == "" {
			topic = "General"
		}

		sample, err := p.sampler.Generate(ctx, spec.Type, topic, spec.Requirements)
		if err != nil {
			return nil, fmt.Errorf("revenue: sample for %s failed: %w", spec.Type, err)
		}

		estimate, err := p.pricing.Estimate(spec.Type, quantity, 0)
		if err != nil {
			return nil, err
		}

		pkg.Services = append(pkg.Services, PackagedService{
			Service:  spec.Type,
			Quantity: quantity,
			Sample:   truncateSample(sample),
			Value:    estimate.TotalRevenue,
		})
		pkg.TotalValue += estimate.TotalRevenue
	}
	return pkg, nil
}

// truncateSample shortens long samples for package previews.
func truncateSample(sample string) string {
	runes := []rune(sample)
	if len(runes) <= sampleLimit {
		return sample
	}
	return string(runes[:sampleLimit]) + "..."
}
