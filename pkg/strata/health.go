package strata

import (
	"context"
)

// Health component weights. Layers dominate because a degraded index makes
// memories unreachable; the embedding cache only costs latency.
const (
	weightLayers     = 0.5
	weightCache      = 0.2
	weightFederation = 0.3
)

// HealthReport is the weighted health of the subsystem. Every component
// score is in [0, 1].
type HealthReport struct {
	Score      float64 `json:"score"`
	Layers     float64 `json:"layers"`
	Cache      float64 `json:"cache"`
	Federation float64 `json:"federation"`
}

// Healthy reports whether the subsystem is fully operational.
func (r *HealthReport) Healthy() bool {
	return r.Score >= 1.0
}

// cacheProber is implemented by embedders that can probe their cache.
type cacheProber interface {
	Healthy() bool
}

// Health aggregates component health into one weighted score. Components
// that are not configured count as healthy.
func (m *Manager) Health(ctx context.Context) *HealthReport {
	report := &HealthReport{
		Layers:     m.registry.Health(ctx),
		Cache:      1.0,
		Federation: 1.0,
	}

	if prober, ok := m.embedder.(cacheProber); ok && !prober.Healthy() {
		report.Cache = 0
	}

	if m.fed != nil {
		report.Federation = m.fed.Health()
	}

	report.Score = weightLayers*report.Layers +
		weightCache*report.Cache +
		weightFederation*report.Federation

	return report
}
