// Package registry holds the static source registry and the collector
// strategy registry the pipeline selects implementations from.
package registry

import (
	"fmt"
	"sort"

	"github.com/leadgen/backend/internal/domain/lead"
	"github.com/leadgen/backend/internal/domain/shared"
	"github.com/leadgen/backend/internal/infrastructure/config"
)

// Default outbound request budget for sources that do not publish a quota
const (
	defaultRequestsPerSecond = 2.0
	defaultBurst             = 5
)

// SourceRegistry is a pure lookup over the static jurisdiction-to-sources
// mapping loaded at process start. It is immutable after construction.
type SourceRegistry struct {
	sources map[string][]lead.SourceConfig
}

// NewSourceRegistry builds the registry from the parsed configuration mapping.
// Source order within a jurisdiction is preserved from the config file.
func NewSourceRegistry(specs map[string][]config.SourceSpec) (*SourceRegistry, error) {
	sources := make(map[string][]lead.SourceConfig, len(specs))
	for jurisdiction, list := range specs {
		seen := make(map[string]bool, len(list))
		configs := make([]lead.SourceConfig, 0, len(list))
		for _, spec := range list {
			if seen[spec.Name] {
				return nil, fmt.Errorf("%w: duplicate source '%s' in jurisdiction %s",
					shared.ErrAlreadyExists, spec.Name, jurisdiction)
			}
			seen[spec.Name] = true

			cfg, err := toSourceConfig(jurisdiction, spec)
			if err != nil {
				return nil, err
			}
			configs = append(configs, cfg)
		}
		sources[jurisdiction] = configs
	}
	return &SourceRegistry{sources: sources}, nil
}

// toSourceConfig converts one config spec into the domain source config
func toSourceConfig(jurisdiction string, spec config.SourceSpec) (lead.SourceConfig, error) {
	freq := lead.UpdateFrequency(spec.UpdateFrequency)
	if spec.UpdateFrequency == "" {
		freq = lead.FrequencyDaily
	}
	if !freq.IsValid() {
		return lead.SourceConfig{}, fmt.Errorf("%w: source '%s' has unknown update_frequency '%s'",
			shared.ErrInvalidInput, spec.Name, spec.UpdateFrequency)
	}

	var filter []lead.BusinessType
	for _, raw := range spec.BusinessTypeFilter {
		bt := lead.BusinessType(raw)
		if !bt.IsValid() {
			return lead.SourceConfig{}, fmt.Errorf("%w: source '%s' filters on unknown business type '%s'",
				shared.ErrInvalidInput, spec.Name, raw)
		}
		filter = append(filter, bt)
	}

	limit := lead.RateLimit{RequestsPerSecond: spec.RequestsPerSecond, Burst: spec.Burst}
	if limit.RequestsPerSecond <= 0 {
		limit.RequestsPerSecond = defaultRequestsPerSecond
	}
	if limit.Burst <= 0 {
		limit.Burst = defaultBurst
	}

	return lead.SourceConfig{
		Name:               spec.Name,
		Jurisdiction:       jurisdiction,
		Strategy:           spec.Strategy,
		Endpoint:           spec.Endpoint,
		UpdateFrequency:    freq,
		Enabled:            spec.Enabled,
		BusinessTypeFilter: filter,
		RateLimit:          limit,
	}, nil
}

// ListSources returns the enabled sources for a jurisdiction in config order.
// A jurisdiction with zero enabled sources is a configuration error, fatal for
// that jurisdiction's run only.
func (r *SourceRegistry) ListSources(jurisdiction string) ([]lead.SourceConfig, error) {
	configs, ok := r.sources[jurisdiction]
	if !ok {
		return nil, fmt.Errorf("%w: jurisdiction '%s' has no configured sources", shared.ErrConfigInvalid, jurisdiction)
	}

	enabled := make([]lead.SourceConfig, 0, len(configs))
	for _, cfg := range configs {
		if cfg.Enabled {
			enabled = append(enabled, cfg)
		}
	}
	if len(enabled) == 0 {
		return nil, fmt.Errorf("%w: jurisdiction '%s' has no enabled sources", shared.ErrConfigInvalid, jurisdiction)
	}
	return enabled, nil
}

// Jurisdictions returns all configured jurisdictions, sorted
func (r *SourceRegistry) Jurisdictions() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
