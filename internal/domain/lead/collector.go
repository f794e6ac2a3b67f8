package lead

import (
	"context"
	"time"
)

// UpdateFrequency is the published refresh cadence of an upstream source
type UpdateFrequency string

const (
	FrequencyDaily     UpdateFrequency = "daily"
	FrequencyWeekly    UpdateFrequency = "weekly"
	FrequencyMonthly   UpdateFrequency = "monthly"
	FrequencyQuarterly UpdateFrequency = "quarterly"
)

// IsValid checks if the update frequency is valid
func (f UpdateFrequency) IsValid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly:
		return true
	}
	return false
}

// Interval returns the refresh interval the cadence implies
func (f UpdateFrequency) Interval() time.Duration {
	switch f {
	case FrequencyDaily:
		return 24 * time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	case FrequencyMonthly:
		return 30 * 24 * time.Hour
	case FrequencyQuarterly:
		return 90 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// RateLimit is the proactive outbound request budget for one source
type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
}

// SourceConfig describes one upstream source for one jurisdiction.
// Strategy selects the collector implementation via the collector registry.
type SourceConfig struct {
	Name               string
	Jurisdiction       string
	Strategy           string
	Endpoint           string
	UpdateFrequency    UpdateFrequency
	Enabled            bool
	BusinessTypeFilter []BusinessType
	RateLimit          RateLimit
}

// Collector fetches raw candidate records from one kind of upstream source.
// The returned channel is finite and closed by the collector; a stream is not
// restartable mid-flight, a fresh Collect call re-reads from the source.
type Collector interface {
	// Name returns the strategy identifier this collector registers under
	Name() string

	// Collect fetches records for the source bounded by the window, in fetch
	// order. Errors returned here are terminal for the source; transient
	// upstream failures are retried internally before falling back or failing.
	Collect(ctx context.Context, cfg SourceConfig, window Window, summary *CollectionSummary) (<-chan RawRecord, error)
}
