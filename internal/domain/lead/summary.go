package lead

import (
	"fmt"
	"time"

	"github.com/leadgen/backend/internal/domain/shared"
)

// SourceState represents the per-source collection state machine
type SourceState string

const (
	SourceStatePending   SourceState = "PENDING"
	SourceStateFetching  SourceState = "FETCHING"
	SourceStateSucceeded SourceState = "SUCCEEDED"
	SourceStateFallback  SourceState = "FALLBACK"
	SourceStateFailed    SourceState = "FAILED"
)

// IsTerminal returns true if this is a terminal state
func (s SourceState) IsTerminal() bool {
	return s == SourceStateSucceeded || s == SourceStateFallback || s == SourceStateFailed
}

// CanTransition reports whether the transition to next is legal
func (s SourceState) CanTransition(next SourceState) bool {
	switch s {
	case SourceStatePending:
		return next == SourceStateFetching
	case SourceStateFetching:
		return next.IsTerminal()
	}
	return false
}

// CollectionSummary records the outcome of one collection run for one source.
// It is mutated only through its methods while the run is in flight and is
// immutable once Complete has been called.
type CollectionSummary struct {
	SourceName       string      `json:"source_name"`
	Jurisdiction     string      `json:"jurisdiction"`
	State            SourceState `json:"state"`
	RecordsFetched   int         `json:"records_fetched"`
	RecordsValidated int         `json:"records_validated"`
	RecordsRejected  int         `json:"records_rejected"`
	FallbackUsed     bool        `json:"fallback_used"`
	Partial          bool        `json:"partial"`
	Error            string      `json:"error,omitempty"`
	StartedAt        time.Time   `json:"started_at"`
	CompletedAt      time.Time   `json:"completed_at"`
}

// NewCollectionSummary creates a pending summary for one source run
func NewCollectionSummary(sourceName, jurisdiction string) *CollectionSummary {
	return &CollectionSummary{
		SourceName:   sourceName,
		Jurisdiction: jurisdiction,
		State:        SourceStatePending,
		StartedAt:    time.Now().UTC(),
	}
}

// Transition moves the summary to the next source state
func (s *CollectionSummary) Transition(next SourceState) error {
	if !s.State.CanTransition(next) {
		return fmt.Errorf("%w: source state %s cannot transition to %s", shared.ErrInvalidState, s.State, next)
	}
	s.State = next
	if next == SourceStateFallback {
		s.FallbackUsed = true
	}
	return nil
}

// Complete stamps the completion time, making the summary final
func (s *CollectionSummary) Complete() {
	if s.CompletedAt.IsZero() {
		s.CompletedAt = time.Now().UTC()
	}
}

// Elapsed returns the run duration for this source
func (s *CollectionSummary) Elapsed() time.Duration {
	if s.CompletedAt.IsZero() {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}

// Degraded reports whether downstream consumers must treat this run's output
// with suspicion: synthetic fallback data or an interrupted flush.
func (s *CollectionSummary) Degraded() bool {
	return s.FallbackUsed || s.Partial
}
