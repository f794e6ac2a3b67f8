package pipeline

import (
	"context"
	"fmt"

	"github.com/leadgen/backend/internal/domain/lead"
	"github.com/leadgen/backend/internal/infrastructure/scheduler"
)

// Executor adapts the pipeline service to the scheduler's job contract. A
// fallback or partial run counts as success; only a hard source failure is
// surfaced so the scheduler retries it.
type Executor struct {
	service *Service
}

// NewExecutor creates a scheduler executor backed by the pipeline service
func NewExecutor(service *Service) *Executor {
	return &Executor{service: service}
}

// Execute runs one source job
func (e *Executor) Execute(ctx context.Context, job *scheduler.Job) error {
	summary, _ := e.service.RunSource(ctx, job.Source, job.Window)
	if summary == nil {
		// Another run holds the lock; nothing to retry
		return nil
	}
	if summary.State == lead.SourceStateFailed {
		return fmt.Errorf("source %s failed: %s", summary.SourceName, summary.Error)
	}
	return nil
}

var _ scheduler.JobExecutor = (*Executor)(nil)
