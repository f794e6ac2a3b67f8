// Package scheduler runs source collection jobs on the cadence each source
// publishes at. A worker pool executes due jobs; the cadence loop decides
// when a source is due from its update frequency.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leadgen/backend/internal/domain/lead"
	"go.uber.org/zap"
)

// JobStatus represents the status of a scheduled collection job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// Job represents one scheduled collection of one source
type Job struct {
	ID          uuid.UUID
	Source      lead.SourceConfig
	Window      lead.Window
	Status      JobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
	NextRetryAt *time.Time
}

// NewJob creates a new collection job for one source
func NewJob(source lead.SourceConfig, window lead.Window, maxRetries int) *Job {
	return &Job{
		ID:         uuid.New(),
		Source:     source,
		Window:     window,
		Status:     JobStatusPending,
		MaxRetries: maxRetries,
	}
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete marks the job as successful
func (j *Job) Complete() {
	now := time.Now()
	j.Status = JobStatusSuccess
	j.CompletedAt = &now
}

// Fail marks the job as failed
func (j *Job) Fail(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// ShouldRetry returns true if the job should be retried
func (j *Job) ShouldRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// ScheduleRetry schedules the job for retry
func (j *Job) ScheduleRetry(delay time.Duration) {
	j.RetryCount++
	j.Status = JobStatusPending
	nextRetry := time.Now().Add(delay)
	j.NextRetryAt = &nextRetry
	j.Error = ""
}

// JobExecutor runs one source's collection. The pipeline service implements
// this; a fallback outcome is a success here, only hard failures retry.
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}

// Config holds scheduler configuration
type Config struct {
	Enabled           bool
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
	TickInterval      time.Duration
	DaysBack          int
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		MaxConcurrentJobs: 3,
		JobTimeout:        15 * time.Minute,
		RetryAttempts:     2,
		RetryDelay:        5 * time.Minute,
		TickInterval:      time.Minute,
		DaysBack:          30,
	}
}

// Scheduler manages scheduled collection jobs
type Scheduler struct {
	config   Config
	executor JobExecutor
	logger   *zap.Logger

	jobs      chan *Job
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	// nextRun tracks each source's next due time, keyed by source name
	nextRun map[string]time.Time
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config Config, executor JobExecutor, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		config:   config,
		executor: executor,
		logger:   logger,
		jobs:     make(chan *Job, 100),
		nextRun:  make(map[string]time.Time),
	}
}

// Start starts the worker pool
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Collection scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)

	return nil
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	// The jobs channel stays open: workers leave on context cancellation,
	// and a retry re-queue racing Stop must not hit a closed channel.
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Collection scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Collection scheduler stop timed out")
		return ctx.Err()
	}
}

// SubmitJob submits a job for execution
func (s *Scheduler) SubmitJob(job *Job) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.mu.Unlock()

	select {
	case s.jobs <- job:
		s.logger.Debug("Job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("source", job.Source.Name),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

// RunCadence blocks, submitting a job for every enabled source whenever its
// publish cadence says it is due. The first tick schedules everything.
func (s *Scheduler) RunCadence(ctx context.Context, sources []lead.SourceConfig) error {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	s.scheduleDue(sources, time.Now())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.scheduleDue(sources, now)
		}
	}
}

// scheduleDue submits jobs for sources whose next run time has passed
func (s *Scheduler) scheduleDue(sources []lead.SourceConfig, now time.Time) {
	for _, src := range sources {
		if !src.Enabled {
			continue
		}

		s.mu.Lock()
		due, known := s.nextRun[src.Name]
		s.mu.Unlock()

		if known && now.Before(due) {
			continue
		}

		window := lead.TrailingWindow(s.config.DaysBack, now)
		job := NewJob(src, window, s.config.RetryAttempts)
		if err := s.SubmitJob(job); err != nil {
			s.logger.Warn("Failed to submit scheduled job",
				zap.String("source", src.Name),
				zap.Error(err),
			)
			continue
		}

		s.mu.Lock()
		s.nextRun[src.Name] = now.Add(src.UpdateFrequency.Interval())
		s.mu.Unlock()
	}
}

// worker processes jobs from the queue
func (s *Scheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-s.jobs:
			if !ok {
				return
			}
			s.processJob(ctx, job, workerID)
		}
	}
}

// processJob executes a single job
func (s *Scheduler) processJob(ctx context.Context, job *Job, workerID int) {
	if job.NextRetryAt != nil && time.Now().Before(*job.NextRetryAt) {
		select {
		case s.jobs <- job:
		default:
			s.logger.Warn("Failed to re-queue job for retry",
				zap.String("job_id", job.ID.String()),
			)
		}
		return
	}

	job.Start()
	s.logger.Info("Processing collection job",
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("source", job.Source.Name),
		zap.String("jurisdiction", job.Source.Jurisdiction),
	)

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	err := s.executor.Execute(jobCtx, job)
	if err != nil {
		job.Fail(err.Error())
		s.logger.Error("Collection job failed",
			zap.Int("worker_id", workerID),
			zap.String("job_id", job.ID.String()),
			zap.String("source", job.Source.Name),
			zap.Error(err),
		)

		if job.ShouldRetry() {
			job.ScheduleRetry(s.config.RetryDelay)
			s.logger.Info("Job scheduled for retry",
				zap.String("job_id", job.ID.String()),
				zap.Int("retry_count", job.RetryCount),
				zap.Int("max_retries", job.MaxRetries),
			)
			select {
			case s.jobs <- job:
			default:
				s.logger.Warn("Failed to re-queue job for retry",
					zap.String("job_id", job.ID.String()),
				)
			}
		}
		return
	}

	job.Complete()
	s.logger.Info("Collection job completed",
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("source", job.Source.Name),
	)
}
