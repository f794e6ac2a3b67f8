// Package pipeline orchestrates one collection run: resolving sources per
// jurisdiction, fanning collectors out over a bounded worker pool, validating
// and grading every record, and flushing batches to the warehouse.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/leadgen/backend/internal/domain/lead"
	"github.com/leadgen/backend/internal/domain/shared"
	"github.com/leadgen/backend/internal/infrastructure/cache"
	"github.com/leadgen/backend/internal/infrastructure/logger"
	"github.com/leadgen/backend/internal/infrastructure/registry"
	"github.com/leadgen/backend/internal/infrastructure/telemetry"
	"github.com/leadgen/backend/internal/infrastructure/validate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options bounds one collection run
type Options struct {
	MaxConcurrent int
	BatchSize     int
	RunTimeout    time.Duration
	LockTTL       time.Duration
}

func (o *Options) applyDefaults() {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 4
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 500
	}
	if o.RunTimeout <= 0 {
		o.RunTimeout = 15 * time.Minute
	}
	if o.LockTTL <= 0 {
		o.LockTTL = o.RunTimeout + time.Minute
	}
}

// Repositories groups the storage gateways the pipeline writes through
type Repositories struct {
	Businesses lead.BusinessEntityRepository
	Loans      lead.LoanRepository
	Licenses   lead.LicenseRepository
	Summaries  lead.SummaryRepository
}

// Service runs the collection pipeline
type Service struct {
	sources    *registry.SourceRegistry
	collectors *registry.CollectorRegistry
	validator  *validate.Validator
	repos      Repositories
	lock       cache.RunLock
	fetchCache *cache.FetchCache
	metrics    *telemetry.PipelineMetrics
	tracer     trace.Tracer
	logger     *zap.Logger
	opts       Options
}

// NewService creates the pipeline service. FetchCache may be nil, in which
// case every run fetches live.
func NewService(
	sources *registry.SourceRegistry,
	collectors *registry.CollectorRegistry,
	validator *validate.Validator,
	repos Repositories,
	lock cache.RunLock,
	fetchCache *cache.FetchCache,
	metrics *telemetry.PipelineMetrics,
	logger *zap.Logger,
	opts Options,
) *Service {
	opts.applyDefaults()
	if metrics == nil {
		metrics = telemetry.NopPipelineMetrics()
	}
	return &Service{
		sources:    sources,
		collectors: collectors,
		validator:  validator,
		repos:      repos,
		lock:       lock,
		fetchCache: fetchCache,
		metrics:    metrics,
		tracer:     otel.Tracer("leadgen/pipeline"),
		logger:     logger,
		opts:       opts,
	}
}

// RunResult aggregates one collection run across jurisdictions
type RunResult struct {
	Summaries    []*lead.CollectionSummary
	ConfigErrors map[string]error
	Written      map[lead.RecordKind]int
	Elapsed      time.Duration
}

// Failed reports whether the run produced nothing at all: every jurisdiction
// was misconfigured or every source ended FAILED.
func (r *RunResult) Failed() bool {
	if len(r.Summaries) == 0 {
		return true
	}
	for _, s := range r.Summaries {
		if s.State != lead.SourceStateFailed {
			return false
		}
	}
	return true
}

// Degraded reports whether any source fell back to sample data, flushed
// partially, failed outright, or any jurisdiction was skipped on config error
func (r *RunResult) Degraded() bool {
	if len(r.ConfigErrors) > 0 {
		return true
	}
	for _, s := range r.Summaries {
		if s.Degraded() || s.State == lead.SourceStateFailed {
			return true
		}
	}
	return false
}

// Run collects every enabled source in the given jurisdictions for the
// window. An empty jurisdiction list means all configured jurisdictions. A
// jurisdiction with a config problem is skipped and reported; it never stops
// the others.
func (s *Service) Run(ctx context.Context, jurisdictions []string, window lead.Window) (*RunResult, error) {
	started := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.opts.RunTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "pipeline.Run",
		trace.WithAttributes(attribute.StringSlice("jurisdictions", jurisdictions)))
	defer span.End()

	if len(jurisdictions) == 0 {
		jurisdictions = s.sources.Jurisdictions()
	}

	result := &RunResult{
		ConfigErrors: make(map[string]error),
		Written:      make(map[lead.RecordKind]int),
	}

	var sources []lead.SourceConfig
	for _, j := range jurisdictions {
		cfgs, err := s.sources.ListSources(j)
		if err != nil {
			s.logger.Error("Skipping jurisdiction with invalid configuration",
				zap.String("jurisdiction", j),
				zap.Error(err),
			)
			result.ConfigErrors[j] = err
			continue
		}
		sources = append(sources, cfgs...)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxConcurrent)

	for _, src := range sources {
		src := src
		g.Go(func() error {
			summary, written := s.RunSource(gctx, src, window)
			if summary == nil {
				return nil
			}
			mu.Lock()
			result.Summaries = append(result.Summaries, summary)
			for kind, n := range written {
				result.Written[kind] += n
			}
			mu.Unlock()
			// Per-source failures are reported through the summary, not as
			// group errors, so one bad source never cancels its siblings
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}

	result.Elapsed = time.Since(started)
	s.logger.Info("Collection run finished",
		zap.Int("sources", len(result.Summaries)),
		zap.Int("config_errors", len(result.ConfigErrors)),
		zap.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

// RunSource collects one source end to end. A nil summary means the source
// was skipped because another run holds its lock.
func (s *Service) RunSource(ctx context.Context, src lead.SourceConfig, window lead.Window) (*lead.CollectionSummary, map[lead.RecordKind]int) {
	ctx = logger.WithSource(ctx, src.Name)
	ctx, span := s.tracer.Start(ctx, "pipeline.RunSource",
		trace.WithAttributes(
			attribute.String("source", src.Name),
			attribute.String("jurisdiction", src.Jurisdiction),
		))
	defer span.End()

	acquired, err := s.lock.Acquire(ctx, src.Name, s.opts.LockTTL)
	if err != nil {
		s.logger.Warn("Run lock unavailable, proceeding without it",
			zap.String("source", src.Name),
			zap.Error(err),
		)
	} else if !acquired {
		s.logger.Info("Source already being collected, skipping",
			zap.String("source", src.Name),
		)
		return nil, nil
	} else {
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx), src.Name); err != nil {
				s.logger.Warn("Failed to release run lock",
					zap.String("source", src.Name),
					zap.Error(err),
				)
			}
		}()
	}

	summary := lead.NewCollectionSummary(src.Name, src.Jurisdiction)
	written := make(map[lead.RecordKind]int)

	records, live, err := s.fetchRecords(ctx, src, window, summary)
	if err != nil {
		summary.Complete()
		s.persistSummary(ctx, summary)
		s.metrics.RecordSourceRun(ctx, summary)
		return summary, written
	}

	s.processRecords(ctx, src, window, summary, records, written, live)

	summary.Complete()
	s.persistSummary(ctx, summary)
	s.metrics.RecordSourceRun(ctx, summary)
	for kind, n := range written {
		s.metrics.RecordWritten(ctx, kind, n)
	}

	s.logger.Info("Source run complete",
		zap.String("source", src.Name),
		zap.String("state", string(summary.State)),
		zap.Int("fetched", summary.RecordsFetched),
		zap.Int("validated", summary.RecordsValidated),
		zap.Int("rejected", summary.RecordsRejected),
		zap.Bool("fallback", summary.FallbackUsed),
		zap.Bool("partial", summary.Partial),
	)
	return summary, written
}

// fetchRecords resolves the collector and produces the record stream, serving
// from the fetch cache when a batch for this window is still fresh. The
// returned live flag is true when records came from a live collect and are
// therefore cacheable.
func (s *Service) fetchRecords(ctx context.Context, src lead.SourceConfig, window lead.Window, summary *lead.CollectionSummary) (<-chan lead.RawRecord, bool, error) {
	if s.fetchCache != nil {
		cached, hit, err := s.fetchCache.Get(ctx, src.Name, window)
		if err != nil {
			s.logger.Warn("Fetch cache read failed, collecting live",
				zap.String("source", src.Name),
				zap.Error(err),
			)
		} else if hit {
			s.logger.Debug("Serving source from fetch cache",
				zap.String("source", src.Name),
				zap.Int("records", len(cached)),
			)
			if err := summary.Transition(lead.SourceStateFetching); err != nil {
				return nil, false, err
			}
			if err := summary.Transition(lead.SourceStateSucceeded); err != nil {
				return nil, false, err
			}
			out := make(chan lead.RawRecord)
			go func() {
				defer close(out)
				for _, rec := range cached {
					select {
					case <-ctx.Done():
						return
					case out <- rec:
					}
				}
			}()
			return out, false, nil
		}
	}

	collector, err := s.collectors.Get(src.Strategy)
	if err != nil {
		if terr := summary.Transition(lead.SourceStateFetching); terr == nil {
			if terr = summary.Transition(lead.SourceStateFailed); terr == nil {
				summary.Error = err.Error()
			}
		}
		s.logger.Error("No collector for strategy",
			zap.String("source", src.Name),
			zap.String("strategy", src.Strategy),
			zap.Error(err),
		)
		return nil, false, err
	}

	records, err := collector.Collect(ctx, src, window, summary)
	if err != nil {
		if !errors.Is(err, shared.ErrSourceUnavailable) {
			err = fmt.Errorf("collecting %s: %w", src.Name, err)
		}
		summary.Error = err.Error()
		s.logger.Error("Source collection failed",
			zap.String("source", src.Name),
			zap.Error(err),
		)
		return nil, false, err
	}
	return records, true, nil
}

// processRecords validates and grades the stream, flushing full batches as it
// goes. On cancellation mid-stream the partial batch is still flushed and the
// summary is marked partial.
func (s *Service) processRecords(ctx context.Context, src lead.SourceConfig, window lead.Window, summary *lead.CollectionSummary, records <-chan lead.RawRecord, written map[lead.RecordKind]int, cacheable bool) {
	var (
		businesses []*lead.BusinessEntity
		loans      []*lead.SBALoanApproval
		licenses   []*lead.BusinessLicense
		rawBatch   []lead.RawRecord
	)

	// A failed batch write means validated records never reached storage.
	// The run is marked partial so callers see a degraded result.
	dropped := func(err error) {
		summary.Partial = true
		if summary.Error == "" {
			summary.Error = err.Error()
		}
	}

	flush := func(flushCtx context.Context) {
		n, err := s.flushBusinesses(flushCtx, businesses)
		written[lead.KindBusiness] += n
		if err != nil {
			dropped(err)
		}
		n, err = s.flushLoans(flushCtx, loans)
		written[lead.KindLoan] += n
		if err != nil {
			dropped(err)
		}
		n, err = s.flushLicenses(flushCtx, licenses)
		written[lead.KindLicense] += n
		if err != nil {
			dropped(err)
		}
		businesses, loans, licenses = nil, nil, nil
	}

	for raw := range records {
		summary.RecordsFetched++
		if cacheable {
			rawBatch = append(rawBatch, raw)
		}

		validated, rejection := s.validator.Validate(raw, window)
		if rejection != nil {
			summary.RecordsRejected++
			s.logger.Debug("Record rejected",
				zap.String("source", src.Name),
				zap.String("key", raw.NaturalKey),
				zap.String("field", rejection.Field),
				zap.String("expected", rejection.Expected),
				zap.String("actual", rejection.Actual),
			)
			continue
		}

		summary.RecordsValidated++
		switch validated.Kind {
		case lead.KindBusiness:
			businesses = append(businesses, validated.Business)
		case lead.KindLoan:
			loans = append(loans, validated.Loan)
		case lead.KindLicense:
			licenses = append(licenses, validated.License)
		}

		if len(businesses)+len(loans)+len(licenses) >= s.opts.BatchSize {
			flush(ctx)
		}
	}

	if ctx.Err() != nil {
		// Timed out or cancelled mid-stream: keep what we have, flag the run
		summary.Partial = true
		flush(context.WithoutCancel(ctx))
		return
	}

	flush(ctx)

	if cacheable && s.fetchCache != nil && summary.State == lead.SourceStateSucceeded {
		ttl := src.UpdateFrequency.Interval()
		if err := s.fetchCache.Put(ctx, src.Name, window, rawBatch, ttl); err != nil {
			s.logger.Warn("Fetch cache write failed",
				zap.String("source", src.Name),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) flushBusinesses(ctx context.Context, batch []*lead.BusinessEntity) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	n, err := s.repos.Businesses.UpsertBatch(ctx, batch)
	if err != nil {
		s.logger.Error("Business batch write failed", zap.Int("batch", len(batch)), zap.Error(err))
		return n, err
	}
	return n, nil
}

func (s *Service) flushLoans(ctx context.Context, batch []*lead.SBALoanApproval) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	n, err := s.repos.Loans.UpsertBatch(ctx, batch)
	if err != nil {
		s.logger.Error("Loan batch write failed", zap.Int("batch", len(batch)), zap.Error(err))
		return n, err
	}
	return n, nil
}

func (s *Service) flushLicenses(ctx context.Context, batch []*lead.BusinessLicense) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	n, err := s.repos.Licenses.UpsertBatch(ctx, batch)
	if err != nil {
		s.logger.Error("License batch write failed", zap.Int("batch", len(batch)), zap.Error(err))
		return n, err
	}
	return n, nil
}

// persistSummary saves the audit row even when the run's context is done
func (s *Service) persistSummary(ctx context.Context, summary *lead.CollectionSummary) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.repos.Summaries.Save(saveCtx, summary); err != nil {
		s.logger.Error("Failed to save collection summary",
			zap.String("source", summary.SourceName),
			zap.Error(err),
		)
	}
}
