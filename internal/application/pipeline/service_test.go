package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leadgen/backend/internal/domain/lead"
	"github.com/leadgen/backend/internal/domain/shared"
	"github.com/leadgen/backend/internal/infrastructure/cache"
	"github.com/leadgen/backend/internal/infrastructure/config"
	"github.com/leadgen/backend/internal/infrastructure/registry"
	"github.com/leadgen/backend/internal/infrastructure/scheduler"
	"github.com/leadgen/backend/internal/infrastructure/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

// stubCollector serves a fixed record slice, or fails, depending on mode.
// When cancel is set the stream stops after cancelAfter records, cancelling
// the run the way a timeout would.
type stubCollector struct {
	name        string
	records     []lead.RawRecord
	mode        string // "succeed", "fallback", "fail"
	cancelAfter int
	cancel      func()
}

func (c *stubCollector) Name() string { return c.name }

func (c *stubCollector) Collect(ctx context.Context, cfg lead.SourceConfig, window lead.Window, summary *lead.CollectionSummary) (<-chan lead.RawRecord, error) {
	if err := summary.Transition(lead.SourceStateFetching); err != nil {
		return nil, err
	}
	switch c.mode {
	case "fail":
		if err := summary.Transition(lead.SourceStateFailed); err != nil {
			return nil, err
		}
		return nil, shared.ErrSourceUnavailable
	case "fallback":
		if err := summary.Transition(lead.SourceStateFallback); err != nil {
			return nil, err
		}
	default:
		if err := summary.Transition(lead.SourceStateSucceeded); err != nil {
			return nil, err
		}
	}

	out := make(chan lead.RawRecord)
	go func() {
		defer close(out)
		for i, rec := range c.records {
			select {
			case <-ctx.Done():
				return
			case out <- rec:
			}
			if c.cancel != nil && i+1 == c.cancelAfter {
				c.cancel()
				return
			}
		}
	}()
	return out, nil
}

type businessRepoStub struct {
	mu      sync.Mutex
	batches [][]*lead.BusinessEntity
	err     error
}

func (r *businessRepoStub) UpsertBatch(ctx context.Context, entities []*lead.BusinessEntity) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	r.batches = append(r.batches, entities)
	return len(entities), nil
}

func (r *businessRepoStub) FindVersions(ctx context.Context, businessID uuid.UUID) ([]*lead.BusinessEntity, error) {
	return nil, nil
}

func (r *businessRepoStub) CountDistinct(ctx context.Context) (int64, error) { return 0, nil }

func (r *businessRepoStub) FindProspects(ctx context.Context, filter lead.ProspectFilter) ([]*lead.BusinessEntity, error) {
	return nil, nil
}

func (r *businessRepoStub) CountByGrade(ctx context.Context, since time.Time) (map[lead.LeadGrade]int64, error) {
	return nil, nil
}

func (r *businessRepoStub) CountByState(ctx context.Context, since time.Time) (map[string]int64, error) {
	return nil, nil
}

func (r *businessRepoStub) CountByType(ctx context.Context, since time.Time) (map[lead.BusinessType]int64, error) {
	return nil, nil
}

func (r *businessRepoStub) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}

type loanRepoStub struct{}

func (loanRepoStub) UpsertBatch(ctx context.Context, loans []*lead.SBALoanApproval) (int, error) {
	return len(loans), nil
}

func (loanRepoStub) FindProspects(ctx context.Context, filter lead.ProspectFilter) ([]*lead.SBALoanApproval, error) {
	return nil, nil
}

func (loanRepoStub) CountByGrade(ctx context.Context, since time.Time) (map[lead.LeadGrade]int64, error) {
	return nil, nil
}

type licenseRepoStub struct{}

func (licenseRepoStub) UpsertBatch(ctx context.Context, licenses []*lead.BusinessLicense) (int, error) {
	return len(licenses), nil
}

func (licenseRepoStub) FindProspects(ctx context.Context, filter lead.ProspectFilter) ([]*lead.BusinessLicense, error) {
	return nil, nil
}

func (licenseRepoStub) CountByGrade(ctx context.Context, since time.Time) (map[lead.LeadGrade]int64, error) {
	return nil, nil
}

type summaryRepoStub struct {
	mu     sync.Mutex
	saved  []*lead.CollectionSummary
	failOn bool
}

func (r *summaryRepoStub) Save(ctx context.Context, summary *lead.CollectionSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn {
		return shared.ErrStorageFailure
	}
	r.saved = append(r.saved, summary)
	return nil
}

func (r *summaryRepoStub) FindSince(ctx context.Context, since time.Time) ([]*lead.CollectionSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saved, nil
}

func validBusinessRecord(key string) lead.RawRecord {
	return lead.RawRecord{
		Kind:         lead.KindBusiness,
		SourceName:   "fl-sunbiz",
		Jurisdiction: "FL",
		NaturalKey:   key,
		FetchedAt:    testNow,
		Fields: map[string]string{
			"business_name":     "Sunrise Diner " + key,
			"business_type":     "restaurant",
			"city":              "Miami",
			"state":             "FL",
			"registration_date": "2024-06-01",
			"phone":             "305-555-0142",
			"street_address":    "120 Ocean Dr",
		},
	}
}

func invalidBusinessRecord(key string) lead.RawRecord {
	rec := validBusinessRecord(key)
	rec.Fields["state"] = "Florida"
	return rec
}

type pipelineFixture struct {
	service    *Service
	businesses *businessRepoStub
	summaries  *summaryRepoStub
}

func newPipelineFixture(t *testing.T, collector lead.Collector, opts Options) *pipelineFixture {
	t.Helper()

	sources, err := registry.NewSourceRegistry(map[string][]config.SourceSpec{
		"FL": {
			{Name: "fl-sunbiz", Strategy: collector.Name(), Enabled: true, UpdateFrequency: "daily"},
		},
	})
	require.NoError(t, err)

	collectors := registry.NewCollectorRegistry()
	require.NoError(t, collectors.Register(collector))

	businesses := &businessRepoStub{}
	summaries := &summaryRepoStub{}

	service := NewService(
		sources,
		collectors,
		validate.New(validate.WithClock(func() time.Time { return testNow })),
		Repositories{
			Businesses: businesses,
			Loans:      loanRepoStub{},
			Licenses:   licenseRepoStub{},
			Summaries:  summaries,
		},
		cache.NewInMemoryRunLock(),
		nil,
		nil,
		zap.NewNop(),
		opts,
	)
	return &pipelineFixture{service: service, businesses: businesses, summaries: summaries}
}

func TestServiceRun(t *testing.T) {
	t.Run("successful run writes validated records and skips rejects", func(t *testing.T) {
		collector := &stubCollector{
			name: "registrations",
			records: []lead.RawRecord{
				validBusinessRecord("REG-001"),
				validBusinessRecord("REG-002"),
				invalidBusinessRecord("REG-003"),
				validBusinessRecord("REG-004"),
			},
		}
		f := newPipelineFixture(t, collector, Options{})

		result, err := f.service.Run(context.Background(), []string{"FL"}, lead.TrailingWindow(90, testNow))
		require.NoError(t, err)

		require.Len(t, result.Summaries, 1)
		summary := result.Summaries[0]
		assert.Equal(t, lead.SourceStateSucceeded, summary.State)
		assert.Equal(t, 4, summary.RecordsFetched)
		assert.Equal(t, 3, summary.RecordsValidated)
		assert.Equal(t, 1, summary.RecordsRejected)

		assert.Equal(t, 3, result.Written[lead.KindBusiness])
		assert.Equal(t, 3, f.businesses.total())
		assert.Len(t, f.summaries.saved, 1)

		assert.False(t, result.Degraded())
		assert.False(t, result.Failed())
	})

	t.Run("records flush in batches", func(t *testing.T) {
		records := make([]lead.RawRecord, 5)
		for i := range records {
			records[i] = validBusinessRecord("REG-" + string(rune('A'+i)))
		}
		collector := &stubCollector{name: "registrations", records: records}
		f := newPipelineFixture(t, collector, Options{BatchSize: 2})

		result, err := f.service.Run(context.Background(), []string{"FL"}, lead.TrailingWindow(90, testNow))
		require.NoError(t, err)

		assert.Equal(t, 5, result.Written[lead.KindBusiness])
		require.Len(t, f.businesses.batches, 3)
		assert.Len(t, f.businesses.batches[0], 2)
		assert.Len(t, f.businesses.batches[1], 2)
		assert.Len(t, f.businesses.batches[2], 1)
	})

	t.Run("unknown jurisdiction is isolated as a config error", func(t *testing.T) {
		collector := &stubCollector{
			name:    "registrations",
			records: []lead.RawRecord{validBusinessRecord("REG-001")},
		}
		f := newPipelineFixture(t, collector, Options{})

		result, err := f.service.Run(context.Background(), []string{"FL", "ZZ"}, lead.TrailingWindow(90, testNow))
		require.NoError(t, err)

		require.Len(t, result.Summaries, 1)
		assert.Equal(t, lead.SourceStateSucceeded, result.Summaries[0].State)

		require.Contains(t, result.ConfigErrors, "ZZ")
		assert.True(t, errors.Is(result.ConfigErrors["ZZ"], shared.ErrConfigInvalid))

		assert.True(t, result.Degraded())
		assert.False(t, result.Failed())
	})

	t.Run("fallback run is degraded but not failed", func(t *testing.T) {
		collector := &stubCollector{
			name:    "registrations",
			mode:    "fallback",
			records: []lead.RawRecord{validBusinessRecord("REG-001")},
		}
		f := newPipelineFixture(t, collector, Options{})

		result, err := f.service.Run(context.Background(), []string{"FL"}, lead.TrailingWindow(90, testNow))
		require.NoError(t, err)

		require.Len(t, result.Summaries, 1)
		assert.Equal(t, lead.SourceStateFallback, result.Summaries[0].State)
		assert.True(t, result.Summaries[0].FallbackUsed)
		assert.True(t, result.Degraded())
		assert.False(t, result.Failed())
	})

	t.Run("hard source failure still records a summary", func(t *testing.T) {
		collector := &stubCollector{name: "registrations", mode: "fail"}
		f := newPipelineFixture(t, collector, Options{})

		result, err := f.service.Run(context.Background(), []string{"FL"}, lead.TrailingWindow(90, testNow))
		require.NoError(t, err)

		require.Len(t, result.Summaries, 1)
		summary := result.Summaries[0]
		assert.Equal(t, lead.SourceStateFailed, summary.State)
		assert.NotEmpty(t, summary.Error)
		assert.True(t, result.Failed())

		require.Len(t, f.summaries.saved, 1)
	})

	t.Run("locked source is skipped", func(t *testing.T) {
		collector := &stubCollector{
			name:    "registrations",
			records: []lead.RawRecord{validBusinessRecord("REG-001")},
		}
		f := newPipelineFixture(t, collector, Options{})

		lock := cache.NewInMemoryRunLock()
		acquired, err := lock.Acquire(context.Background(), "fl-sunbiz", time.Minute)
		require.NoError(t, err)
		require.True(t, acquired)
		f.service.lock = lock

		result, err := f.service.Run(context.Background(), []string{"FL"}, lead.TrailingWindow(90, testNow))
		require.NoError(t, err)

		assert.Empty(t, result.Summaries)
		assert.Equal(t, 0, f.businesses.total())
	})

	t.Run("executor surfaces only hard failures to the scheduler", func(t *testing.T) {
		window := lead.TrailingWindow(90, testNow)

		ok := newPipelineFixture(t, &stubCollector{
			name:    "registrations",
			mode:    "fallback",
			records: []lead.RawRecord{validBusinessRecord("REG-001")},
		}, Options{})
		job := scheduler.NewJob(lead.SourceConfig{
			Name:            "fl-sunbiz",
			Jurisdiction:    "FL",
			Strategy:        "registrations",
			Enabled:         true,
			UpdateFrequency: lead.FrequencyDaily,
		}, window, 1)
		assert.NoError(t, NewExecutor(ok.service).Execute(context.Background(), job))

		failing := newPipelineFixture(t, &stubCollector{name: "registrations", mode: "fail"}, Options{})
		assert.Error(t, NewExecutor(failing.service).Execute(context.Background(), job))
	})

	t.Run("storage failure marks the run partial", func(t *testing.T) {
		collector := &stubCollector{
			name: "registrations",
			records: []lead.RawRecord{
				validBusinessRecord("REG-001"),
				validBusinessRecord("REG-002"),
			},
		}
		f := newPipelineFixture(t, collector, Options{})
		f.businesses.err = errors.New("relation does not exist")

		result, err := f.service.Run(context.Background(), []string{"FL"}, lead.TrailingWindow(90, testNow))
		require.NoError(t, err)

		require.Len(t, result.Summaries, 1)
		summary := result.Summaries[0]
		assert.Equal(t, lead.SourceStateSucceeded, summary.State)
		assert.Equal(t, 2, summary.RecordsValidated)
		assert.True(t, summary.Partial)
		assert.Contains(t, summary.Error, "relation does not exist")

		assert.Equal(t, 0, result.Written[lead.KindBusiness])
		assert.True(t, result.Degraded())
		assert.False(t, result.Failed())
	})

	t.Run("cancellation mid-stream flushes what arrived and flags the run", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		collector := &stubCollector{
			name: "registrations",
			records: []lead.RawRecord{
				validBusinessRecord("REG-001"),
				validBusinessRecord("REG-002"),
				validBusinessRecord("REG-003"),
			},
			cancelAfter: 2,
			cancel:      cancel,
		}
		f := newPipelineFixture(t, collector, Options{})

		src, err := f.service.sources.ListSources("FL")
		require.NoError(t, err)
		require.Len(t, src, 1)

		summary, written := f.service.RunSource(ctx, src[0], lead.TrailingWindow(90, testNow))
		require.NotNil(t, summary)

		assert.Equal(t, 2, summary.RecordsFetched)
		assert.Equal(t, 2, summary.RecordsValidated)
		assert.True(t, summary.Partial)
		assert.True(t, summary.Degraded())

		assert.Equal(t, 2, written[lead.KindBusiness])
		assert.Equal(t, 2, f.businesses.total())
		assert.Len(t, f.summaries.saved, 1)
	})

	t.Run("empty jurisdiction list collects everything configured", func(t *testing.T) {
		collector := &stubCollector{
			name:    "registrations",
			records: []lead.RawRecord{validBusinessRecord("REG-001")},
		}
		f := newPipelineFixture(t, collector, Options{})

		result, err := f.service.Run(context.Background(), nil, lead.TrailingWindow(90, testNow))
		require.NoError(t, err)

		require.Len(t, result.Summaries, 1)
		assert.Equal(t, "fl-sunbiz", result.Summaries[0].SourceName)
	})
}
