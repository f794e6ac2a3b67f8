// Package collector contains the per-strategy collector implementations and
// the shared fetch plumbing they are built on: proactive rate limiting,
// bounded retries with exponential backoff and the flagged sample-data
// fallback for structurally unreachable sources.
package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/leadgen/backend/internal/domain/lead"
	"github.com/leadgen/backend/internal/domain/shared"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options configures the shared collector plumbing
type Options struct {
	HTTPClient      *http.Client
	MaxRetries      int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	FallbackEnabled bool
	Logger          *zap.Logger
	Clock           func() time.Time
}

// applyDefaults fills zero-valued options
func (o *Options) applyDefaults() {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.RetryBaseDelay == 0 {
		o.RetryBaseDelay = 2 * time.Second
	}
	if o.RetryMaxDelay == 0 {
		o.RetryMaxDelay = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// BaseCollector provides the fetch plumbing concrete collectors share
type BaseCollector struct {
	opts Options
}

// NewBaseCollector creates the shared collector base
func NewBaseCollector(opts Options) *BaseCollector {
	opts.applyDefaults()
	return &BaseCollector{opts: opts}
}

// Logger exposes the configured logger to concrete collectors
func (c *BaseCollector) Logger() *zap.Logger {
	return c.opts.Logger
}

// Now returns the configured clock's current time
func (c *BaseCollector) Now() time.Time {
	return c.opts.Clock()
}

// FallbackEnabled reports whether sample-data fallback is allowed
func (c *BaseCollector) FallbackEnabled() bool {
	return c.opts.FallbackEnabled
}

// NewLimiter builds the per-source token bucket for one collection run
func (c *BaseCollector) NewLimiter(limit lead.RateLimit) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(limit.RequestsPerSecond), limit.Burst)
}

// permanentStatus reports whether an HTTP status short-circuits retries.
// Timeouts, 5xx and rate-limit signals are transient; other 4xx are not.
func permanentStatus(status int) bool {
	return status >= 400 && status < 500 && status != http.StatusRequestTimeout && status != http.StatusTooManyRequests
}

// parseDate parses the calendar-date format upstream feeds use
func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", strings.TrimSpace(s))
}

// Fetch issues one rate-limited GET with bounded exponential-backoff retries.
// A permanent upstream failure (4xx other than 408/429) stops retrying
// immediately; exhausting retries surfaces ErrSourceUnavailable so the caller
// can decide between fallback and failure.
func (c *BaseCollector) Fetch(ctx context.Context, limiter *rate.Limiter, url string) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.RetryBaseDelay
	bo.MaxInterval = c.opts.RetryMaxDelay

	var body []byte
	operation := func() error {
		if err := limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.opts.HTTPClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return fmt.Errorf("request timed out: %w", err)
			}
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
			if permanentStatus(resp.StatusCode) {
				return backoff.Permanent(err)
			}
			return err
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response body: %w", err)
		}
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.opts.MaxRetries)), ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrSourceUnavailable, err)
	}
	return body, nil
}

// Stream emits records on a closed-when-done channel, stopping at the next
// record boundary once ctx is cancelled.
func (c *BaseCollector) Stream(ctx context.Context, records []lead.RawRecord) <-chan lead.RawRecord {
	out := make(chan lead.RawRecord)
	go func() {
		defer close(out)
		for _, rec := range records {
			select {
			case <-ctx.Done():
				return
			case out <- rec:
			}
		}
	}()
	return out
}

// Fallback transitions the source to FALLBACK and streams the flagged sample
// dataset. Fallback is all-or-nothing per source; sample records are never
// mixed with live ones.
func (c *BaseCollector) Fallback(ctx context.Context, cfg lead.SourceConfig, window lead.Window, summary *lead.CollectionSummary, kind lead.RecordKind, cause error) (<-chan lead.RawRecord, error) {
	if !c.opts.FallbackEnabled {
		if terr := summary.Transition(lead.SourceStateFailed); terr == nil {
			summary.Error = cause.Error()
		}
		return nil, cause
	}

	if err := summary.Transition(lead.SourceStateFallback); err != nil {
		return nil, err
	}
	summary.Error = cause.Error()

	c.opts.Logger.Warn("source unreachable, using flagged sample data",
		zap.String("source", cfg.Name),
		zap.String("jurisdiction", cfg.Jurisdiction),
		zap.Error(cause),
	)

	return c.Stream(ctx, SampleRecords(cfg, window, kind, c.Now())), nil
}
