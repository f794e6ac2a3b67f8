package collector

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v4"
	"github.com/leadgen/backend/internal/domain/lead"
	"github.com/leadgen/backend/internal/domain/shared"
	infraconfig "github.com/leadgen/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// ObjectFetcher is the slice of the S3 API the bulk-file collector needs
type ObjectFetcher interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewS3Client builds an S3 client for bulk-file sources. It is compatible
// with any S3-compatible storage (AWS S3, MinIO, etc.)
func NewS3Client(cfg *infraconfig.StorageConfig) (*s3.Client, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required for bulk-file sources")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			endpoint := cfg.Endpoint
			if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
				if cfg.UseSSL {
					endpoint = "https://" + endpoint
				} else {
					endpoint = "http://" + endpoint
				}
			}
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// bulkColumns are the canonical headers expected in registration file drops
var bulkColumns = []string{
	"registration_id", "business_name", "business_type", "naics_code",
	"city", "state", "registration_date", "phone", "street_address",
	"description", "franchise_name",
}

// BulkFileCollector pulls periodic CSV drops from an object bucket for
// sources that publish files instead of serving an API. The source's
// Endpoint is the object key within the configured bucket.
type BulkFileCollector struct {
	*BaseCollector
	client ObjectFetcher
	bucket string
}

// NewBulkFileCollector creates the bulk-file collector
func NewBulkFileCollector(opts Options, client ObjectFetcher, bucket string) *BulkFileCollector {
	return &BulkFileCollector{
		BaseCollector: NewBaseCollector(opts),
		client:        client,
		bucket:        bucket,
	}
}

// Name returns the strategy identifier
func (c *BulkFileCollector) Name() string {
	return "bulk_file"
}

// Collect downloads the file drop with bounded retries and streams rows whose
// registration date falls inside the window, in file order.
func (c *BulkFileCollector) Collect(ctx context.Context, cfg lead.SourceConfig, window lead.Window, summary *lead.CollectionSummary) (<-chan lead.RawRecord, error) {
	if err := summary.Transition(lead.SourceStateFetching); err != nil {
		return nil, err
	}

	body, err := c.download(ctx, cfg.Endpoint)
	if err != nil {
		return c.Fallback(ctx, cfg, window, summary, lead.KindBusiness, err)
	}

	records, err := c.parse(cfg, window, body)
	if err != nil {
		return c.Fallback(ctx, cfg, window, summary, lead.KindBusiness, err)
	}

	c.Logger().Debug("bulk file fetched",
		zap.String("source", cfg.Name),
		zap.String("key", cfg.Endpoint),
		zap.Int("records", len(records)),
	)

	if err := summary.Transition(lead.SourceStateSucceeded); err != nil {
		return nil, err
	}
	return c.Stream(ctx, records), nil
}

func (c *BulkFileCollector) download(ctx context.Context, key string) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.RetryBaseDelay
	bo.MaxInterval = c.opts.RetryMaxDelay

	var body []byte
	operation := func() error {
		out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("fetching object %s: %w", key, err)
		}
		defer out.Body.Close()

		body, err = io.ReadAll(out.Body)
		if err != nil {
			return fmt.Errorf("reading object %s: %w", key, err)
		}
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.opts.MaxRetries)), ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrSourceUnavailable, err)
	}
	return body, nil
}

func (c *BulkFileCollector) parse(cfg lead.SourceConfig, window lead.Window, body []byte) ([]lead.RawRecord, error) {
	reader := csv.NewReader(bytes.NewReader(body))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	index := make(map[string]int, len(bulkColumns))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := index["registration_id"]; !ok {
		return nil, fmt.Errorf("CSV missing registration_id column, header: %v", header)
	}

	var records []lead.RawRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row: %w", err)
		}

		fields := make(map[string]string, len(bulkColumns))
		for _, col := range bulkColumns {
			if i, ok := index[col]; ok && i < len(row) {
				fields[col] = strings.TrimSpace(row[i])
			}
		}

		// File drops cover more than one window; keep only in-window rows
		if regDate, err := parseDate(fields["registration_date"]); err == nil && !window.Contains(regDate) {
			continue
		}

		records = append(records, lead.RawRecord{
			Kind:         lead.KindBusiness,
			SourceName:   cfg.Name,
			Jurisdiction: cfg.Jurisdiction,
			NaturalKey:   fields["registration_id"],
			Fields:       fields,
			FetchedAt:    c.Now(),
		})
	}
	return records, nil
}
