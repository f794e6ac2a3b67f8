package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/leadgen/backend/internal/domain/lead"
	"go.uber.org/zap"
)

// licenseRecord is the wire shape of one row from a license roster feed
type licenseRecord struct {
	LicenseID           string `json:"license_id"`
	BusinessName        string `json:"business_name"`
	LicenseType         string `json:"license_type"`
	IssuingJurisdiction string `json:"issuing_jurisdiction"`
	IssueDate           string `json:"issue_date"`
	Status              string `json:"status"`
	City                string `json:"city"`
	State               string `json:"state"`
}

// LicenseCollector fetches newly issued business licenses from a JSON roster
type LicenseCollector struct {
	*BaseCollector
}

// NewLicenseCollector creates the license collector
func NewLicenseCollector(opts Options) *LicenseCollector {
	return &LicenseCollector{BaseCollector: NewBaseCollector(opts)}
}

// Name returns the strategy identifier
func (c *LicenseCollector) Name() string {
	return "licenses"
}

// Collect fetches the roster for the window and streams records in fetch order
func (c *LicenseCollector) Collect(ctx context.Context, cfg lead.SourceConfig, window lead.Window, summary *lead.CollectionSummary) (<-chan lead.RawRecord, error) {
	if err := summary.Transition(lead.SourceStateFetching); err != nil {
		return nil, err
	}

	limiter := c.NewLimiter(cfg.RateLimit)

	fetchURL, err := c.windowURL(cfg.Endpoint, window)
	if err != nil {
		return c.Fallback(ctx, cfg, window, summary, lead.KindLicense, err)
	}

	body, err := c.Fetch(ctx, limiter, fetchURL)
	if err != nil {
		return c.Fallback(ctx, cfg, window, summary, lead.KindLicense, err)
	}

	var rows []licenseRecord
	if err := json.Unmarshal(body, &rows); err != nil {
		return c.Fallback(ctx, cfg, window, summary, lead.KindLicense,
			fmt.Errorf("decoding license roster: %w", err))
	}

	records := make([]lead.RawRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, lead.RawRecord{
			Kind:         lead.KindLicense,
			SourceName:   cfg.Name,
			Jurisdiction: cfg.Jurisdiction,
			NaturalKey:   row.LicenseID,
			FetchedAt:    c.Now(),
			Fields: map[string]string{
				"license_id":           row.LicenseID,
				"business_name":        row.BusinessName,
				"license_type":         row.LicenseType,
				"issuing_jurisdiction": row.IssuingJurisdiction,
				"issue_date":           row.IssueDate,
				"status":               row.Status,
				"city":                 row.City,
				"state":                row.State,
			},
		})
	}

	c.Logger().Debug("licenses fetched",
		zap.String("source", cfg.Name),
		zap.Int("records", len(records)),
	)

	if err := summary.Transition(lead.SourceStateSucceeded); err != nil {
		return nil, err
	}
	return c.Stream(ctx, records), nil
}

func (c *LicenseCollector) windowURL(endpoint string, window lead.Window) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("issued_after", window.Start.Format("2006-01-02"))
	q.Set("issued_before", window.End.Format("2006-01-02"))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
