package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/leadgen/backend/internal/domain/lead"
	"go.uber.org/zap"
)

const registrationsPageSize = 200

// registrationRecord is the wire shape of one row from a registration feed
type registrationRecord struct {
	RegistrationID   string `json:"registration_id"`
	BusinessName     string `json:"business_name"`
	BusinessType     string `json:"business_type"`
	NAICSCode        string `json:"naics_code"`
	City             string `json:"city"`
	State            string `json:"state"`
	RegistrationDate string `json:"registration_date"`
	Phone            string `json:"phone"`
	StreetAddress    string `json:"street_address"`
	Description      string `json:"description"`
	FranchiseName    string `json:"franchise_name"`
}

// RegistrationsCollector fetches newly registered businesses from a paginated
// JSON feed. One instance serves every source configured with the
// "registrations" strategy; per-source state lives in the Collect call.
type RegistrationsCollector struct {
	*BaseCollector
}

// NewRegistrationsCollector creates the registrations collector
func NewRegistrationsCollector(opts Options) *RegistrationsCollector {
	return &RegistrationsCollector{BaseCollector: NewBaseCollector(opts)}
}

// Name returns the strategy identifier
func (c *RegistrationsCollector) Name() string {
	return "registrations"
}

// Collect fetches all pages for the window up front, then streams records in
// fetch order. On retry exhaustion the flagged sample dataset is substituted.
func (c *RegistrationsCollector) Collect(ctx context.Context, cfg lead.SourceConfig, window lead.Window, summary *lead.CollectionSummary) (<-chan lead.RawRecord, error) {
	if err := summary.Transition(lead.SourceStateFetching); err != nil {
		return nil, err
	}

	limiter := c.NewLimiter(cfg.RateLimit)

	var records []lead.RawRecord
	for page := 1; ; page++ {
		pageURL, err := c.pageURL(cfg.Endpoint, window, page)
		if err != nil {
			return c.Fallback(ctx, cfg, window, summary, lead.KindBusiness, err)
		}

		body, err := c.Fetch(ctx, limiter, pageURL)
		if err != nil {
			return c.Fallback(ctx, cfg, window, summary, lead.KindBusiness, err)
		}

		var rows []registrationRecord
		if err := json.Unmarshal(body, &rows); err != nil {
			return c.Fallback(ctx, cfg, window, summary, lead.KindBusiness,
				fmt.Errorf("decoding registrations page %d: %w", page, err))
		}

		for _, row := range rows {
			records = append(records, c.toRaw(cfg, row))
		}

		if len(rows) < registrationsPageSize {
			break
		}
	}

	c.Logger().Debug("registrations fetched",
		zap.String("source", cfg.Name),
		zap.Int("records", len(records)),
	)

	if err := summary.Transition(lead.SourceStateSucceeded); err != nil {
		return nil, err
	}
	return c.Stream(ctx, records), nil
}

// pageURL builds the window-bounded page query
func (c *RegistrationsCollector) pageURL(endpoint string, window lead.Window, page int) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("registered_after", window.Start.Format("2006-01-02"))
	q.Set("registered_before", window.End.Format("2006-01-02"))
	q.Set("page", fmt.Sprintf("%d", page))
	q.Set("per_page", fmt.Sprintf("%d", registrationsPageSize))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *RegistrationsCollector) toRaw(cfg lead.SourceConfig, row registrationRecord) lead.RawRecord {
	return lead.RawRecord{
		Kind:         lead.KindBusiness,
		SourceName:   cfg.Name,
		Jurisdiction: cfg.Jurisdiction,
		NaturalKey:   row.RegistrationID,
		FetchedAt:    c.Now(),
		Fields: map[string]string{
			"business_name":     row.BusinessName,
			"business_type":     row.BusinessType,
			"naics_code":        row.NAICSCode,
			"city":              row.City,
			"state":             row.State,
			"registration_date": row.RegistrationDate,
			"phone":             row.Phone,
			"street_address":    row.StreetAddress,
			"description":       row.Description,
			"franchise_name":    row.FranchiseName,
		},
	}
}
