package collector

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/leadgen/backend/internal/domain/lead"
	"go.uber.org/zap"
)

// sbaColumns maps the canonical field names to the column headers the SBA
// bulk downloads use. Header matching is case-insensitive.
var sbaColumns = map[string][]string{
	"loan_id":        {"loan_id", "loannumber", "loan_number"},
	"borrower_name":  {"borrower_name", "borrowername"},
	"loan_amount":    {"loan_amount", "grossapproval", "gross_approval"},
	"approval_date":  {"approval_date", "approvaldate"},
	"borrower_city":  {"borrower_city", "borrowercity"},
	"borrower_state": {"borrower_state", "borrowerstate"},
	"franchise_name": {"franchise_name", "franchisename"},
	"program_type":   {"program_type", "program"},
	"naics_code":     {"naics_code", "naicscode"},
}

// SBALoanCollector pulls the SBA loan-approval bulk CSV for the window and
// streams one raw record per data row.
type SBALoanCollector struct {
	*BaseCollector
}

// NewSBALoanCollector creates the SBA loan collector
func NewSBALoanCollector(opts Options) *SBALoanCollector {
	return &SBALoanCollector{BaseCollector: NewBaseCollector(opts)}
}

// Name returns the strategy identifier
func (c *SBALoanCollector) Name() string {
	return "sba_loans"
}

// Collect downloads and parses the bulk CSV, falling back to sample data when
// the download cannot be completed.
func (c *SBALoanCollector) Collect(ctx context.Context, cfg lead.SourceConfig, window lead.Window, summary *lead.CollectionSummary) (<-chan lead.RawRecord, error) {
	if err := summary.Transition(lead.SourceStateFetching); err != nil {
		return nil, err
	}

	limiter := c.NewLimiter(cfg.RateLimit)

	fetchURL, err := c.windowURL(cfg.Endpoint, window)
	if err != nil {
		return c.Fallback(ctx, cfg, window, summary, lead.KindLoan, err)
	}

	body, err := c.Fetch(ctx, limiter, fetchURL)
	if err != nil {
		return c.Fallback(ctx, cfg, window, summary, lead.KindLoan, err)
	}

	records, err := c.parseCSV(cfg, body)
	if err != nil {
		return c.Fallback(ctx, cfg, window, summary, lead.KindLoan, err)
	}

	c.Logger().Debug("loan approvals fetched",
		zap.String("source", cfg.Name),
		zap.Int("records", len(records)),
	)

	if err := summary.Transition(lead.SourceStateSucceeded); err != nil {
		return nil, err
	}
	return c.Stream(ctx, records), nil
}

func (c *SBALoanCollector) windowURL(endpoint string, window lead.Window) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("approved_after", window.Start.Format("2006-01-02"))
	q.Set("approved_before", window.End.Format("2006-01-02"))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// parseCSV converts the bulk download into raw records in file order
func (c *SBALoanCollector) parseCSV(cfg lead.SourceConfig, body []byte) ([]lead.RawRecord, error) {
	reader := csv.NewReader(bytes.NewReader(body))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	index := make(map[string]int, len(sbaColumns))
	for col, aliases := range sbaColumns {
		for i, h := range header {
			normalized := strings.ToLower(strings.TrimSpace(h))
			for _, alias := range aliases {
				if normalized == alias {
					index[col] = i
				}
			}
		}
	}
	if _, ok := index["loan_id"]; !ok {
		return nil, fmt.Errorf("CSV missing loan identifier column, header: %v", header)
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

		fields := make(map[string]string, len(index))
		for col, i := range index {
			if i < len(row) {
				fields[col] = strings.TrimSpace(row[i])
			}
		}

		records = append(records, lead.RawRecord{
			Kind:         lead.KindLoan,
			SourceName:   cfg.Name,
			Jurisdiction: cfg.Jurisdiction,
			NaturalKey:   fields["loan_id"],
			Fields:       fields,
			FetchedAt:    c.Now(),
		})
	}
	return records, nil
}
