package collector

import (
	"fmt"
	"time"

	"github.com/leadgen/backend/internal/domain/lead"
)

// sampleCities used when synthesizing fallback records for a jurisdiction
var sampleCities = map[string][]string{
	"FL": {"Miami", "Orlando", "Tampa", "Jacksonville"},
	"TX": {"Houston", "Austin", "Dallas", "San Antonio"},
	"CA": {"Los Angeles", "San Diego", "Sacramento", "Fresno"},
}

var sampleFranchises = []string{"", "", "Subway", "", "Anytime Fitness", ""}

// sampleCount is the fixed size of a fallback dataset per source
const sampleCount = 25

// SampleRecords builds the deterministic synthetic dataset substituted when a
// live source is unreachable. Every record is flagged Synthetic so downstream
// consumers can never mistake placeholder data for real leads.
func SampleRecords(cfg lead.SourceConfig, window lead.Window, kind lead.RecordKind, now time.Time) []lead.RawRecord {
	cities, ok := sampleCities[cfg.Jurisdiction]
	if !ok {
		cities = []string{"Springfield", "Franklin", "Clinton", "Georgetown"}
	}

	types := cfg.BusinessTypeFilter
	if len(types) == 0 {
		types = lead.AllBusinessTypes()
	}

	state := cfg.Jurisdiction
	if len(state) != 2 {
		state = "FL"
	}

	span := window.Days()
	if span < 1 {
		span = 1
	}

	records := make([]lead.RawRecord, 0, sampleCount)
	for i := 0; i < sampleCount; i++ {
		// Spread event dates evenly across the window, skipping the partial
		// first day so a midnight-parsed date never lands before Start
		eventDate := window.Start.AddDate(0, 0, 1+i%span).Format("2006-01-02")
		city := cities[i%len(cities)]

		rec := lead.RawRecord{
			Kind:         kind,
			SourceName:   cfg.Name,
			Jurisdiction: cfg.Jurisdiction,
			NaturalKey:   fmt.Sprintf("SAMPLE-%s-%04d", cfg.Name, i),
			FetchedAt:    now,
			Synthetic:    true,
		}

		switch kind {
		case lead.KindBusiness:
			rec.Fields = map[string]string{
				"business_name":     fmt.Sprintf("Sample Business %03d LLC", i),
				"business_type":     string(types[i%len(types)]),
				"city":              city,
				"state":             state,
				"registration_date": eventDate,
				"naics_code":        fmt.Sprintf("72%04d", i%10000),
			}
			if i%3 == 0 {
				rec.Fields["phone"] = fmt.Sprintf("555-01%02d", i%100)
			}
			if i%4 == 0 {
				rec.Fields["street_address"] = fmt.Sprintf("%d Main St", 100+i)
			}
		case lead.KindLoan:
			rec.Fields = map[string]string{
				"loan_id":        fmt.Sprintf("SAMPLE-%s-%04d", cfg.Name, i),
				"borrower_name":  fmt.Sprintf("Sample Borrower %03d", i),
				"loan_amount":    fmt.Sprintf("%d", 50000+i*15000),
				"approval_date":  eventDate,
				"borrower_city":  city,
				"borrower_state": state,
				"program_type":   []string{"7a", "504"}[i%2],
				"franchise_name": sampleFranchises[i%len(sampleFranchises)],
			}
		case lead.KindLicense:
			statuses := []string{"active", "active", "active", "expired", "revoked"}
			rec.Fields = map[string]string{
				"license_id":           fmt.Sprintf("SAMPLE-%s-%04d", cfg.Name, i),
				"business_name":        fmt.Sprintf("Sample Business %03d LLC", i),
				"license_type":         "general_business",
				"issuing_jurisdiction": cfg.Jurisdiction,
				"issue_date":           eventDate,
				"status":               statuses[i%len(statuses)],
				"city":                 city,
				"state":                state,
			}
		}

		records = append(records, rec)
	}
	return records
}
