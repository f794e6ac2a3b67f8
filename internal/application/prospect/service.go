// Package prospect implements the read side of the warehouse: aggregate
// statistics for the analyze command and CSV export of graded prospects.
package prospect

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/leadgen/backend/internal/domain/lead"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// Service answers questions about collected leads
type Service struct {
	businesses lead.BusinessEntityRepository
	loans      lead.LoanRepository
	licenses   lead.LicenseRepository
	summaries  lead.SummaryRepository
	logger     *zap.Logger
}

// NewService creates the prospect read service
func NewService(
	businesses lead.BusinessEntityRepository,
	loans lead.LoanRepository,
	licenses lead.LicenseRepository,
	summaries lead.SummaryRepository,
	logger *zap.Logger,
) *Service {
	return &Service{
		businesses: businesses,
		loans:      loans,
		licenses:   licenses,
		summaries:  summaries,
		logger:     logger,
	}
}

// Report aggregates warehouse statistics since a cutoff
type Report struct {
	Since              time.Time
	DistinctBusinesses int64
	BusinessGrades     map[lead.LeadGrade]int64
	LoanGrades         map[lead.LeadGrade]int64
	LicenseGrades      map[lead.LeadGrade]int64
	BusinessStates     map[string]int64
	BusinessTypes      map[lead.BusinessType]int64
	Runs               int
	DegradedRuns       int
	FailedRuns         int
	RecordsFetched     int
	RecordsValidated   int
	RecordsRejected    int
}

// TotalByGrade sums one grade across the three record kinds
func (r *Report) TotalByGrade(grade lead.LeadGrade) int64 {
	return r.BusinessGrades[grade] + r.LoanGrades[grade] + r.LicenseGrades[grade]
}

// Analyze builds the aggregate report for records extracted since the cutoff
func (s *Service) Analyze(ctx context.Context, since time.Time) (*Report, error) {
	report := &Report{Since: since}

	distinct, err := s.businesses.CountDistinct(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting businesses: %w", err)
	}
	report.DistinctBusinesses = distinct

	if report.BusinessGrades, err = s.businesses.CountByGrade(ctx, since); err != nil {
		return nil, fmt.Errorf("grading businesses: %w", err)
	}
	if report.LoanGrades, err = s.loans.CountByGrade(ctx, since); err != nil {
		return nil, fmt.Errorf("grading loans: %w", err)
	}
	if report.LicenseGrades, err = s.licenses.CountByGrade(ctx, since); err != nil {
		return nil, fmt.Errorf("grading licenses: %w", err)
	}
	if report.BusinessStates, err = s.businesses.CountByState(ctx, since); err != nil {
		return nil, fmt.Errorf("aggregating states: %w", err)
	}
	if report.BusinessTypes, err = s.businesses.CountByType(ctx, since); err != nil {
		return nil, fmt.Errorf("aggregating types: %w", err)
	}

	runs, err := s.summaries.FindSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("loading run history: %w", err)
	}
	report.Runs = len(runs)
	for _, run := range runs {
		if run.Degraded() {
			report.DegradedRuns++
		}
		if run.State == lead.SourceStateFailed {
			report.FailedRuns++
		}
		report.RecordsFetched += run.RecordsFetched
		report.RecordsValidated += run.RecordsValidated
		report.RecordsRejected += run.RecordsRejected
	}

	return report, nil
}

// Export writes the latest graded prospects of one record kind as CSV,
// ordered by grade then confidence score. It returns the number of data rows
// written.
func (s *Service) Export(ctx context.Context, w io.Writer, kind lead.RecordKind, filter lead.ProspectFilter) (int, error) {
	out := csv.NewWriter(w)

	var rows int
	var err error
	switch kind {
	case lead.KindBusiness:
		rows, err = s.exportBusinesses(ctx, out, filter)
	case lead.KindLoan:
		rows, err = s.exportLoans(ctx, out, filter)
	case lead.KindLicense:
		rows, err = s.exportLicenses(ctx, out, filter)
	default:
		return 0, fmt.Errorf("unknown record kind %q", kind)
	}
	if err != nil {
		return 0, err
	}

	out.Flush()
	if err := out.Error(); err != nil {
		return 0, fmt.Errorf("writing csv: %w", err)
	}

	s.logger.Info("Prospect export complete",
		zap.String("kind", string(kind)),
		zap.Int("rows", rows),
	)
	return rows, nil
}

func (s *Service) exportBusinesses(ctx context.Context, out *csv.Writer, filter lead.ProspectFilter) (int, error) {
	header := []string{
		"business_id", "business_name", "business_type", "naics_code",
		"city", "state", "registration_date", "phone", "street_address",
		"confidence_score", "grade", "source_name", "jurisdiction",
	}
	if err := out.Write(header); err != nil {
		return 0, err
	}

	entities, err := s.businesses.FindProspects(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("querying business prospects: %w", err)
	}
	for _, e := range entities {
		row := []string{
			e.BusinessID.String(), e.BusinessName, string(e.BusinessType), e.NAICSCode,
			e.City, e.State, e.RegistrationDate.Format(dateLayout), e.Phone, e.StreetAddress,
			formatScore(e.ConfidenceScore), string(e.Grade), e.SourceName, e.Jurisdiction,
		}
		if err := out.Write(row); err != nil {
			return 0, err
		}
	}
	return len(entities), nil
}

func (s *Service) exportLoans(ctx context.Context, out *csv.Writer, filter lead.ProspectFilter) (int, error) {
	header := []string{
		"loan_id", "borrower_name", "loan_amount", "approval_date",
		"borrower_city", "borrower_state", "franchise_name", "program_type",
		"naics_code", "confidence_score", "grade", "source_name", "jurisdiction",
	}
	if err := out.Write(header); err != nil {
		return 0, err
	}

	loans, err := s.loans.FindProspects(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("querying loan prospects: %w", err)
	}
	for _, l := range loans {
		row := []string{
			l.LoanID, l.BorrowerName, l.LoanAmount.StringFixed(2), l.ApprovalDate.Format(dateLayout),
			l.BorrowerCity, l.BorrowerState, l.FranchiseName, string(l.ProgramType),
			l.NAICSCode, formatScore(l.ConfidenceScore), string(l.Grade), l.SourceName, l.Jurisdiction,
		}
		if err := out.Write(row); err != nil {
			return 0, err
		}
	}
	return len(loans), nil
}

func (s *Service) exportLicenses(ctx context.Context, out *csv.Writer, filter lead.ProspectFilter) (int, error) {
	header := []string{
		"license_id", "business_name", "license_type", "issuing_jurisdiction",
		"issue_date", "status", "city", "state",
		"confidence_score", "grade", "source_name", "jurisdiction",
	}
	if err := out.Write(header); err != nil {
		return 0, err
	}

	licenses, err := s.licenses.FindProspects(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("querying license prospects: %w", err)
	}
	for _, l := range licenses {
		row := []string{
			l.LicenseID, l.BusinessName, l.LicenseType, l.IssuingJurisdiction,
			l.IssueDate.Format(dateLayout), string(l.Status), l.City, l.State,
			formatScore(l.ConfidenceScore), string(l.Grade), l.SourceName, l.Jurisdiction,
		}
		if err := out.Write(row); err != nil {
			return 0, err
		}
	}
	return len(licenses), nil
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', 1, 64)
}
