package lead

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProgramType represents the SBA loan program
type ProgramType string

const (
	Program7a    ProgramType = "7a"
	Program504   ProgramType = "504"
	ProgramOther ProgramType = "other"
)

// IsValid checks if the program type is valid
func (p ProgramType) IsValid() bool {
	switch p {
	case Program7a, Program504, ProgramOther:
		return true
	}
	return false
}

// SBALoanApproval represents one approved SBA loan observed at a source.
// LoanAmount and ApprovalDate are both required for the record to be scoreable.
type SBALoanApproval struct {
	LoanID              string          `json:"loan_id" validate:"required"`
	BorrowerName        string          `json:"borrower_name" validate:"required"`
	LoanAmount          decimal.Decimal `json:"loan_amount" validate:"required"`
	ApprovalDate        time.Time       `json:"approval_date" validate:"required"`
	BorrowerCity        string          `json:"borrower_city"`
	BorrowerState       string          `json:"borrower_state" validate:"required,len=2"`
	FranchiseName       string          `json:"franchise_name,omitempty"`
	ProgramType         ProgramType     `json:"program_type" validate:"required"`
	NAICSCode           string          `json:"naics_code,omitempty"`
	ConfidenceScore     float64         `json:"confidence_score" validate:"gte=0,lte=100"`
	Grade               LeadGrade       `json:"grade,omitempty"`
	SourceName          string          `json:"source_name" validate:"required"`
	Jurisdiction        string          `json:"jurisdiction" validate:"required"`
	ExtractionTimestamp time.Time       `json:"extraction_timestamp" validate:"required"`
}

// ScoreSignals extracts the completeness signals used by the confidence scorer
func (l *SBALoanApproval) ScoreSignals() ScoreSignals {
	return ScoreSignals{
		Complete:  l.BorrowerName != "" && l.LoanAmount.IsPositive() && !l.ApprovalDate.IsZero(),
		NAICSCode: l.NAICSCode,
	}
}
