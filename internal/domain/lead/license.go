package lead

import "time"

// LicenseStatus represents the lifecycle state of a business license
type LicenseStatus string

const (
	LicenseStatusActive  LicenseStatus = "active"
	LicenseStatusExpired LicenseStatus = "expired"
	LicenseStatusRevoked LicenseStatus = "revoked"
)

// IsValid checks if the license status is valid
func (s LicenseStatus) IsValid() bool {
	switch s {
	case LicenseStatusActive, LicenseStatusExpired, LicenseStatusRevoked:
		return true
	}
	return false
}

// BusinessLicense represents one issued license observed at a source
type BusinessLicense struct {
	LicenseID           string        `json:"license_id" validate:"required"`
	BusinessName        string        `json:"business_name" validate:"required"`
	LicenseType         string        `json:"license_type" validate:"required"`
	IssuingJurisdiction string        `json:"issuing_jurisdiction" validate:"required"`
	IssueDate           time.Time     `json:"issue_date" validate:"required"`
	Status              LicenseStatus `json:"status" validate:"required"`
	City                string        `json:"city,omitempty"`
	State               string        `json:"state,omitempty" validate:"omitempty,len=2"`
	ConfidenceScore     float64       `json:"confidence_score" validate:"gte=0,lte=100"`
	Grade               LeadGrade     `json:"grade,omitempty"`
	SourceName          string        `json:"source_name" validate:"required"`
	Jurisdiction        string        `json:"jurisdiction" validate:"required"`
	ExtractionTimestamp time.Time     `json:"extraction_timestamp" validate:"required"`
}

// ScoreSignals extracts the completeness signals used by the confidence scorer
func (l *BusinessLicense) ScoreSignals() ScoreSignals {
	return ScoreSignals{
		Complete: l.BusinessName != "" && l.LicenseType != "" && !l.IssueDate.IsZero(),
	}
}
