package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/leadgen/backend/internal/domain/lead"
	"github.com/shopspring/decimal"
)

// BusinessEntityModel is the persistence model for one version of a business
// registration. The composite key (business_id, extraction_timestamp) makes
// re-extraction append a new version instead of updating in place; the table
// is range-partitioned on extraction_timestamp.
type BusinessEntityModel struct {
	BusinessID          uuid.UUID         `gorm:"type:uuid;primaryKey"`
	ExtractionTimestamp time.Time         `gorm:"type:timestamptz;primaryKey"`
	BusinessName        string            `gorm:"type:varchar(255);not null"`
	BusinessType        lead.BusinessType `gorm:"type:varchar(32);not null;index:idx_business_slice,priority:2"`
	NAICSCode           string            `gorm:"type:varchar(6)"`
	City                string            `gorm:"type:varchar(128);index:idx_business_slice,priority:3"`
	State               string            `gorm:"type:char(2);not null;index:idx_business_slice,priority:1"`
	RegistrationDate    time.Time         `gorm:"type:date;not null;index"`
	Phone               string            `gorm:"type:varchar(32)"`
	StreetAddress       string            `gorm:"type:varchar(255)"`
	Description         string            `gorm:"type:text"`
	ConfidenceScore     float64           `gorm:"type:numeric(5,2);not null"`
	Grade               lead.LeadGrade    `gorm:"type:varchar(16);not null;index"`
	SourceName          string            `gorm:"type:varchar(128);not null"`
	Jurisdiction        string            `gorm:"type:varchar(8);not null"`
	CreatedAt           time.Time         `gorm:"not null"`
}

// TableName returns the table name for GORM
func (BusinessEntityModel) TableName() string {
	return "business_entities"
}

// ToDomain converts the persistence model to a domain BusinessEntity
func (m *BusinessEntityModel) ToDomain() *lead.BusinessEntity {
	return &lead.BusinessEntity{
		BusinessID:          m.BusinessID,
		BusinessName:        m.BusinessName,
		BusinessType:        m.BusinessType,
		NAICSCode:           m.NAICSCode,
		City:                m.City,
		State:               m.State,
		RegistrationDate:    m.RegistrationDate,
		Phone:               m.Phone,
		StreetAddress:       m.StreetAddress,
		Description:         m.Description,
		ConfidenceScore:     m.ConfidenceScore,
		Grade:               m.Grade,
		SourceName:          m.SourceName,
		Jurisdiction:        m.Jurisdiction,
		ExtractionTimestamp: m.ExtractionTimestamp,
	}
}

// FromDomain populates the persistence model from a domain BusinessEntity
func (m *BusinessEntityModel) FromDomain(e *lead.BusinessEntity) {
	m.BusinessID = e.BusinessID
	m.ExtractionTimestamp = e.ExtractionTimestamp
	m.BusinessName = e.BusinessName
	m.BusinessType = e.BusinessType
	m.NAICSCode = e.NAICSCode
	m.City = e.City
	m.State = e.State
	m.RegistrationDate = e.RegistrationDate
	m.Phone = e.Phone
	m.StreetAddress = e.StreetAddress
	m.Description = e.Description
	m.ConfidenceScore = e.ConfidenceScore
	m.Grade = e.Grade
	m.SourceName = e.SourceName
	m.Jurisdiction = e.Jurisdiction
}

// LoanApprovalModel is the persistence model for one version of an SBA loan
// approval, range-partitioned on approval_date. The partition key is part of
// the primary key, so a logical version is (loan_id, extraction_timestamp,
// approval_date).
type LoanApprovalModel struct {
	LoanID              string           `gorm:"type:varchar(64);primaryKey"`
	ExtractionTimestamp time.Time        `gorm:"type:timestamptz;primaryKey;index"`
	BorrowerName        string           `gorm:"type:varchar(255);not null"`
	LoanAmount          decimal.Decimal  `gorm:"type:numeric(14,2);not null"`
	ApprovalDate        time.Time        `gorm:"type:date;primaryKey"`
	BorrowerCity        string           `gorm:"type:varchar(128)"`
	BorrowerState       string           `gorm:"type:char(2);not null;index:idx_loan_slice,priority:1"`
	FranchiseName       string           `gorm:"type:varchar(255)"`
	ProgramType         lead.ProgramType `gorm:"type:varchar(8);not null"`
	NAICSCode           string           `gorm:"type:varchar(6)"`
	ConfidenceScore     float64          `gorm:"type:numeric(5,2);not null"`
	Grade               lead.LeadGrade   `gorm:"type:varchar(16);not null;index:idx_loan_slice,priority:2"`
	SourceName          string           `gorm:"type:varchar(128);not null"`
	Jurisdiction        string           `gorm:"type:varchar(8);not null"`
	CreatedAt           time.Time        `gorm:"not null"`
}

// TableName returns the table name for GORM
func (LoanApprovalModel) TableName() string {
	return "sba_loan_approvals"
}

// ToDomain converts the persistence model to a domain SBALoanApproval
func (m *LoanApprovalModel) ToDomain() *lead.SBALoanApproval {
	return &lead.SBALoanApproval{
		LoanID:              m.LoanID,
		BorrowerName:        m.BorrowerName,
		LoanAmount:          m.LoanAmount,
		ApprovalDate:        m.ApprovalDate,
		BorrowerCity:        m.BorrowerCity,
		BorrowerState:       m.BorrowerState,
		FranchiseName:       m.FranchiseName,
		ProgramType:         m.ProgramType,
		NAICSCode:           m.NAICSCode,
		ConfidenceScore:     m.ConfidenceScore,
		Grade:               m.Grade,
		SourceName:          m.SourceName,
		Jurisdiction:        m.Jurisdiction,
		ExtractionTimestamp: m.ExtractionTimestamp,
	}
}

// FromDomain populates the persistence model from a domain SBALoanApproval
func (m *LoanApprovalModel) FromDomain(l *lead.SBALoanApproval) {
	m.LoanID = l.LoanID
	m.ExtractionTimestamp = l.ExtractionTimestamp
	m.BorrowerName = l.BorrowerName
	m.LoanAmount = l.LoanAmount
	m.ApprovalDate = l.ApprovalDate
	m.BorrowerCity = l.BorrowerCity
	m.BorrowerState = l.BorrowerState
	m.FranchiseName = l.FranchiseName
	m.ProgramType = l.ProgramType
	m.NAICSCode = l.NAICSCode
	m.ConfidenceScore = l.ConfidenceScore
	m.Grade = l.Grade
	m.SourceName = l.SourceName
	m.Jurisdiction = l.Jurisdiction
}

// LicenseModel is the persistence model for one version of a business
// license, range-partitioned on issue_date. As with loans the partition key
// joins the primary key.
type LicenseModel struct {
	LicenseID           string             `gorm:"type:varchar(64);primaryKey"`
	ExtractionTimestamp time.Time          `gorm:"type:timestamptz;primaryKey;index"`
	BusinessName        string             `gorm:"type:varchar(255);not null"`
	LicenseType         string             `gorm:"type:varchar(64);not null"`
	IssuingJurisdiction string             `gorm:"type:varchar(64);not null"`
	IssueDate           time.Time          `gorm:"type:date;primaryKey"`
	Status              lead.LicenseStatus `gorm:"type:varchar(16);not null;index"`
	City                string             `gorm:"type:varchar(128)"`
	State               string             `gorm:"type:char(2)"`
	ConfidenceScore     float64            `gorm:"type:numeric(5,2);not null"`
	Grade               lead.LeadGrade     `gorm:"type:varchar(16);not null"`
	SourceName          string             `gorm:"type:varchar(128);not null"`
	Jurisdiction        string             `gorm:"type:varchar(8);not null"`
	CreatedAt           time.Time          `gorm:"not null"`
}

// TableName returns the table name for GORM
func (LicenseModel) TableName() string {
	return "business_licenses"
}

// ToDomain converts the persistence model to a domain BusinessLicense
func (m *LicenseModel) ToDomain() *lead.BusinessLicense {
	return &lead.BusinessLicense{
		LicenseID:           m.LicenseID,
		BusinessName:        m.BusinessName,
		LicenseType:         m.LicenseType,
		IssuingJurisdiction: m.IssuingJurisdiction,
		IssueDate:           m.IssueDate,
		Status:              m.Status,
		City:                m.City,
		State:               m.State,
		ConfidenceScore:     m.ConfidenceScore,
		Grade:               m.Grade,
		SourceName:          m.SourceName,
		Jurisdiction:        m.Jurisdiction,
		ExtractionTimestamp: m.ExtractionTimestamp,
	}
}

// FromDomain populates the persistence model from a domain BusinessLicense
func (m *LicenseModel) FromDomain(l *lead.BusinessLicense) {
	m.LicenseID = l.LicenseID
	m.ExtractionTimestamp = l.ExtractionTimestamp
	m.BusinessName = l.BusinessName
	m.LicenseType = l.LicenseType
	m.IssuingJurisdiction = l.IssuingJurisdiction
	m.IssueDate = l.IssueDate
	m.Status = l.Status
	m.City = l.City
	m.State = l.State
	m.ConfidenceScore = l.ConfidenceScore
	m.Grade = l.Grade
	m.SourceName = l.SourceName
	m.Jurisdiction = l.Jurisdiction
}

// CollectionSummaryModel is the persistence model for per-source run audit rows
type CollectionSummaryModel struct {
	ID               uint             `gorm:"primaryKey;autoIncrement"`
	SourceName       string           `gorm:"type:varchar(128);not null;index"`
	Jurisdiction     string           `gorm:"type:varchar(8);not null;index"`
	State            lead.SourceState `gorm:"type:varchar(16);not null"`
	RecordsFetched   int              `gorm:"not null;default:0"`
	RecordsValidated int              `gorm:"not null;default:0"`
	RecordsRejected  int              `gorm:"not null;default:0"`
	FallbackUsed     bool             `gorm:"not null;default:false"`
	Partial          bool             `gorm:"not null;default:false"`
	Error            string           `gorm:"type:text"`
	StartedAt        time.Time        `gorm:"type:timestamptz;not null;index"`
	CompletedAt      time.Time        `gorm:"type:timestamptz;not null"`
}

// TableName returns the table name for GORM
func (CollectionSummaryModel) TableName() string {
	return "collection_summaries"
}

// ToDomain converts the persistence model to a domain CollectionSummary
func (m *CollectionSummaryModel) ToDomain() *lead.CollectionSummary {
	return &lead.CollectionSummary{
		SourceName:       m.SourceName,
		Jurisdiction:     m.Jurisdiction,
		State:            m.State,
		RecordsFetched:   m.RecordsFetched,
		RecordsValidated: m.RecordsValidated,
		RecordsRejected:  m.RecordsRejected,
		FallbackUsed:     m.FallbackUsed,
		Partial:          m.Partial,
		Error:            m.Error,
		StartedAt:        m.StartedAt,
		CompletedAt:      m.CompletedAt,
	}
}

// FromDomain populates the persistence model from a domain CollectionSummary
func (m *CollectionSummaryModel) FromDomain(s *lead.CollectionSummary) {
	m.SourceName = s.SourceName
	m.Jurisdiction = s.Jurisdiction
	m.State = s.State
	m.RecordsFetched = s.RecordsFetched
	m.RecordsValidated = s.RecordsValidated
	m.RecordsRejected = s.RecordsRejected
	m.FallbackUsed = s.FallbackUsed
	m.Partial = s.Partial
	m.Error = s.Error
	m.StartedAt = s.StartedAt
	m.CompletedAt = s.CompletedAt
}
