// Package validate implements the record validation and confidence-scoring
// engine that sits between collectors and the storage gateway.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/leadgen/backend/internal/domain/lead"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

var naicsPattern = regexp.MustCompile(`^\d{2,6}$`)

// Validator validates raw records and attaches confidence score and grade.
// Validation is all-or-nothing per record: any failed check produces a
// RejectionReason and the record is dropped, never partially accepted.
type Validator struct {
	check *validator.Validate
	now   func() time.Time
}

// Option configures a Validator
type Option func(*Validator)

// WithClock overrides the time source, used by tests
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

// New creates a Validator
func New(opts ...Option) *Validator {
	v := &Validator{
		check: validator.New(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks one raw record and, when it passes, returns the typed,
// scored and graded record. The second return value carries the rejection
// reason when the record is dropped. Identical input always yields an
// identical score and grade.
func (v *Validator) Validate(raw lead.RawRecord, window lead.Window) (*lead.ValidatedRecord, *lead.RejectionReason) {
	switch raw.Kind {
	case lead.KindBusiness:
		return v.validateBusiness(raw, window)
	case lead.KindLoan:
		return v.validateLoan(raw, window)
	case lead.KindLicense:
		return v.validateLicense(raw, window)
	default:
		return nil, reject("kind", "one of business/loan/license", string(raw.Kind))
	}
}

func (v *Validator) validateBusiness(raw lead.RawRecord, window lead.Window) (*lead.ValidatedRecord, *lead.RejectionReason) {
	name := strings.TrimSpace(raw.Field("business_name"))
	if name == "" {
		return nil, reject("business_name", "non-empty", "")
	}

	bt := lead.BusinessType(strings.ToLower(strings.TrimSpace(raw.Field("business_type"))))
	if !bt.IsValid() {
		return nil, reject("business_type", "value in fixed taxonomy", raw.Field("business_type"))
	}

	city := strings.TrimSpace(raw.Field("city"))
	if city == "" {
		return nil, reject("city", "non-empty", "")
	}

	state := strings.ToUpper(strings.TrimSpace(raw.Field("state")))
	if !IsValidState(state) {
		return nil, reject("state", "valid 2-letter state code", raw.Field("state"))
	}

	regDate, rej := v.parsePastDate("registration_date", raw.Field("registration_date"))
	if rej != nil {
		return nil, rej
	}

	naics := strings.TrimSpace(raw.Field("naics_code"))
	if naics != "" && !naicsPattern.MatchString(naics) {
		return nil, reject("naics_code", "2-6 digit code", naics)
	}

	if raw.NaturalKey == "" {
		return nil, reject("natural_key", "non-empty registration key", "")
	}

	entity := &lead.BusinessEntity{
		BusinessID:          lead.NewBusinessID(raw.SourceName, raw.Jurisdiction, raw.NaturalKey),
		BusinessName:        name,
		BusinessType:        bt,
		NAICSCode:           naics,
		City:                city,
		State:               state,
		RegistrationDate:    regDate,
		Phone:               strings.TrimSpace(raw.Field("phone")),
		StreetAddress:       strings.TrimSpace(raw.Field("street_address")),
		Description:         strings.TrimSpace(raw.Field("description")),
		SourceName:          raw.SourceName,
		Jurisdiction:        raw.Jurisdiction,
		ExtractionTimestamp: raw.FetchedAt,
	}

	entity.ConfidenceScore = lead.Score(entity.ScoreSignals())
	entity.Grade = lead.GradeFor(lead.GradeContext{
		Score:         entity.ConfidenceScore,
		FranchiseName: strings.TrimSpace(raw.Field("franchise_name")),
		EventDate:     entity.RegistrationDate,
		Window:        window,
	})

	if rej := v.structCheck(entity); rej != nil {
		return nil, rej
	}
	return &lead.ValidatedRecord{Kind: lead.KindBusiness, Business: entity}, nil
}

func (v *Validator) validateLoan(raw lead.RawRecord, window lead.Window) (*lead.ValidatedRecord, *lead.RejectionReason) {
	loanID := strings.TrimSpace(raw.Field("loan_id"))
	if loanID == "" {
		return nil, reject("loan_id", "non-empty", "")
	}

	borrower := strings.TrimSpace(raw.Field("borrower_name"))
	if borrower == "" {
		return nil, reject("borrower_name", "non-empty", "")
	}

	rawAmount := strings.TrimSpace(raw.Field("loan_amount"))
	if rawAmount == "" {
		return nil, reject("loan_amount", "positive currency amount", "")
	}
	amount, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimPrefix(rawAmount, "$"), ",", ""))
	if err != nil {
		return nil, reject("loan_amount", "positive currency amount", rawAmount)
	}
	if !amount.IsPositive() {
		return nil, reject("loan_amount", "> 0", rawAmount)
	}

	approval, rej := v.parsePastDate("approval_date", raw.Field("approval_date"))
	if rej != nil {
		return nil, rej
	}

	state := strings.ToUpper(strings.TrimSpace(raw.Field("borrower_state")))
	if !IsValidState(state) {
		return nil, reject("borrower_state", "valid 2-letter state code", raw.Field("borrower_state"))
	}

	program := lead.ProgramType(strings.ToLower(strings.TrimSpace(raw.Field("program_type"))))
	if program == "" {
		program = lead.ProgramOther
	}
	if !program.IsValid() {
		return nil, reject("program_type", "7a, 504 or other", raw.Field("program_type"))
	}

	loan := &lead.SBALoanApproval{
		LoanID:              loanID,
		BorrowerName:        borrower,
		LoanAmount:          amount,
		ApprovalDate:        approval,
		BorrowerCity:        strings.TrimSpace(raw.Field("borrower_city")),
		BorrowerState:       state,
		FranchiseName:       strings.TrimSpace(raw.Field("franchise_name")),
		ProgramType:         program,
		NAICSCode:           strings.TrimSpace(raw.Field("naics_code")),
		SourceName:          raw.SourceName,
		Jurisdiction:        raw.Jurisdiction,
		ExtractionTimestamp: raw.FetchedAt,
	}

	loan.ConfidenceScore = lead.Score(loan.ScoreSignals())
	loan.Grade = lead.GradeFor(lead.GradeContext{
		Score:         loan.ConfidenceScore,
		LoanAmount:    &loan.LoanAmount,
		FranchiseName: loan.FranchiseName,
		EventDate:     loan.ApprovalDate,
		Window:        window,
	})

	if rej := v.structCheck(loan); rej != nil {
		return nil, rej
	}
	return &lead.ValidatedRecord{Kind: lead.KindLoan, Loan: loan}, nil
}

func (v *Validator) validateLicense(raw lead.RawRecord, window lead.Window) (*lead.ValidatedRecord, *lead.RejectionReason) {
	licenseID := strings.TrimSpace(raw.Field("license_id"))
	if licenseID == "" {
		return nil, reject("license_id", "non-empty", "")
	}

	name := strings.TrimSpace(raw.Field("business_name"))
	if name == "" {
		return nil, reject("business_name", "non-empty", "")
	}

	licType := strings.TrimSpace(raw.Field("license_type"))
	if licType == "" {
		return nil, reject("license_type", "non-empty", "")
	}

	issuer := strings.TrimSpace(raw.Field("issuing_jurisdiction"))
	if issuer == "" {
		issuer = raw.Jurisdiction
	}

	issued, rej := v.parsePastDate("issue_date", raw.Field("issue_date"))
	if rej != nil {
		return nil, rej
	}

	status := lead.LicenseStatus(strings.ToLower(strings.TrimSpace(raw.Field("status"))))
	if !status.IsValid() {
		return nil, reject("status", "active, expired or revoked", raw.Field("status"))
	}

	state := strings.ToUpper(strings.TrimSpace(raw.Field("state")))
	if state != "" && !IsValidState(state) {
		return nil, reject("state", "valid 2-letter state code", raw.Field("state"))
	}

	license := &lead.BusinessLicense{
		LicenseID:           licenseID,
		BusinessName:        name,
		LicenseType:         licType,
		IssuingJurisdiction: issuer,
		IssueDate:           issued,
		Status:              status,
		City:                strings.TrimSpace(raw.Field("city")),
		State:               state,
		SourceName:          raw.SourceName,
		Jurisdiction:        raw.Jurisdiction,
		ExtractionTimestamp: raw.FetchedAt,
	}

	license.ConfidenceScore = lead.Score(license.ScoreSignals())
	license.Grade = lead.GradeFor(lead.GradeContext{
		Score:     license.ConfidenceScore,
		EventDate: license.IssueDate,
		Window:    window,
	})

	if rej := v.structCheck(license); rej != nil {
		return nil, rej
	}
	return &lead.ValidatedRecord{Kind: lead.KindLicense, License: license}, nil
}

// parsePastDate parses a calendar date and rejects future-dated values
func (v *Validator) parsePastDate(field, value string) (time.Time, *lead.RejectionReason) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, reject(field, "date in "+dateLayout+" format", "")
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, reject(field, "date in "+dateLayout+" format", value)
	}
	if parsed.After(v.now()) {
		return time.Time{}, reject(field, "date not in the future", value)
	}
	return parsed, nil
}

// structCheck runs the declarative struct tags as a final invariant guard
func (v *Validator) structCheck(record any) *lead.RejectionReason {
	err := v.check.Struct(record)
	if err == nil {
		return nil
	}
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		return reject(errs[0].Field(), errs[0].Tag(), fmt.Sprintf("%v", errs[0].Value()))
	}
	return reject("record", "valid struct", err.Error())
}

func reject(field, expected, actual string) *lead.RejectionReason {
	return &lead.RejectionReason{Field: field, Expected: expected, Actual: actual}
}
