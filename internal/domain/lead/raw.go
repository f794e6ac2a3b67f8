package lead

import "time"

// RecordKind identifies which table a raw record targets
type RecordKind string

const (
	KindBusiness RecordKind = "business"
	KindLoan     RecordKind = "loan"
	KindLicense  RecordKind = "license"
)

// IsValid checks if the record kind is valid
func (k RecordKind) IsValid() bool {
	switch k {
	case KindBusiness, KindLoan, KindLicense:
		return true
	}
	return false
}

// Window is the trailing time range over which new records are requested
type Window struct {
	Start time.Time
	End   time.Time
}

// TrailingWindow builds a window covering the last daysBack days up to now
func TrailingWindow(daysBack int, now time.Time) Window {
	return Window{
		Start: now.AddDate(0, 0, -daysBack),
		End:   now,
	}
}

// Days returns the window length in whole days
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours() / 24)
}

// Contains reports whether t falls inside the window
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// RawRecord is the untyped shape a collector yields before validation.
// Fields carries the source's column values keyed by canonical field name;
// NaturalKey is the source-side registration key identity derivation uses.
type RawRecord struct {
	Kind         RecordKind
	SourceName   string
	Jurisdiction string
	NaturalKey   string
	Fields       map[string]string
	FetchedAt    time.Time
	Synthetic    bool
}

// Field returns the named field value, empty string when absent
func (r RawRecord) Field(name string) string {
	return r.Fields[name]
}

// RejectionReason describes why validation dropped a record
type RejectionReason struct {
	Field    string `json:"field"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// ValidatedRecord is the output of validation and scoring. Exactly one of
// Business, Loan or License is set, matching Kind.
type ValidatedRecord struct {
	Kind     RecordKind
	Business *BusinessEntity
	Loan     *SBALoanApproval
	License  *BusinessLicense
}

// ID returns the record's logical identity for in-batch deduplication
func (v *ValidatedRecord) ID() string {
	switch v.Kind {
	case KindBusiness:
		return v.Business.BusinessID.String()
	case KindLoan:
		return v.Loan.LoanID
	case KindLicense:
		return v.License.LicenseID
	}
	return ""
}

// Grade returns the assigned lead grade
func (v *ValidatedRecord) Grade() LeadGrade {
	switch v.Kind {
	case KindBusiness:
		return v.Business.Grade
	case KindLoan:
		return v.Loan.Grade
	case KindLicense:
		return v.License.Grade
	}
	return GradeStandard
}
