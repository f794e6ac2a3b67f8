package validate

import (
	"testing"
	"time"

	"github.com/leadgen/backend/internal/domain/lead"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

func newTestValidator() *Validator {
	return New(WithClock(func() time.Time { return testNow }))
}

func testWindow() lead.Window {
	return lead.TrailingWindow(30, testNow)
}

func businessRaw(overrides map[string]string) lead.RawRecord {
	fields := map[string]string{
		"business_name":     "Sunrise Tacos LLC",
		"business_type":     "restaurant",
		"city":              "Miami",
		"state":             "FL",
		"registration_date": "2026-08-01",
	}
	for k, v := range overrides {
		fields[k] = v
	}
	return lead.RawRecord{
		Kind:         lead.KindBusiness,
		SourceName:   "fl_sunbiz",
		Jurisdiction: "FL",
		NaturalKey:   "L2600012345",
		Fields:       fields,
		FetchedAt:    testNow,
	}
}

func loanRaw(overrides map[string]string) lead.RawRecord {
	fields := map[string]string{
		"loan_id":        "SBA-7A-0001",
		"borrower_name":  "Sunrise Tacos LLC",
		"loan_amount":    "150000",
		"approval_date":  "2026-08-01",
		"borrower_city":  "Miami",
		"borrower_state": "FL",
		"program_type":   "7a",
	}
	for k, v := range overrides {
		fields[k] = v
	}
	return lead.RawRecord{
		Kind:         lead.KindLoan,
		SourceName:   "sba_7a",
		Jurisdiction: "US",
		NaturalKey:   "SBA-7A-0001",
		Fields:       fields,
		FetchedAt:    testNow,
	}
}

func TestValidateBusiness(t *testing.T) {
	v := newTestValidator()

	t.Run("valid record is scored and graded", func(t *testing.T) {
		rec, rej := v.Validate(businessRaw(nil), testWindow())
		require.Nil(t, rej)
		require.Equal(t, lead.KindBusiness, rec.Kind)

		assert.Equal(t, 50.0, rec.Business.ConfidenceScore)
		// Score 50, registered inside the window
		assert.Equal(t, lead.GradeQualified, rec.Business.Grade)
		assert.Equal(t, lead.NewBusinessID("fl_sunbiz", "FL", "L2600012345"), rec.Business.BusinessID)
	})

	t.Run("validation and scoring are deterministic", func(t *testing.T) {
		raw := businessRaw(map[string]string{"phone": "305-555-0100", "naics_code": "722511"})
		first, rej := v.Validate(raw, testWindow())
		require.Nil(t, rej)
		for i := 0; i < 5; i++ {
			again, rej := v.Validate(raw, testWindow())
			require.Nil(t, rej)
			assert.Equal(t, first.Business.ConfidenceScore, again.Business.ConfidenceScore)
			assert.Equal(t, first.Business.Grade, again.Business.Grade)
			assert.Equal(t, first.Business.BusinessID, again.Business.BusinessID)
		}
	})

	t.Run("missing name is rejected with reason", func(t *testing.T) {
		_, rej := v.Validate(businessRaw(map[string]string{"business_name": ""}), testWindow())
		require.NotNil(t, rej)
		assert.Equal(t, "business_name", rej.Field)
	})

	t.Run("type outside taxonomy is rejected", func(t *testing.T) {
		_, rej := v.Validate(businessRaw(map[string]string{"business_type": "bakery"}), testWindow())
		require.NotNil(t, rej)
		assert.Equal(t, "business_type", rej.Field)
		assert.Equal(t, "bakery", rej.Actual)
	})

	t.Run("bad state code is rejected", func(t *testing.T) {
		_, rej := v.Validate(businessRaw(map[string]string{"state": "ZZ"}), testWindow())
		require.NotNil(t, rej)
		assert.Equal(t, "state", rej.Field)
	})

	t.Run("future registration date is rejected", func(t *testing.T) {
		_, rej := v.Validate(businessRaw(map[string]string{"registration_date": "2027-01-01"}), testWindow())
		require.NotNil(t, rej)
		assert.Equal(t, "registration_date", rej.Field)
		assert.Equal(t, "date not in the future", rej.Expected)
	})

	t.Run("malformed naics is rejected", func(t *testing.T) {
		_, rej := v.Validate(businessRaw(map[string]string{"naics_code": "72ABC"}), testWindow())
		require.NotNil(t, rej)
		assert.Equal(t, "naics_code", rej.Field)
	})

	t.Run("score 95 grades HIGH only with a franchise name", func(t *testing.T) {
		enriched := map[string]string{
			"phone":          "305-555-0100",
			"street_address": "100 Main St",
			"naics_code":     "722511",
		}
		rec, rej := v.Validate(businessRaw(enriched), testWindow())
		require.Nil(t, rej)
		assert.Equal(t, 95.0, rec.Business.ConfidenceScore)
		assert.Equal(t, lead.GradeMedium, rec.Business.Grade)

		enriched["franchise_name"] = "Subway"
		rec, rej = v.Validate(businessRaw(enriched), testWindow())
		require.Nil(t, rej)
		assert.Equal(t, lead.GradeHigh, rec.Business.Grade)
	})

	t.Run("state is normalized to upper case", func(t *testing.T) {
		rec, rej := v.Validate(businessRaw(map[string]string{"state": "fl"}), testWindow())
		require.Nil(t, rej)
		assert.Equal(t, "FL", rec.Business.State)
	})
}

func TestValidateLoan(t *testing.T) {
	v := newTestValidator()

	t.Run("loan over 200k grades HIGH regardless of score", func(t *testing.T) {
		rec, rej := v.Validate(loanRaw(map[string]string{"loan_amount": "250000"}), testWindow())
		require.Nil(t, rej)
		assert.Equal(t, lead.GradeHigh, rec.Loan.Grade)
	})

	t.Run("loan over 100k grades MEDIUM", func(t *testing.T) {
		rec, rej := v.Validate(loanRaw(nil), testWindow())
		require.Nil(t, rej)
		assert.Equal(t, lead.GradeMedium, rec.Loan.Grade)
	})

	t.Run("currency formatting is tolerated", func(t *testing.T) {
		rec, rej := v.Validate(loanRaw(map[string]string{"loan_amount": "$1,250,000.00"}), testWindow())
		require.Nil(t, rej)
		assert.Equal(t, "1250000", rec.Loan.LoanAmount.Truncate(0).String())
	})

	t.Run("zero amount is rejected never coerced", func(t *testing.T) {
		_, rej := v.Validate(loanRaw(map[string]string{"loan_amount": "0"}), testWindow())
		require.NotNil(t, rej)
		assert.Equal(t, "loan_amount", rej.Field)
		assert.Equal(t, "> 0", rej.Expected)
	})

	t.Run("negative amount is rejected", func(t *testing.T) {
		_, rej := v.Validate(loanRaw(map[string]string{"loan_amount": "-500"}), testWindow())
		require.NotNil(t, rej)
		assert.Equal(t, "loan_amount", rej.Field)
	})

	t.Run("missing amount is rejected with reason", func(t *testing.T) {
		_, rej := v.Validate(loanRaw(map[string]string{"loan_amount": ""}), testWindow())
		require.NotNil(t, rej)
		assert.Equal(t, "loan_amount", rej.Field)
	})

	t.Run("missing approval date is rejected", func(t *testing.T) {
		_, rej := v.Validate(loanRaw(map[string]string{"approval_date": ""}), testWindow())
		require.NotNil(t, rej)
		assert.Equal(t, "approval_date", rej.Field)
	})

	t.Run("empty program type defaults to other", func(t *testing.T) {
		rec, rej := v.Validate(loanRaw(map[string]string{"program_type": ""}), testWindow())
		require.Nil(t, rej)
		assert.Equal(t, lead.ProgramOther, rec.Loan.ProgramType)
	})
}

func TestValidateLicense(t *testing.T) {
	v := newTestValidator()

	licenseRaw := func(overrides map[string]string) lead.RawRecord {
		fields := map[string]string{
			"license_id":           "LIC-9000",
			"business_name":        "Sunrise Tacos LLC",
			"license_type":         "food_service",
			"issuing_jurisdiction": "Miami-Dade",
			"issue_date":           "2026-08-01",
			"status":               "active",
		}
		for k, v := range overrides {
			fields[k] = v
		}
		return lead.RawRecord{
			Kind:         lead.KindLicense,
			SourceName:   "fl_licenses",
			Jurisdiction: "FL",
			NaturalKey:   "LIC-9000",
			Fields:       fields,
			FetchedAt:    testNow,
		}
	}

	t.Run("valid license passes", func(t *testing.T) {
		rec, rej := v.Validate(licenseRaw(nil), testWindow())
		require.Nil(t, rej)
		assert.Equal(t, lead.LicenseStatusActive, rec.License.Status)
	})

	t.Run("unknown status is rejected", func(t *testing.T) {
		_, rej := v.Validate(licenseRaw(map[string]string{"status": "suspended"}), testWindow())
		require.NotNil(t, rej)
		assert.Equal(t, "status", rej.Field)
	})

	t.Run("issuing jurisdiction falls back to source jurisdiction", func(t *testing.T) {
		rec, rej := v.Validate(licenseRaw(map[string]string{"issuing_jurisdiction": ""}), testWindow())
		require.Nil(t, rej)
		assert.Equal(t, "FL", rec.License.IssuingJurisdiction)
	})
}

func TestValidateUnknownKind(t *testing.T) {
	v := newTestValidator()
	_, rej := v.Validate(lead.RawRecord{Kind: "unknown"}, testWindow())
	require.NotNil(t, rej)
	assert.Equal(t, "kind", rej.Field)
}
