// Package lead contains the domain model for aggregated business-registration,
// loan and license records and the contracts the collection pipeline is built on.
package lead

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// BusinessType represents the fixed business taxonomy
type BusinessType string

const (
	BusinessTypeRestaurant      BusinessType = "restaurant"
	BusinessTypeRetail          BusinessType = "retail"
	BusinessTypeFitness         BusinessType = "fitness"
	BusinessTypePersonalService BusinessType = "personal_service"
	BusinessTypeProfessional    BusinessType = "professional"
	BusinessTypeFranchise       BusinessType = "franchise"
)

// IsValid checks if the business type is within the taxonomy
func (t BusinessType) IsValid() bool {
	switch t {
	case BusinessTypeRestaurant, BusinessTypeRetail, BusinessTypeFitness,
		BusinessTypePersonalService, BusinessTypeProfessional, BusinessTypeFranchise:
		return true
	}
	return false
}

// AllBusinessTypes returns every type in the taxonomy
func AllBusinessTypes() []BusinessType {
	return []BusinessType{
		BusinessTypeRestaurant,
		BusinessTypeRetail,
		BusinessTypeFitness,
		BusinessTypePersonalService,
		BusinessTypeProfessional,
		BusinessTypeFranchise,
	}
}

// businessIDNamespace is the fixed namespace for deterministic business IDs.
// Changing it invalidates every stored business_id, so it never changes.
var businessIDNamespace = uuid.MustParse("8f6a1c2e-94d3-4f7b-ae52-0cb1d1a79f64")

// NewBusinessID derives the stable identity for a registration. The same
// (source, jurisdiction, registration key) triple always resolves to the same
// ID so that re-collection is idempotent.
func NewBusinessID(sourceName, jurisdiction, registrationKey string) uuid.UUID {
	key := strings.ToLower(strings.TrimSpace(sourceName)) + "|" +
		strings.ToLower(strings.TrimSpace(jurisdiction)) + "|" +
		strings.TrimSpace(registrationKey)
	return uuid.NewSHA1(businessIDNamespace, []byte(key))
}

// BusinessEntity represents one registered business observed at a source
type BusinessEntity struct {
	BusinessID          uuid.UUID    `json:"business_id" validate:"required"`
	BusinessName        string       `json:"business_name" validate:"required"`
	BusinessType        BusinessType `json:"business_type" validate:"required"`
	NAICSCode           string       `json:"naics_code,omitempty" validate:"omitempty,numeric,min=2,max=6"`
	City                string       `json:"city" validate:"required"`
	State               string       `json:"state" validate:"required,len=2"`
	RegistrationDate    time.Time    `json:"registration_date" validate:"required"`
	Phone               string       `json:"phone,omitempty"`
	StreetAddress       string       `json:"street_address,omitempty"`
	Description         string       `json:"description,omitempty"`
	ConfidenceScore     float64      `json:"confidence_score" validate:"gte=0,lte=100"`
	Grade               LeadGrade    `json:"grade,omitempty"`
	SourceName          string       `json:"source_name" validate:"required"`
	Jurisdiction        string       `json:"jurisdiction" validate:"required"`
	ExtractionTimestamp time.Time    `json:"extraction_timestamp" validate:"required"`
}

// ScoreSignals extracts the completeness signals used by the confidence scorer
func (b *BusinessEntity) ScoreSignals() ScoreSignals {
	return ScoreSignals{
		Complete:      b.BusinessName != "" && b.City != "" && b.State != "" && !b.RegistrationDate.IsZero(),
		Phone:         b.Phone,
		StreetAddress: b.StreetAddress,
		NAICSCode:     b.NAICSCode,
		Description:   b.Description,
	}
}
