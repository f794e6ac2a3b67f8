package lead

import (
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// LeadGrade represents the qualitative outreach tier of a validated record
type LeadGrade string

const (
	GradeHigh      LeadGrade = "HIGH"
	GradeMedium    LeadGrade = "MEDIUM"
	GradeQualified LeadGrade = "QUALIFIED"
	GradeStandard  LeadGrade = "STANDARD"
)

// IsValid checks if the grade is valid
func (g LeadGrade) IsValid() bool {
	switch g {
	case GradeHigh, GradeMedium, GradeQualified, GradeStandard:
		return true
	}
	return false
}

// Rank returns the ordering of the grade, higher is better
func (g LeadGrade) Rank() int {
	switch g {
	case GradeHigh:
		return 3
	case GradeMedium:
		return 2
	case GradeQualified:
		return 1
	default:
		return 0
	}
}

// Confidence score signal weights. Additive, clipped to [0, 100].
const (
	scoreBase          = 50.0
	scoreContactBonus  = 20.0
	scoreAddressBonus  = 15.0
	scoreNAICSBonus    = 10.0
	scoreDescBonus     = 5.0
	scoreMax           = 100.0
	highScoreThreshold = 90.0
	mediumThreshold    = 70.0
	qualifiedThreshold = 50.0
)

// Loan amount thresholds for grade assignment
var (
	highLoanAmount   = decimal.NewFromInt(200000)
	mediumLoanAmount = decimal.NewFromInt(100000)
)

var naicsPattern = regexp.MustCompile(`^\d{2,6}$`)

// ScoreSignals carries the field-completeness signals a record exposes to the
// confidence scorer. Complete must hold for the base score to apply.
type ScoreSignals struct {
	Complete      bool
	Phone         string
	StreetAddress string
	NAICSCode     string
	Description   string
}

// Score computes the additive confidence score for a record. The same signals
// always produce the same score.
func Score(sig ScoreSignals) float64 {
	if !sig.Complete {
		return 0
	}
	score := scoreBase
	if sig.Phone != "" || sig.StreetAddress != "" {
		score += scoreContactBonus
	}
	if sig.StreetAddress != "" {
		score += scoreAddressBonus
	}
	if naicsPattern.MatchString(sig.NAICSCode) {
		score += scoreNAICSBonus
	}
	if sig.Description != "" {
		score += scoreDescBonus
	}
	if score > scoreMax {
		score = scoreMax
	}
	return score
}

// GradeContext carries the scored fields grade assignment depends on.
// LoanAmount is nil for non-loan records; EventDate is the registration,
// approval or issue date used for the window check.
type GradeContext struct {
	Score         float64
	LoanAmount    *decimal.Decimal
	FranchiseName string
	EventDate     time.Time
	Window        Window
}

// GradeFor assigns the lead grade for a scored record. Rules are evaluated in
// strict precedence order: loan-amount rules are checked before generic score
// rules, and higher tiers before lower ones, so a record qualifying for several
// tiers always lands on the best one.
func GradeFor(ctx GradeContext) LeadGrade {
	if ctx.LoanAmount != nil && ctx.LoanAmount.GreaterThan(highLoanAmount) {
		return GradeHigh
	}
	if ctx.Score >= highScoreThreshold && ctx.FranchiseName != "" {
		return GradeHigh
	}
	if ctx.LoanAmount != nil && ctx.LoanAmount.GreaterThan(mediumLoanAmount) {
		return GradeMedium
	}
	if ctx.Score >= mediumThreshold {
		return GradeMedium
	}
	if ctx.Score >= qualifiedThreshold && ctx.Window.Contains(ctx.EventDate) {
		return GradeQualified
	}
	return GradeStandard
}
