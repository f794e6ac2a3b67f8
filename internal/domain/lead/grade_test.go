package lead

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	t.Run("structurally complete record scores base 50", func(t *testing.T) {
		score := Score(ScoreSignals{Complete: true})
		assert.Equal(t, 50.0, score)
	})

	t.Run("incomplete record scores zero", func(t *testing.T) {
		score := Score(ScoreSignals{Complete: false, Phone: "555-0100", NAICSCode: "7225"})
		assert.Equal(t, 0.0, score)
	})

	t.Run("address phone and naics without description scores 95", func(t *testing.T) {
		score := Score(ScoreSignals{
			Complete:      true,
			Phone:         "555-0100",
			StreetAddress: "100 Main St",
			NAICSCode:     "722511",
		})
		assert.Equal(t, 95.0, score)
	})

	t.Run("all signals clip to 100", func(t *testing.T) {
		score := Score(ScoreSignals{
			Complete:      true,
			Phone:         "555-0100",
			StreetAddress: "100 Main St",
			NAICSCode:     "722511",
			Description:   "Neighborhood taqueria",
		})
		assert.Equal(t, 100.0, score)
	})

	t.Run("malformed naics earns no bonus", func(t *testing.T) {
		assert.Equal(t, 50.0, Score(ScoreSignals{Complete: true, NAICSCode: "72251A"}))
		assert.Equal(t, 50.0, Score(ScoreSignals{Complete: true, NAICSCode: "7"}))
		assert.Equal(t, 50.0, Score(ScoreSignals{Complete: true, NAICSCode: "7225118"}))
	})

	t.Run("scoring is deterministic across repeated runs", func(t *testing.T) {
		sig := ScoreSignals{Complete: true, Phone: "555-0100", NAICSCode: "7225"}
		first := Score(sig)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, Score(sig))
		}
	})
}

func TestGradeFor(t *testing.T) {
	now := time.Now()
	window := TrailingWindow(30, now)

	t.Run("loan over 200k is HIGH regardless of score", func(t *testing.T) {
		amount := decimal.NewFromInt(250000)
		grade := GradeFor(GradeContext{
			Score:      50,
			LoanAmount: &amount,
			EventDate:  now.AddDate(0, 0, -5),
			Window:     window,
		})
		assert.Equal(t, GradeHigh, grade)
	})

	t.Run("score 95 with franchise is HIGH", func(t *testing.T) {
		grade := GradeFor(GradeContext{Score: 95, FranchiseName: "Subway", Window: window})
		assert.Equal(t, GradeHigh, grade)
	})

	t.Run("score 95 without franchise is MEDIUM", func(t *testing.T) {
		grade := GradeFor(GradeContext{Score: 95, Window: window})
		assert.Equal(t, GradeMedium, grade)
	})

	t.Run("loan over 100k is MEDIUM even with low score", func(t *testing.T) {
		amount := decimal.NewFromInt(150000)
		grade := GradeFor(GradeContext{Score: 10, LoanAmount: &amount, Window: window})
		assert.Equal(t, GradeMedium, grade)
	})

	t.Run("score 50 inside window is QUALIFIED", func(t *testing.T) {
		grade := GradeFor(GradeContext{
			Score:     50,
			EventDate: now.AddDate(0, 0, -10),
			Window:    window,
		})
		assert.Equal(t, GradeQualified, grade)
	})

	t.Run("score 50 outside window is STANDARD", func(t *testing.T) {
		grade := GradeFor(GradeContext{
			Score:     50,
			EventDate: now.AddDate(0, 0, -60),
			Window:    window,
		})
		assert.Equal(t, GradeStandard, grade)
	})

	t.Run("loan amount rules take precedence over score rules", func(t *testing.T) {
		// High score plus small loan: the loan rule for HIGH does not match,
		// but the franchise score rule does, so the record still grades HIGH.
		amount := decimal.NewFromInt(50000)
		grade := GradeFor(GradeContext{
			Score:         95,
			LoanAmount:    &amount,
			FranchiseName: "Anytime Fitness",
			Window:        window,
		})
		assert.Equal(t, GradeHigh, grade)
	})

	t.Run("exactly 200k is not HIGH", func(t *testing.T) {
		amount := decimal.NewFromInt(200000)
		grade := GradeFor(GradeContext{Score: 0, LoanAmount: &amount, Window: window})
		assert.Equal(t, GradeMedium, grade)
	})
}

func TestLeadGradeRank(t *testing.T) {
	assert.Greater(t, GradeHigh.Rank(), GradeMedium.Rank())
	assert.Greater(t, GradeMedium.Rank(), GradeQualified.Rank())
	assert.Greater(t, GradeQualified.Rank(), GradeStandard.Rank())
}
