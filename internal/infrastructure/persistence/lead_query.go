package persistence

import (
	"github.com/leadgen/backend/internal/domain/lead"
	"gorm.io/gorm"
)

// gradeRankExpr orders rows best grade first; ties break on confidence
const gradeRankExpr = "CASE grade WHEN 'HIGH' THEN 3 WHEN 'MEDIUM' THEN 2 WHEN 'QUALIFIED' THEN 1 ELSE 0 END DESC, confidence_score DESC"

// gradesAtLeast expands a minimum grade into the set of acceptable grades
func gradesAtLeast(min lead.LeadGrade) []lead.LeadGrade {
	var out []lead.LeadGrade
	for _, g := range []lead.LeadGrade{lead.GradeHigh, lead.GradeMedium, lead.GradeQualified, lead.GradeStandard} {
		if g.Rank() >= min.Rank() {
			out = append(out, g)
		}
	}
	return out
}

// applyProspectFilter narrows a prospect query on the shared slice columns.
// Column names vary per table (borrower_state vs state, approval_date vs
// registration_date), so the caller passes them in.
func applyProspectFilter(query *gorm.DB, stateColumn, cityColumn, dateColumn string, filter lead.ProspectFilter) *gorm.DB {
	if !filter.Since.IsZero() {
		query = query.Where(dateColumn+" >= ?", filter.Since)
	}
	if len(filter.States) > 0 {
		query = query.Where(stateColumn+" IN ?", filter.States)
	}
	if len(filter.Cities) > 0 {
		query = query.Where(cityColumn+" IN ?", filter.Cities)
	}
	if filter.MinGrade != "" {
		query = query.Where("grade IN ?", gradesAtLeast(filter.MinGrade))
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	return query.Order(gradeRankExpr)
}
