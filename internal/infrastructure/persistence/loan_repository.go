package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/leadgen/backend/internal/domain/lead"
	"github.com/leadgen/backend/internal/domain/shared"
	"github.com/leadgen/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLoanRepository implements LoanRepository using GORM
type GormLoanRepository struct {
	db        *gorm.DB
	batchSize int
	mu        sync.Mutex
}

// NewGormLoanRepository creates a new GormLoanRepository
func NewGormLoanRepository(db *gorm.DB, batchSize int) *GormLoanRepository {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &GormLoanRepository{db: db, batchSize: batchSize}
}

// UpsertBatch merges a batch of loan versions, collapsing in-batch duplicates
// to the last instance and skipping already-stored (loan_id, extraction)
// pairs
func (r *GormLoanRepository) UpsertBatch(ctx context.Context, loans []*lead.SBALoanApproval) (int, error) {
	if len(loans) == 0 {
		return 0, nil
	}

	// in-batch dedupe keys on the loan id alone, last instance wins
	index := make(map[string]int, len(loans))
	deduped := make([]*lead.SBALoanApproval, 0, len(loans))
	for _, l := range loans {
		if i, seen := index[l.LoanID]; seen {
			deduped[i] = l
			continue
		}
		index[l.LoanID] = len(deduped)
		deduped = append(deduped, l)
	}

	rows := make([]models.LoanApprovalModel, len(deduped))
	for i, l := range deduped {
		rows[i].FromDomain(l)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var written int64
	err := withWriteRetry(ctx, func() error {
		res := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			CreateInBatches(rows, r.batchSize)
		if res.Error != nil {
			return res.Error
		}
		written = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: upserting loan approvals: %v", shared.ErrStorageFailure, err)
	}
	return int(written), nil
}

// FindProspects returns the latest version of each loan matching the filter,
// best grade first
func (r *GormLoanRepository) FindProspects(ctx context.Context, filter lead.ProspectFilter) ([]*lead.SBALoanApproval, error) {
	latest := r.db.Model(&models.LoanApprovalModel{}).
		Select("loan_id, MAX(extraction_timestamp) AS extraction_timestamp").
		Group("loan_id")

	query := r.db.WithContext(ctx).
		Model(&models.LoanApprovalModel{}).
		Joins("JOIN (?) latest ON latest.loan_id = sba_loan_approvals.loan_id AND latest.extraction_timestamp = sba_loan_approvals.extraction_timestamp", latest)
	query = applyProspectFilter(query, "borrower_state", "borrower_city", "approval_date", filter)

	var rows []models.LoanApprovalModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: querying loan prospects: %v", shared.ErrStorageFailure, err)
	}

	out := make([]*lead.SBALoanApproval, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// CountByGrade aggregates loans extracted since the given time
func (r *GormLoanRepository) CountByGrade(ctx context.Context, since time.Time) (map[lead.LeadGrade]int64, error) {
	var rows []struct {
		Grade lead.LeadGrade
		Count int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.LoanApprovalModel{}).
		Select("grade, COUNT(*) AS count").
		Where("extraction_timestamp >= ?", since).
		Group("grade").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: aggregating loan grades: %v", shared.ErrStorageFailure, err)
	}

	counts := make(map[lead.LeadGrade]int64, len(rows))
	for _, row := range rows {
		counts[row.Grade] = row.Count
	}
	return counts, nil
}
