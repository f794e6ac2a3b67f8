package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/leadgen/backend/internal/domain/lead"
	"github.com/leadgen/backend/internal/domain/shared"
	"github.com/leadgen/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSummaryRepository implements SummaryRepository using GORM
type GormSummaryRepository struct {
	db *gorm.DB
}

// NewGormSummaryRepository creates a new GormSummaryRepository
func NewGormSummaryRepository(db *gorm.DB) *GormSummaryRepository {
	return &GormSummaryRepository{db: db}
}

// Save appends one per-source run summary to the audit trail
func (r *GormSummaryRepository) Save(ctx context.Context, summary *lead.CollectionSummary) error {
	var row models.CollectionSummaryModel
	row.FromDomain(summary)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("%w: saving collection summary: %v", shared.ErrStorageFailure, err)
	}
	return nil
}

// FindSince returns summaries started since the given time, newest first
func (r *GormSummaryRepository) FindSince(ctx context.Context, since time.Time) ([]*lead.CollectionSummary, error) {
	var rows []models.CollectionSummaryModel
	if err := r.db.WithContext(ctx).
		Where("started_at >= ?", since).
		Order("started_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: loading collection summaries: %v", shared.ErrStorageFailure, err)
	}

	out := make([]*lead.CollectionSummary, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}
