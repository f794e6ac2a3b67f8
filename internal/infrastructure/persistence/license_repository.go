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

// GormLicenseRepository implements LicenseRepository using GORM
type GormLicenseRepository struct {
	db        *gorm.DB
	batchSize int
	mu        sync.Mutex
}

// NewGormLicenseRepository creates a new GormLicenseRepository
func NewGormLicenseRepository(db *gorm.DB, batchSize int) *GormLicenseRepository {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &GormLicenseRepository{db: db, batchSize: batchSize}
}

// UpsertBatch merges a batch of license versions, collapsing in-batch
// duplicates to the last instance and skipping already-stored rows
func (r *GormLicenseRepository) UpsertBatch(ctx context.Context, licenses []*lead.BusinessLicense) (int, error) {
	if len(licenses) == 0 {
		return 0, nil
	}

	// in-batch dedupe keys on the license id alone, last instance wins
	index := make(map[string]int, len(licenses))
	deduped := make([]*lead.BusinessLicense, 0, len(licenses))
	for _, l := range licenses {
		if i, seen := index[l.LicenseID]; seen {
			deduped[i] = l
			continue
		}
		index[l.LicenseID] = len(deduped)
		deduped = append(deduped, l)
	}

	rows := make([]models.LicenseModel, len(deduped))
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
		return 0, fmt.Errorf("%w: upserting licenses: %v", shared.ErrStorageFailure, err)
	}
	return int(written), nil
}

// CountByGrade aggregates licenses extracted since the given time
func (r *GormLicenseRepository) CountByGrade(ctx context.Context, since time.Time) (map[lead.LeadGrade]int64, error) {
	var rows []struct {
		Grade lead.LeadGrade
		Count int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.LicenseModel{}).
		Select("grade, COUNT(*) AS count").
		Where("extraction_timestamp >= ?", since).
		Group("grade").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: aggregating license grades: %v", shared.ErrStorageFailure, err)
	}

	counts := make(map[lead.LeadGrade]int64, len(rows))
	for _, row := range rows {
		counts[row.Grade] = row.Count
	}
	return counts, nil
}

// FindProspects returns the latest version of each license matching the
// filter, best grade first
func (r *GormLicenseRepository) FindProspects(ctx context.Context, filter lead.ProspectFilter) ([]*lead.BusinessLicense, error) {
	latest := r.db.Model(&models.LicenseModel{}).
		Select("license_id, MAX(extraction_timestamp) AS extraction_timestamp").
		Group("license_id")

	query := r.db.WithContext(ctx).
		Model(&models.LicenseModel{}).
		Joins("JOIN (?) latest ON latest.license_id = business_licenses.license_id AND latest.extraction_timestamp = business_licenses.extraction_timestamp", latest)
	query = applyProspectFilter(query, "state", "city", "issue_date", filter)

	var rows []models.LicenseModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: querying license prospects: %v", shared.ErrStorageFailure, err)
	}

	out := make([]*lead.BusinessLicense, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}
