package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leadgen/backend/internal/domain/lead"
	"github.com/leadgen/backend/internal/domain/shared"
	"github.com/leadgen/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormBusinessEntityRepository implements BusinessEntityRepository using GORM.
// Writes to the table are serialized per repository instance so concurrent
// source workers never interleave partial batches.
type GormBusinessEntityRepository struct {
	db        *gorm.DB
	batchSize int
	mu        sync.Mutex
}

// NewGormBusinessEntityRepository creates a new GormBusinessEntityRepository
func NewGormBusinessEntityRepository(db *gorm.DB, batchSize int) *GormBusinessEntityRepository {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &GormBusinessEntityRepository{db: db, batchSize: batchSize}
}

// UpsertBatch merges a batch of business versions. Duplicates within the
// batch collapse to the last instance; rows already stored for the same
// (business_id, extraction_timestamp) are skipped via ON CONFLICT DO NOTHING
// so re-running a collection never double-writes.
func (r *GormBusinessEntityRepository) UpsertBatch(ctx context.Context, entities []*lead.BusinessEntity) (int, error) {
	if len(entities) == 0 {
		return 0, nil
	}

	deduped := dedupeBusinesses(entities)
	rows := make([]models.BusinessEntityModel, len(deduped))
	for i, e := range deduped {
		rows[i].FromDomain(e)
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
		return 0, fmt.Errorf("%w: upserting business entities: %v", shared.ErrStorageFailure, err)
	}
	return int(written), nil
}

// FindVersions returns every stored version of one business, newest first
func (r *GormBusinessEntityRepository) FindVersions(ctx context.Context, businessID uuid.UUID) ([]*lead.BusinessEntity, error) {
	var rows []models.BusinessEntityModel
	if err := r.db.WithContext(ctx).
		Where("business_id = ?", businessID).
		Order("extraction_timestamp DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: loading business versions: %v", shared.ErrStorageFailure, err)
	}
	return toDomainBusinesses(rows), nil
}

// CountDistinct returns the number of distinct businesses stored
func (r *GormBusinessEntityRepository) CountDistinct(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.BusinessEntityModel{}).
		Distinct("business_id").
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("%w: counting businesses: %v", shared.ErrStorageFailure, err)
	}
	return count, nil
}

// FindProspects returns the latest version of each business matching the
// filter, best grade first
func (r *GormBusinessEntityRepository) FindProspects(ctx context.Context, filter lead.ProspectFilter) ([]*lead.BusinessEntity, error) {
	latest := r.db.Model(&models.BusinessEntityModel{}).
		Select("business_id, MAX(extraction_timestamp) AS extraction_timestamp").
		Group("business_id")

	query := r.db.WithContext(ctx).
		Model(&models.BusinessEntityModel{}).
		Joins("JOIN (?) latest ON latest.business_id = business_entities.business_id AND latest.extraction_timestamp = business_entities.extraction_timestamp", latest)

	if len(filter.BusinessTypes) > 0 {
		query = query.Where("business_type IN ?", filter.BusinessTypes)
	}
	query = applyProspectFilter(query, "state", "city", "registration_date", filter)

	var rows []models.BusinessEntityModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: querying business prospects: %v", shared.ErrStorageFailure, err)
	}
	return toDomainBusinesses(rows), nil
}

// CountByGrade aggregates businesses extracted since the given time
func (r *GormBusinessEntityRepository) CountByGrade(ctx context.Context, since time.Time) (map[lead.LeadGrade]int64, error) {
	var rows []struct {
		Grade lead.LeadGrade
		Count int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.BusinessEntityModel{}).
		Select("grade, COUNT(*) AS count").
		Where("extraction_timestamp >= ?", since).
		Group("grade").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: aggregating business grades: %v", shared.ErrStorageFailure, err)
	}

	counts := make(map[lead.LeadGrade]int64, len(rows))
	for _, row := range rows {
		counts[row.Grade] = row.Count
	}
	return counts, nil
}

// CountByState aggregates businesses by state since the given time
func (r *GormBusinessEntityRepository) CountByState(ctx context.Context, since time.Time) (map[string]int64, error) {
	var rows []struct {
		State string
		Count int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.BusinessEntityModel{}).
		Select("state, COUNT(*) AS count").
		Where("extraction_timestamp >= ?", since).
		Group("state").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: aggregating business states: %v", shared.ErrStorageFailure, err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.State] = row.Count
	}
	return counts, nil
}

// CountByType aggregates businesses by type since the given time
func (r *GormBusinessEntityRepository) CountByType(ctx context.Context, since time.Time) (map[lead.BusinessType]int64, error) {
	var rows []struct {
		BusinessType lead.BusinessType
		Count        int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.BusinessEntityModel{}).
		Select("business_type, COUNT(*) AS count").
		Where("extraction_timestamp >= ?", since).
		Group("business_type").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: aggregating business types: %v", shared.ErrStorageFailure, err)
	}

	counts := make(map[lead.BusinessType]int64, len(rows))
	for _, row := range rows {
		counts[row.BusinessType] = row.Count
	}
	return counts, nil
}

// dedupeBusinesses collapses in-batch duplicates, last instance wins,
// preserving first-seen order. The key is the logical identity alone: the
// same business seen twice in one fetch carries differing fetch timestamps,
// and only the final sighting may reach the database.
func dedupeBusinesses(entities []*lead.BusinessEntity) []*lead.BusinessEntity {
	index := make(map[string]int, len(entities))
	out := make([]*lead.BusinessEntity, 0, len(entities))
	for _, e := range entities {
		if i, seen := index[e.BusinessID.String()]; seen {
			out[i] = e
			continue
		}
		index[e.BusinessID.String()] = len(out)
		out = append(out, e)
	}
	return out
}

func toDomainBusinesses(rows []models.BusinessEntityModel) []*lead.BusinessEntity {
	out := make([]*lead.BusinessEntity, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}
