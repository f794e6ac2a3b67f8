package lead

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ProspectFilter narrows prospect queries to the dominant read pattern:
// the last N days of new high-grade records in a type/geography slice.
type ProspectFilter struct {
	Since         time.Time
	States        []string
	BusinessTypes []BusinessType
	Cities        []string
	MinGrade      LeadGrade
	Limit         int
}

// BusinessEntityRepository is the storage gateway for business entities.
// Upserts never update in place: a re-extraction of a known business_id
// inserts a new historical version keyed by extraction timestamp.
type BusinessEntityRepository interface {
	// UpsertBatch merges a batch, deduplicating within the batch by
	// business_id (last instance wins) and skipping rows already stored for
	// the same (business_id, extraction_timestamp). Returns rows written.
	UpsertBatch(ctx context.Context, entities []*BusinessEntity) (int, error)

	// FindVersions returns every stored version of one business, newest first
	FindVersions(ctx context.Context, businessID uuid.UUID) ([]*BusinessEntity, error)

	// CountDistinct returns the number of distinct business IDs stored
	CountDistinct(ctx context.Context) (int64, error)

	// FindProspects returns the latest version of each business matching the filter
	FindProspects(ctx context.Context, filter ProspectFilter) ([]*BusinessEntity, error)

	// CountByGrade aggregates stored businesses extracted since the given time
	CountByGrade(ctx context.Context, since time.Time) (map[LeadGrade]int64, error)

	// CountByState aggregates stored businesses by state since the given time
	CountByState(ctx context.Context, since time.Time) (map[string]int64, error)

	// CountByType aggregates stored businesses by type since the given time
	CountByType(ctx context.Context, since time.Time) (map[BusinessType]int64, error)
}

// LoanRepository is the storage gateway for SBA loan approvals
type LoanRepository interface {
	UpsertBatch(ctx context.Context, loans []*SBALoanApproval) (int, error)
	FindProspects(ctx context.Context, filter ProspectFilter) ([]*SBALoanApproval, error)
	CountByGrade(ctx context.Context, since time.Time) (map[LeadGrade]int64, error)
}

// LicenseRepository is the storage gateway for business licenses
type LicenseRepository interface {
	UpsertBatch(ctx context.Context, licenses []*BusinessLicense) (int, error)
	FindProspects(ctx context.Context, filter ProspectFilter) ([]*BusinessLicense, error)
	CountByGrade(ctx context.Context, since time.Time) (map[LeadGrade]int64, error)
}

// SummaryRepository persists per-source collection summaries for audit
type SummaryRepository interface {
	Save(ctx context.Context, summary *CollectionSummary) error
	FindSince(ctx context.Context, since time.Time) ([]*CollectionSummary, error)
}
