package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leadgen/backend/internal/domain/lead"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockSummaryRepository(t *testing.T) (*GormSummaryRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormSummaryRepository(gormDB), mock, mockDB
}

func TestGormSummaryRepository_Save(t *testing.T) {
	t.Run("persists one audit row per source run", func(t *testing.T) {
		repo, mock, mockDB := newMockSummaryRepository(t)
		defer mockDB.Close()

		summary := lead.NewCollectionSummary("fl_sunbiz", "FL")
		require.NoError(t, summary.Transition(lead.SourceStateFetching))
		require.NoError(t, summary.Transition(lead.SourceStateSucceeded))
		summary.RecordsFetched = 120
		summary.RecordsValidated = 110
		summary.RecordsRejected = 10
		summary.Complete()

		mock.ExpectQuery(`INSERT INTO "collection_summaries" .* RETURNING "id"`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

		err := repo.Save(context.Background(), summary)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormSummaryRepository_FindSince(t *testing.T) {
	t.Run("returns summaries newest first", func(t *testing.T) {
		repo, mock, mockDB := newMockSummaryRepository(t)
		defer mockDB.Close()

		since := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		rows := sqlmock.NewRows([]string{"id", "source_name", "jurisdiction", "state", "records_fetched", "fallback_used", "started_at"}).
			AddRow(2, "fl_sunbiz", "FL", "FALLBACK", 25, true, time.Date(2024, 6, 15, 2, 0, 0, 0, time.UTC)).
			AddRow(1, "fl_licenses", "FL", "SUCCEEDED", 310, false, time.Date(2024, 6, 14, 2, 0, 0, 0, time.UTC))

		mock.ExpectQuery(`SELECT \* FROM "collection_summaries" WHERE started_at >= \$1 ORDER BY started_at DESC`).
			WithArgs(since).
			WillReturnRows(rows)

		summaries, err := repo.FindSince(context.Background(), since)

		require.NoError(t, err)
		require.Len(t, summaries, 2)
		assert.Equal(t, lead.SourceStateFallback, summaries[0].State)
		assert.True(t, summaries[0].FallbackUsed)
		assert.True(t, summaries[0].Degraded())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
