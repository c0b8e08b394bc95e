package mongo

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/custody-ledger/internal/domain/reconciliation"
)

func reportDoc(id string, started time.Time, discrepancies bson.A) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "started_at", Value: started},
		{Key: "finished_at", Value: started.Add(time.Second)},
		{Key: "wallets_checked", Value: 3},
		{Key: "caches_corrected", Value: 1},
		{Key: "discrepancies", Value: discrepancies},
	}
}

func TestReportRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	logger := slog.Default()
	ns := "ledger." + ReportCollectionName
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mt.Run("create", func(mt *mtest.T) {
		repo := NewReportRepository(logger, mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		err := repo.Create(context.Background(), &reconciliation.Report{ID: "r1", StartedAt: started})
		assert.NoError(t, err)
	})

	mt.Run("create failure", func(mt *mtest.T) {
		repo := NewReportRepository(logger, mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}))

		err := repo.Create(context.Background(), &reconciliation.Report{ID: "r1", StartedAt: started})
		assert.ErrorContains(t, err, "failed to store reconciliation report")
	})

	mt.Run("latest", func(mt *mtest.T) {
		repo := NewReportRepository(logger, mt.DB)
		discrepancies := bson.A{bson.D{
			{Key: "check", Value: string(reconciliation.CheckWalletBalance)},
			{Key: "wallet_id", Value: "w1"},
			{Key: "expected", Value: "1.5"},
			{Key: "actual", Value: "1.25"},
			{Key: "corrected", Value: true},
		}}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, reportDoc("r2", started, discrepancies)))

		report, err := repo.Latest(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "r2", report.ID)
		assert.Equal(t, 1, report.Count(reconciliation.CheckWalletBalance))
		assert.Equal(t, "-0.25", report.Discrepancies[0].Difference().String())
		assert.False(t, report.Clean())
	})

	mt.Run("latest when empty", func(mt *mtest.T) {
		repo := NewReportRepository(logger, mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err := repo.Latest(context.Background())
		assert.ErrorIs(t, err, reconciliation.ErrNoReport)
	})

	mt.Run("list by time range", func(mt *mtest.T) {
		repo := NewReportRepository(logger, mt.DB)
		first := mtest.CreateCursorResponse(1, ns, mtest.FirstBatch, reportDoc("r3", started.Add(time.Hour), bson.A{}))
		second := mtest.CreateCursorResponse(1, ns, mtest.NextBatch, reportDoc("r2", started, bson.A{}))
		killCursors := mtest.CreateCursorResponse(0, ns, mtest.NextBatch)
		mt.AddMockResponses(first, second, killCursors)

		reports, err := repo.ListByTimeRange(context.Background(), started, started.Add(2*time.Hour), 10, 0)
		require.NoError(t, err)
		require.Len(t, reports, 2)
		assert.Equal(t, "r3", reports[0].ID)
		assert.True(t, reports[1].Clean())
	})
}

func TestReportIndexes(t *testing.T) {
	indexes := ReportIndexes()
	require.Len(t, indexes, 2)

	assert.Equal(t, bson.D{{Key: "started_at", Value: -1}}, indexes[0].Keys)
	assert.Equal(t, "started_at_desc", *indexes[0].Options.Name)

	assert.Equal(t, "discrepancy_check_started_at", *indexes[1].Options.Name)
	assert.NotNil(t, indexes[1].Options.PartialFilterExpression)
}
