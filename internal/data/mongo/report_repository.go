// Package mongo stores reconciliation reports as documents
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/custody-ledger/internal/domain/reconciliation"
)

const (
	// ReportCollectionName is the name of the report collection in MongoDB
	ReportCollectionName = "reconciliation_reports"
)

// ReportIndexes backs Latest and ListByTimeRange, which both sort on
// started_at, plus a lookup of reports that found discrepancies.
func ReportIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "started_at", Value: -1}},
			Options: options.Index().SetName("started_at_desc"),
		},
		{
			Keys: bson.D{{Key: "discrepancies.check", Value: 1}, {Key: "started_at", Value: -1}},
			Options: options.Index().
				SetName("discrepancy_check_started_at").
				SetPartialFilterExpression(bson.M{"discrepancies.0": bson.M{"$exists": true}}),
		},
	}
}

// ReportRepository implements the reconciliation.Repository interface for MongoDB
type ReportRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewReportRepository creates a new MongoDB report repository
func NewReportRepository(logger *slog.Logger, db *mongo.Database) reconciliation.Repository {
	return &ReportRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a finished report
func (r *ReportRepository) Create(ctx context.Context, report *reconciliation.Report) error {
	collection := r.db.Collection(ReportCollectionName)

	if _, err := collection.InsertOne(ctx, report); err != nil {
		r.logger.Error("Failed to store reconciliation report",
			"report_id", report.ID,
			"error", err)
		return fmt.Errorf("failed to store reconciliation report: %w", err)
	}

	return nil
}

// Latest returns the most recently started report, or ErrNoReport
func (r *ReportRepository) Latest(ctx context.Context) (*reconciliation.Report, error) {
	collection := r.db.Collection(ReportCollectionName)

	opts := options.FindOne().SetSort(bson.M{"started_at": -1})
	var report reconciliation.Report
	err := collection.FindOne(ctx, bson.M{}, opts).Decode(&report)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, reconciliation.ErrNoReport
		}
		r.logger.Error("Failed to get latest reconciliation report", "error", err)
		return nil, fmt.Errorf("failed to get latest reconciliation report: %w", err)
	}

	return &report, nil
}

// ListByTimeRange pages through reports started within the window, newest first
func (r *ReportRepository) ListByTimeRange(ctx context.Context, start, end time.Time, limit, offset int) ([]*reconciliation.Report, error) {
	collection := r.db.Collection(ReportCollectionName)

	filter := bson.M{
		"started_at": bson.M{
			"$gte": start,
			"$lte": end,
		},
	}
	opts := options.Find().
		SetSort(bson.M{"started_at": -1}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to list reconciliation reports",
			"start_time", start,
			"end_time", end,
			"error", err)
		return nil, fmt.Errorf("failed to list reconciliation reports: %w", err)
	}
	defer cursor.Close(ctx)

	var reports []*reconciliation.Report
	if err := cursor.All(ctx, &reports); err != nil {
		r.logger.Error("Failed to decode reconciliation reports", "error", err)
		return nil, fmt.Errorf("failed to decode reconciliation reports: %w", err)
	}

	return reports, nil
}
