package persistence

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/custody-ledger/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

func TestReportStoreOptions(t *testing.T) {
	cfg := &config.MongoDBConfig{
		URI:             "mongodb://localhost:27017",
		Database:        "custody_test",
		Timeout:         3 * time.Second,
		MaxPoolSize:     20,
		MinPoolSize:     2,
		MaxConnIdleTime: time.Minute,
	}

	opts := reportStoreOptions(cfg)

	require.NoError(t, opts.Validate())
	assert.Equal(t, uint64(20), *opts.MaxPoolSize)
	assert.Equal(t, uint64(2), *opts.MinPoolSize)
	assert.Equal(t, time.Minute, *opts.MaxConnIdleTime)
	assert.Equal(t, 3*time.Second, *opts.Timeout)
	assert.Equal(t, "custody-ledger", *opts.AppName)
	assert.Equal(t, readpref.PrimaryMode, opts.ReadPreference.Mode())
	assert.Equal(t, writeconcern.Majority(), opts.WriteConcern)
}

func TestMongoDB_EnsureIndexesWithNothingToCreate(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	// mongo.Connect does not dial until first use
	client, err := mongo.Connect(context.TODO(), reportStoreOptions(&config.MongoDBConfig{
		URI:         "mongodb://localhost:27017",
		Timeout:     time.Second,
		MaxPoolSize: 1,
	}))
	require.NoError(t, err)

	mdb := &MongoDB{logger: logger, client: client, database: client.Database("custody_test")}
	assert.Equal(t, "custody_test", mdb.Database().Name())
	assert.NoError(t, mdb.EnsureIndexes(context.TODO(), "reconciliation_reports", nil))
	assert.NoError(t, mdb.Close(context.TODO()))
}
