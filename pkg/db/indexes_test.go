package db_test

import (
	"context"
	"testing"

	"github.com/scalarorg/ibc-tracker/pkg/db"
	"github.com/scalarorg/ibc-tracker/pkg/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestTransferIndexesUseDefaultNames(t *testing.T) {
	for _, index := range db.TransferIndexes() {
		require.NotNil(t, index.Options)
		assert.Nil(t, index.Options.Name)
	}
}

func TestEnsureIndexesAcceptsExistingDefaultNamedIndexes(t *testing.T) {
	_, database := newTestRepository(t)
	ctx := context.Background()
	coll := database.Collection(models.TransferRecordCollection)

	// Recreate the collection the way an existing deployment built it.
	require.NoError(t, coll.Drop(ctx))
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "record_id", Value: -1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: -1}}, Options: options.Index().SetBackground(true)},
	})
	require.NoError(t, err)

	require.NoError(t, db.EnsureIndexes(ctx, database))
	require.NoError(t, db.EnsureIndexes(ctx, database))

	specs, err := coll.Indexes().ListSpecifications(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		names = append(names, spec.Name)
	}
	assert.ElementsMatch(t, []string{
		"_id_",
		"record_id_-1",
		"status_-1",
		"status_-1_tx_time_-1_sc_chain_id_-1_denoms.sc_denom_-1",
		"status_-1_tx_time_-1_dc_chain_id_-1_denoms.dc_denom_-1",
	}, names)
}
