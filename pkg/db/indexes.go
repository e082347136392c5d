package db

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ibc-tracker/pkg/db/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TransferIndexes backs the record_id uniqueness guarantee and the status,
// time window and per-side chain/denom lookups. Names are left to the server
// so collections that already carry these indexes under their default names
// are accepted as they are.
func TransferIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "record_id", Value: -1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "status", Value: -1}},
			Options: options.Index().SetBackground(true),
		},
		{
			Keys: bson.D{
				{Key: "status", Value: -1},
				{Key: "tx_time", Value: -1},
				{Key: "sc_chain_id", Value: -1},
				{Key: "denoms.sc_denom", Value: -1},
			},
			Options: options.Index().SetBackground(true),
		},
		{
			Keys: bson.D{
				{Key: "status", Value: -1},
				{Key: "tx_time", Value: -1},
				{Key: "dc_chain_id", Value: -1},
				{Key: "denoms.dc_denom", Value: -1},
			},
			Options: options.Index().SetBackground(true),
		},
	}
}

// EnsureIndexes is idempotent; existing indexes with the same keys, options and name are kept.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	names, err := database.Collection(models.TransferRecordCollection).Indexes().CreateMany(ctx, TransferIndexes())
	if err != nil {
		return err
	}
	log.Debug().Strs("indexes", names).Msg("[EnsureIndexes] transfer record indexes ready")
	return nil
}
