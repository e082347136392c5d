package db

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ibc-tracker/config"
	"go.mongodb.org/mongo-driver/mongo"
)

type DatabaseAdapter struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database
	Transfers     *TransferRepository
}

// NewDatabaseAdapter connects to MongoDB and makes sure the transfer record
// indexes exist before handing out the repository.
func NewDatabaseAdapter(ctx context.Context, cfg config.MongoConfig) (*DatabaseAdapter, error) {
	client, database, err := NewMongoClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	adapter := &DatabaseAdapter{
		MongoClient:   client,
		MongoDatabase: database,
		Transfers:     NewTransferRepository(database),
	}
	if err := EnsureIndexes(ctx, database); err != nil {
		adapter.Close(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return adapter, nil
}

func (da *DatabaseAdapter) Close(ctx context.Context) {
	if da.MongoClient == nil {
		return
	}
	if err := da.MongoClient.Disconnect(ctx); err != nil {
		log.Error().Err(err).Msg("[DatabaseAdapter] failed to disconnect MongoDB")
	}
}
