package db

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tasktrack/apiserver/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const defaultMongoConnectTimeout = 10 * time.Second

// OpenMongo connects to MongoDB and returns the configured database handle.
// Callers disconnect through db.Client().Disconnect.
func OpenMongo(ctx context.Context, cfg config.Config, logger *log.Logger) (*mongo.Database, error) {
	opts := options.Client().
		ApplyURI(cfg.Database.MongoURI).
		SetConnectTimeout(defaultMongoConnectTimeout).
		SetMaxPoolSize(defaultMaxOpenConns)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	err = retry(ctx, cfg.Database, logger, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
		defer cancel()
		return client.Ping(pingCtx, readpref.Primary())
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	return client.Database(cfg.Database.MongoDatabase), nil
}
