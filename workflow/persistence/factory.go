package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agentos/studio/config"
	"github.com/agentos/studio/internal/database"
	"github.com/agentos/studio/workflow"
)

// NewRecordStore creates the record store selected by cfg.Store.Type
func NewRecordStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (workflow.RecordStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	switch StoreType(cfg.Store.Type) {
	case StoreTypeMemory, "":
		return workflow.NewMemoryRecordStore(cfg.Store.MaxRecords), nil

	case StoreTypeRedis:
		client, err := DialRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return NewRedisRecordStore(client, cfg.Store.KeyPrefix, cfg.Store.RecordTTL, logger), nil

	case StoreTypeSQL:
		pool, err := database.Open(cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		store, err := NewSQLRecordStore(ctx, pool, logger)
		if err != nil {
			_ = pool.Close()
			return nil, err
		}
		return store, nil

	case StoreTypeMongo:
		client, err := DialMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		store, err := NewMongoRecordStore(ctx, client, cfg.Mongo.Database, cfg.Mongo.Collection, logger)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported record store type: %s", cfg.Store.Type)
	}
}

// MustNewRecordStore creates a record store or panics.
//
// Only for process initialization; request paths use NewRecordStore.
func MustNewRecordStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) workflow.RecordStore {
	store, err := NewRecordStore(ctx, cfg, logger)
	if err != nil {
		panic(fmt.Sprintf("failed to create record store: %v", err))
	}
	return store
}
