package keystore

import (
	"context"
	"errors"
	"fmt"

	"secure-pastebox/internal/platform/config"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

// New 依配置選擇後端，只在啟動時決定一次.
// 回傳的 Reaper 可能為 nil（Mongo 由 TTL 索引回收）.
func New(ctx context.Context, cfg *config.Config, db *mongo.Database, clock Clock) (Store, *Reaper, error) {
	switch cfg.KeyStorage.Type {
	case config.KeyStorageMemory:
		store := NewMemoryStore(clock)
		return store, NewReaper(store.Name(), store, cfg.Files.CleanupInterval, clock), nil

	case config.KeyStorageFiles:
		store, err := NewFileStore(cfg.Files.DataDirectory, clock)
		if err != nil {
			return nil, nil, err
		}
		return store, NewReaper(store.Name(), store, cfg.Files.CleanupInterval, clock), nil

	case config.KeyStorageMongo:
		if db == nil {
			return nil, nil, errors.New("mongo key storage requires a database connection")
		}
		store := NewMongoStore(db, cfg.Database.Mongo.Collection, clock)
		if err := store.CreateIndexes(ctx); err != nil {
			return nil, nil, err
		}
		return store, nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported key storage type: %s", cfg.KeyStorage.Type)
	}
}
