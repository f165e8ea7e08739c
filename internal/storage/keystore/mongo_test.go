package keystore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// connectTestMongo 未設定 MONGO_TEST_URL 時跳過
func connectTestMongo(t *testing.T) *mongo.Database {
	t.Helper()

	url := os.Getenv("MONGO_TEST_URL")
	if url == "" {
		t.Skip("跳過測試：未設定 MONGO_TEST_URL")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(url))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		t.Skipf("跳過測試：無法連接到 MongoDB: %v", err)
	}

	db := client.Database("securepastebox_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return db
}

func TestMongoStore(t *testing.T) {
	db := connectTestMongo(t)

	runStoreContract(t, func(t *testing.T, clock Clock) Store {
		store := NewMongoStore(db, "keys_"+uuid.NewString()[:8], clock)
		require.NoError(t, store.CreateIndexes(context.Background()))
		return store
	})
}
