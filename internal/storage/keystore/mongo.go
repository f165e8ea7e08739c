package keystore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// mongoRecord 密鑰文件.
type mongoRecord struct {
	ID        string     `bson:"_id"`
	Value     []byte     `bson:"value"`
	ExpiresAt *time.Time `bson:"expires_at"`
	CreatedAt time.Time  `bson:"created_at"`
}

// MongoStore 以 MongoDB 集合作為分散式快取的後端.
// 到期由 TTL 索引回收，讀取時仍會檢查，因為 TTL 監控是延遲執行的.
type MongoStore struct {
	collection *mongo.Collection
	clock      Clock
}

// NewMongoStore 創建 MongoDB 後端.
func NewMongoStore(db *mongo.Database, collection string, clock Clock) *MongoStore {
	return &MongoStore{
		collection: db.Collection(collection),
		clock:      clock,
	}
}

// CreateIndexes 建立 expires_at 的 TTL 索引.
func (s *MongoStore) CreateIndexes(ctx context.Context) error {
	ttlIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetName("expires_at_ttl").SetExpireAfterSeconds(0),
	}
	if _, err := s.collection.Indexes().CreateOne(ctx, ttlIndex); err != nil {
		return fmt.Errorf("create ttl index: %w", err)
	}
	return nil
}

// Name 後端名稱.
func (s *MongoStore) Name() string {
	return "mongo"
}

// Available 以 ping 主節點判斷.
func (s *MongoStore) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.collection.Database().Client().Ping(ctx, readpref.Primary()) == nil
}

// Put 插入新文件，重複主鍵視為已存在.
func (s *MongoStore) Put(ctx context.Context, id string, value []byte, expiresAt *time.Time) error {
	if err := validateID(id); err != nil {
		return err
	}

	now := s.clock.now()
	record := mongoRecord{
		ID:        id,
		Value:     value,
		ExpiresAt: copyTime(expiresAt),
		CreatedAt: now.UTC(),
	}

	_, err := s.collection.InsertOne(ctx, record)
	if mongo.IsDuplicateKeyError(err) {
		// TTL 監控尚未回收的過期文件可以直接取代
		res, delErr := s.collection.DeleteOne(ctx, bson.M{
			"_id":        id,
			"expires_at": bson.M{"$lte": now.UTC()},
		})
		if delErr != nil {
			return fmt.Errorf("remove expired record: %w", delErr)
		}
		if res.DeletedCount == 0 {
			return ErrKeyExists
		}
		_, err = s.collection.InsertOne(ctx, record)
		if mongo.IsDuplicateKeyError(err) {
			return ErrKeyExists
		}
	}
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// TakeAndRemove 以 FindOneAndDelete 在伺服器端原子地取出並刪除.
func (s *MongoStore) TakeAndRemove(ctx context.Context, id string) ([]byte, bool, error) {
	if validateID(id) != nil {
		return nil, false, nil
	}

	var record mongoRecord
	err := s.collection.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("take record: %w", err)
	}
	if expired(record.ExpiresAt, s.clock.now()) {
		return nil, false, nil
	}
	return record.Value, true, nil
}

// Remove 刪除文件.
func (s *MongoStore) Remove(ctx context.Context, id string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("remove record: %w", err)
	}
	return nil
}
