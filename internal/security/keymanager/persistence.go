package keymanager

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"secure-pastebox/internal/constants"
	"secure-pastebox/internal/platform/config"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Repository 密鑰環的持久化位置，整個密鑰環為單一資料塊
type Repository interface {
	// Load 尚未保存過時返回 nil, nil
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Name() string
}

// NewRepository 依儲存後端選擇密鑰環位置，與密鑰資料放在同一處
func NewRepository(cfg *config.Config, db *mongo.Database) (Repository, error) {
	switch cfg.KeyStorage.Type {
	case config.KeyStorageFiles:
		return NewFileRepository(filepath.Join(cfg.Files.DataDirectory, constants.KeyringFileName)), nil
	case config.KeyStorageMongo:
		if db == nil {
			return nil, errors.New("mongo keyring repository requires a database connection")
		}
		return NewMongoRepository(db, constants.KeyringCollection, cfg.DataProtection.CacheKey), nil
	default:
		return NewMemoryRepository(), nil
	}
}

// MemoryRepository 行程內保存，重啟後遺失
type MemoryRepository struct {
	mu   sync.Mutex
	data []byte
}

// NewMemoryRepository 創建記憶體儲存庫
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) Name() string { return "memory" }

func (m *MemoryRepository) Load(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyBytesOrNil(m.data), nil
}

func (m *MemoryRepository) Save(_ context.Context, data []byte) error {
	m.mu.Lock()
	m.data = copyBytesOrNil(data)
	m.mu.Unlock()
	return nil
}

// FileRepository 保存於資料目錄內的隱藏檔案
type FileRepository struct {
	path string
}

// NewFileRepository 創建檔案儲存庫
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: path}
}

func (f *FileRepository) Name() string { return "file" }

func (f *FileRepository) Load(context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read keyring file: %w", err)
	}
	return data, nil
}

// Save 先寫暫存檔再改名，避免讀到半寫入的內容
func (f *FileRepository) Save(_ context.Context, data []byte) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create keyring directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-keyring-*")
	if err != nil {
		return fmt.Errorf("create temp keyring: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp keyring: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp keyring: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp keyring: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace keyring: %w", err)
	}
	return nil
}

// keyringDocument MongoDB 中存儲的密鑰環文檔
type keyringDocument struct {
	ID        string    `bson:"_id"`
	Data      []byte    `bson:"data"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoRepository 以單一文件保存於 MongoDB
type MongoRepository struct {
	collection *mongo.Collection
	cacheKey   string
}

// NewMongoRepository 創建 MongoDB 儲存庫
func NewMongoRepository(db *mongo.Database, collection, cacheKey string) *MongoRepository {
	return &MongoRepository{
		collection: db.Collection(collection),
		cacheKey:   cacheKey,
	}
}

func (m *MongoRepository) Name() string { return "mongo" }

func (m *MongoRepository) Load(ctx context.Context) ([]byte, error) {
	var doc keyringDocument
	err := m.collection.FindOne(ctx, bson.M{"_id": m.cacheKey}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load keyring: %w", err)
	}
	return doc.Data, nil
}

// Save 使用 ReplaceOne upsert 覆寫整個密鑰環
func (m *MongoRepository) Save(ctx context.Context, data []byte) error {
	doc := keyringDocument{
		ID:        m.cacheKey,
		Data:      data,
		UpdatedAt: time.Now().UTC(),
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := m.collection.ReplaceOne(ctx, bson.M{"_id": m.cacheKey}, doc, opts); err != nil {
		return fmt.Errorf("failed to save keyring: %w", err)
	}
	return nil
}

func copyBytesOrNil(b []byte) []byte {
	if b == nil {
		return nil
	}
	return copyBytes(b)
}
