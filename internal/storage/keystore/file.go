package keystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"secure-pastebox/internal/constants"
	"secure-pastebox/internal/platform/logger"

	"github.com/google/uuid"
)

const (
	tmpPrefix   = ".tmp-"
	claimPrefix = ".claim-"
)

// fileRecord 單一密鑰檔案內容.
type fileRecord struct {
	Value     []byte     `json:"value"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// FileStore 每個識別碼一個檔案的目錄後端，可跨行程共用同一目錄.
type FileStore struct {
	dir   string
	clock Clock

	beforeClaim func(full string) // 測試用，認領過期記錄前呼叫
}

// NewFileStore 創建檔案後端，目錄不存在時自動建立.
func NewFileStore(dir string, clock Clock) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("data directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &FileStore{dir: dir, clock: clock}, nil
}

// Name 後端名稱.
func (s *FileStore) Name() string {
	return "files"
}

// Available 資料目錄存在即可用.
func (s *FileStore) Available(context.Context) bool {
	info, err := os.Stat(s.dir)
	return err == nil && info.IsDir()
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, url.QueryEscape(id))
}

// Put 先寫入暫存檔，再以硬連結建立正式檔名，讀者永遠看不到半寫入的記錄.
func (s *FileStore) Put(ctx context.Context, id string, value []byte, expiresAt *time.Time) error {
	if err := validateID(id); err != nil {
		return err
	}

	data, err := json.Marshal(fileRecord{Value: value, ExpiresAt: copyTime(expiresAt)})
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	target := s.path(id)
	err = os.Link(tmpName, target)
	if errors.Is(err, fs.ErrExist) {
		// 既有記錄已過期時允許覆蓋
		if !s.removeIfExpired(target) {
			return ErrKeyExists
		}
		err = os.Link(tmpName, target)
		if errors.Is(err, fs.ErrExist) {
			return ErrKeyExists
		}
	}
	if err != nil {
		return fmt.Errorf("link record: %w", err)
	}
	return nil
}

// TakeAndRemove 先將檔案改名為私有認領檔，只有一個呼叫者能成功改名.
func (s *FileStore) TakeAndRemove(_ context.Context, id string) ([]byte, bool, error) {
	if validateID(id) != nil {
		return nil, false, nil
	}

	claim := filepath.Join(s.dir, claimPrefix+uuid.NewString())
	if err := os.Rename(s.path(id), claim); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("claim record: %w", err)
	}

	data, readErr := os.ReadFile(claim)
	removeErr := os.Remove(claim)
	if readErr != nil {
		return nil, false, fmt.Errorf("read record: %w", readErr)
	}
	if removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
		return nil, false, fmt.Errorf("remove record: %w", removeErr)
	}

	var record fileRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, false, fmt.Errorf("decode record: %w", err)
	}
	if expired(record.ExpiresAt, s.clock.now()) {
		return nil, false, nil
	}
	return record.Value, true, nil
}

// Remove 刪除記錄.
func (s *FileStore) Remove(_ context.Context, id string) error {
	if validateID(id) != nil {
		return nil
	}
	if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove record: %w", err)
	}
	return nil
}

// Sweep 刪除過期記錄以及殘留超過一小時的暫存、認領檔.
func (s *FileStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read data directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		full := filepath.Join(s.dir, name)

		if strings.HasPrefix(name, ".") {
			if s.removeStaleInternal(ctx, entry, full, now) {
				removed++
			}
			continue
		}

		record, err := readRecord(full)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				logger.Warning(ctx, "跳過無法讀取的密鑰檔案",
					logger.WithBackend(s.Name()),
					logger.WithAction("sweep"),
					logger.WithDetails(map[string]interface{}{"file": name, "error": err.Error()}))
			}
			continue
		}
		if !expired(record.ExpiresAt, now) {
			continue
		}
		ok, err := s.claimExpired(full, now)
		if err != nil {
			logger.Warning(ctx, "刪除過期密鑰檔案失敗",
				logger.WithBackend(s.Name()),
				logger.WithAction("sweep"),
				logger.WithDetails(map[string]interface{}{"file": name, "error": err.Error()}))
			continue
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

func (s *FileStore) removeStaleInternal(ctx context.Context, entry fs.DirEntry, full string, now time.Time) bool {
	name := entry.Name()
	if !strings.HasPrefix(name, tmpPrefix) && !strings.HasPrefix(name, claimPrefix) {
		return false
	}
	info, err := entry.Info()
	if err != nil || now.Sub(info.ModTime()) < constants.StaleInternalFileAge {
		return false
	}
	if err := os.Remove(full); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warning(ctx, "刪除殘留暫存檔失敗",
				logger.WithBackend(s.Name()),
				logger.WithDetails(map[string]interface{}{"file": name, "error": err.Error()}))
		}
		return false
	}
	return true
}

func (s *FileStore) removeIfExpired(full string) bool {
	now := s.clock.now()
	record, err := readRecord(full)
	if err != nil {
		return errors.Is(err, fs.ErrNotExist)
	}
	if !expired(record.ExpiresAt, now) {
		return false
	}

	removed, err := s.claimExpired(full, now)
	if err != nil {
		return false
	}
	if removed {
		return true
	}
	_, err = os.Stat(full)
	return errors.Is(err, fs.ErrNotExist)
}

// claimExpired 先改名認領再確認一次是否過期.
// 讀取與刪除之間同一識別碼可能已被重新寫入，此時把新記錄放回原檔名.
func (s *FileStore) claimExpired(full string, now time.Time) (bool, error) {
	if s.beforeClaim != nil {
		s.beforeClaim(full)
	}

	claim := filepath.Join(s.dir, claimPrefix+uuid.NewString())
	if err := os.Rename(full, claim); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("claim record: %w", err)
	}
	defer os.Remove(claim)

	record, err := readRecord(claim)
	if err == nil && expired(record.ExpiresAt, now) {
		return true, nil
	}
	if err := os.Link(claim, full); err != nil {
		return false, fmt.Errorf("restore record: %w", err)
	}
	return false, nil
}

func readRecord(full string) (*fileRecord, error) {
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, err
	}
	var record fileRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &record, nil
}
