package keystore

import (
	"context"
	"sync"
	"time"
)

type memoryRecord struct {
	value     []byte
	expiresAt *time.Time
}

// MemoryStore 行程內記憶體後端，重啟即遺失.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryRecord
	clock   Clock
}

// NewMemoryStore 創建記憶體後端.
func NewMemoryStore(clock Clock) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]memoryRecord),
		clock:   clock,
	}
}

// Name 後端名稱.
func (s *MemoryStore) Name() string {
	return "memory"
}

// Available 記憶體後端永遠可用.
func (s *MemoryStore) Available(context.Context) bool {
	return true
}

// Put 新建記錄.
func (s *MemoryStore) Put(_ context.Context, id string, value []byte, expiresAt *time.Time) error {
	if err := validateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[id]; ok && !expired(existing.expiresAt, s.clock.now()) {
		return ErrKeyExists
	}

	s.records[id] = memoryRecord{
		value:     append([]byte(nil), value...),
		expiresAt: copyTime(expiresAt),
	}
	return nil
}

// TakeAndRemove 讀取並刪除記錄.
func (s *MemoryStore) TakeAndRemove(_ context.Context, id string) ([]byte, bool, error) {
	if validateID(id) != nil {
		return nil, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return nil, false, nil
	}
	delete(s.records, id)

	if expired(record.expiresAt, s.clock.now()) {
		return nil, false, nil
	}
	return record.value, true, nil
}

// Remove 刪除記錄.
func (s *MemoryStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.records, id)
	s.mu.Unlock()
	return nil
}

// Len 目前保存的記錄數（含尚未清理的過期記錄）.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Sweep 釋放已過期記錄佔用的記憶體.
func (s *MemoryStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, record := range s.records {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if expired(record.expiresAt, now) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
