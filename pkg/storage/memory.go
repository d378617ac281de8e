package storage

import (
	"sync"
	"time"
)

// MemoryAdapter is an in-process Adapter implementation, useful for a
// single-node broker or tests. Every shard keeps its records in an
// append-only slice guarded by its own mutex, avoiding a single global
// lock across shards.
type MemoryAdapter struct {
	kv sync.Map // string -> []byte

	mu     sync.RWMutex
	shards map[string]*memShard
}

type memShard struct {
	mu      sync.RWMutex
	records []Record
	offsets map[string]uint64 // group -> committed offset
}

// NewMemoryAdapter constructs an empty MemoryAdapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{shards: make(map[string]*memShard)}
}

func (m *MemoryAdapter) shard(name string) (*memShard, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.shards[name]
	return s, ok
}

func (m *MemoryAdapter) CreateShard(name string, cfg ShardConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.shards[name]; ok {
		return nil
	}
	m.shards[name] = &memShard{offsets: make(map[string]uint64)}
	return nil
}

func (m *MemoryAdapter) DeleteShard(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.shards, name)
	return nil
}

func (m *MemoryAdapter) Set(key string, value []byte) error {
	m.kv.Store(key, value)
	return nil
}

func (m *MemoryAdapter) Get(key string) ([]byte, error) {
	v, ok := m.kv.Load(key)
	if !ok {
		return nil, ErrRecordNotFound
	}
	return v.([]byte), nil
}

func (m *MemoryAdapter) Delete(key string) error {
	m.kv.Delete(key)
	return nil
}

func (m *MemoryAdapter) Exists(key string) (bool, error) {
	_, ok := m.kv.Load(key)
	return ok, nil
}

func (m *MemoryAdapter) StreamWrite(shardName string, records []Record) ([]uint64, error) {
	s, ok := m.shard(shardName)
	if !ok {
		return nil, ErrRecordNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	offsets := make([]uint64, len(records))
	for i, rec := range records {
		offset := uint64(len(s.records))
		rec.Offset = offset
		if rec.Timestamp.IsZero() {
			rec.Timestamp = time.Now()
		}
		s.records = append(s.records, rec)
		offsets[i] = offset
	}
	return offsets, nil
}

func (m *MemoryAdapter) StreamRead(shardName, group string, maxRecords, maxBytes int) ([]Record, error) {
	s, ok := m.shard(shardName)
	if !ok {
		return nil, ErrRecordNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	start, committed := s.offsets[group]
	if committed {
		start++ // committed offset is inclusive of the last-read record
	}
	if int(start) >= len(s.records) {
		return nil, nil
	}

	batch := make([]Record, 0, maxRecords)
	bytes := 0
	for i := int(start); i < len(s.records) && len(batch) < maxRecords; i++ {
		rec := s.records[i]
		if maxBytes > 0 && bytes+len(rec.Payload) > maxBytes && len(batch) > 0 {
			break
		}
		batch = append(batch, rec)
		bytes += len(rec.Payload)
	}
	return batch, nil
}

func (m *MemoryAdapter) StreamCommitOffset(shardName, group string, offset uint64) (bool, error) {
	s, ok := m.shard(shardName)
	if !ok {
		return false, ErrRecordNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, exists := s.offsets[group]; !exists || offset > current {
		s.offsets[group] = offset
	}
	return true, nil
}

func (m *MemoryAdapter) StreamReadByOffset(shardName string, offset uint64) (*Record, error) {
	s, ok := m.shard(shardName)
	if !ok {
		return nil, ErrRecordNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if int(offset) >= len(s.records) {
		return nil, ErrRecordNotFound
	}
	rec := s.records[offset]
	return &rec, nil
}

func (m *MemoryAdapter) StreamReadByTimestamp(shardName string, ts time.Time) (*Record, error) {
	s, ok := m.shard(shardName)
	if !ok {
		return nil, ErrRecordNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if !rec.Timestamp.Before(ts) {
			r := rec
			return &r, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (m *MemoryAdapter) StreamReadByKey(shardName, key string) (*Record, error) {
	s, ok := m.shard(shardName)
	if !ok {
		return nil, ErrRecordNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.Key != nil && *rec.Key == key {
			r := rec
			return &r, nil
		}
	}
	return nil, ErrRecordNotFound
}
