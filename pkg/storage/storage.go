package storage

import (
	"fmt"
	"time"
)

// Record is one message stored in a shard, addressed by a monotonic
// per-shard offset.
type Record struct {
	Offset    uint64            `json:"offset"`
	Key       *string           `json:"key,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Payload   []byte            `json:"payload"`
	Timestamp time.Time         `json:"timestamp"`
}

// ShardConfig configures a shard at creation time.
type ShardConfig struct {
	ReplicaCount int
}

// ConsumerGroupOffset is the committed read position a consumer group
// has reached in a shard.
type ConsumerGroupOffset struct {
	Shard           string `json:"shard"`
	Group           string `json:"group"`
	CommittedOffset uint64 `json:"committed_offset"`
}

// Adapter is the broker's pluggable message-storage collaborator, spec
// section 4.3. Implementations must be safe for concurrent callers.
type Adapter interface {
	CreateShard(name string, cfg ShardConfig) error
	DeleteShard(name string) error

	Set(key string, value []byte) error
	Get(key string) ([]byte, error)
	Delete(key string) error
	Exists(key string) (bool, error)

	// StreamWrite appends records to shard and returns the offsets
	// assigned, in input order.
	StreamWrite(shard string, records []Record) ([]uint64, error)

	// StreamRead returns the next batch strictly after group's
	// committed offset. An empty batch is a valid result.
	StreamRead(shard, group string, maxRecords int, maxBytes int) ([]Record, error)

	// StreamCommitOffset persists the highest offset group has
	// processed. Idempotent and non-decreasing: a lower offset than
	// already committed is a no-op that still returns true.
	StreamCommitOffset(shard, group string, offset uint64) (bool, error)

	StreamReadByOffset(shard string, offset uint64) (*Record, error)
	StreamReadByTimestamp(shard string, ts time.Time) (*Record, error)
	StreamReadByKey(shard, key string) (*Record, error)
}

// ErrRecordNotFound is returned by the by-offset/by-timestamp/by-key
// lookups when no matching record exists.
var ErrRecordNotFound = fmt.Errorf("storage: record not found")
