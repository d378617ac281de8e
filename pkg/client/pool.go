package client

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	robustmqerrors "github.com/robustmq/robustmq/pkg/errors"
)

// Service tags partition the pool by the RPC surface a channel serves,
// per spec section 4.1 (Placement-inner, Placement-journal, Placement-KV,
// Placement-MQTT, Broker-MQTT).
type Service string

const (
	ServicePlacementInner   Service = "placement-inner"
	ServicePlacementJournal Service = "placement-journal"
	ServicePlacementKV      Service = "placement-kv"
	ServicePlacementMQTT    Service = "placement-mqtt"
	ServiceBrokerMQTT       Service = "broker-mqtt"
)

// DefaultMaxOpenConnections bounds how many concurrent leased channels a
// single (service, module, address) pool hands out.
const DefaultMaxOpenConnections = 8

func poolKey(service Service, module, address string) string {
	return fmt.Sprintf("%s_%s_%s", service, module, address)
}

// Pool is a sharded collection of bounded gRPC connection pools, keyed
// by "{service}_{module}_{address}" as spec section 4.1 requires.
// Shard creation is check-then-insert under p.mu, so concurrent callers
// for the same key always share one shard, whose connections are dialed
// only once (sync.Once).
type Pool struct {
	maxOpen int

	mu     sync.Mutex
	shards map[string]*shard
}

// NewPool constructs an empty Pool. maxOpen bounds each shard's
// concurrently leased channel count; pass 0 to use DefaultMaxOpenConnections.
func NewPool(maxOpen int) *Pool {
	if maxOpen <= 0 {
		maxOpen = DefaultMaxOpenConnections
	}
	return &Pool{maxOpen: maxOpen, shards: make(map[string]*shard)}
}

type shard struct {
	address string
	leases  chan *grpc.ClientConn
	once    sync.Once
	dialErr error
}

func (p *Pool) getOrCreateShard(service Service, module, address string) *shard {
	key := poolKey(service, module, address)

	p.mu.Lock()
	s, ok := p.shards[key]
	if !ok {
		s = &shard{address: address, leases: make(chan *grpc.ClientConn, p.maxOpen)}
		p.shards[key] = s
	}
	p.mu.Unlock()
	return s
}

func (s *shard) fill(maxOpen int) error {
	s.once.Do(func() {
		for i := 0; i < maxOpen; i++ {
			conn, err := grpc.NewClient(s.address, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				s.dialErr = err
				return
			}
			s.leases <- conn
		}
	})
	return s.dialErr
}

// Lease is a checked-out channel; callers must call Release when done so
// the connection returns to the pool for the next checkout.
type Lease struct {
	Conn    *grpc.ClientConn
	release func()
}

// Release returns the leased connection to its pool.
func (l *Lease) Release() {
	if l.release != nil {
		l.release()
	}
}

// Get checks out a channel for (service, module, address), suspending
// until one is available or ctx is done. Concurrent first calls for a
// key share one shard, and every fill() after the first is a no-op
// (sync.Once).
func (p *Pool) Get(ctx context.Context, service Service, module, address string) (*Lease, error) {
	s := p.getOrCreateShard(service, module, address)
	if err := s.fill(p.maxOpen); err != nil {
		return nil, robustmqerrors.NewMetaRPCError("pool.Get", 0, fmt.Errorf("%w: %s: %v", robustmqerrors.ErrNoAvailableChannel, poolKey(service, module, address), err))
	}

	select {
	case conn := <-s.leases:
		return &Lease{
			Conn: conn,
			release: func() {
				s.leases <- conn
			},
		}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s", robustmqerrors.ErrPoolExhausted, poolKey(service, module, address))
	}
}

// Close tears down every dialed connection across all shards.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for _, s := range p.shards {
		close(s.leases)
		for conn := range s.leases {
			if err := conn.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
