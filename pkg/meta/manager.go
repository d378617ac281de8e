package meta

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/robustmq/robustmq/pkg/events"
	"github.com/robustmq/robustmq/pkg/log"
	"github.com/robustmq/robustmq/pkg/metastore"
	"github.com/robustmq/robustmq/pkg/metrics"
)

// Config holds the settings needed to bootstrap or join a placement
// center raft group.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string
}

// Manager owns the raft group and the durable metastore it replicates
// into. All mutation flows through Apply -> raft -> FSM -> metastore, the
// same shape as cuemby-warren's pkg/manager.Manager.
type Manager struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft  *raft.Raft
	fsm   *FSM
	store metastore.Store

	// Events is optional: set after NewManager to have membership
	// changes publish a lifecycle notification.
	Events *events.Broker
}

// NewManager constructs a Manager backed by an on-disk metastore under
// cfg.DataDir. Bootstrap or Join must be called before the raft group is
// usable.
func NewManager(cfg *Config) (*Manager, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	store, err := metastore.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open metastore: %w", err)
	}

	fsm := NewFSM(store)

	return &Manager{
		nodeID:   cfg.NodeID,
		bindAddr: cfg.BindAddr,
		dataDir:  cfg.DataDir,
		fsm:      fsm,
		store:    store,
	}, nil
}

func (m *Manager) raftConfig() (*raft.Config, error) {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(m.nodeID)

	// Tuned for sub-10s leader failover on a small placement-center cluster.
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond

	return config, nil
}

func (m *Manager) buildRaft() (*raft.Raft, error) {
	config, err := m.raftConfig()
	if err != nil {
		return nil, err
	}

	addr, err := net.ResolveTCPAddr("tcp", m.bindAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bind addr: %w", err)
	}

	transport, err := raft.NewTCPTransport(m.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to create raft transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(m.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create raft log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create raft stable store: %w", err)
	}

	r, err := raft.NewRaft(config, m.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("failed to create raft node: %w", err)
	}

	m.raft = r
	return r, nil
}

// Bootstrap starts a brand new single-node raft group, to be joined by
// other placement center nodes afterward.
func (m *Manager) Bootstrap() error {
	r, err := m.buildRaft()
	if err != nil {
		return err
	}

	config, err := m.raftConfig()
	if err != nil {
		return err
	}

	future := r.BootstrapCluster(raft.Configuration{
		Servers: []raft.Server{
			{ID: config.LocalID, Address: raft.ServerAddress(m.bindAddr)},
		},
	})
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to bootstrap cluster: %w", err)
	}

	log.WithNodeID(m.nodeID).Info().Str("bind_addr", m.bindAddr).Msg("placement center bootstrapped")
	return nil
}

// Join starts the local raft transport and waits to be added as a voter
// by the leader. Unlike cuemby-warren's token-authenticated join RPC,
// RobustMQ nodes are configured with a static placement_center address
// list, so cluster formation here is driven by an external caller (the
// leader, discovered via that list) invoking AddVoter on this node's
// behalf rather than this node pushing a join request with a token.
func (m *Manager) Join() error {
	if _, err := m.buildRaft(); err != nil {
		return err
	}
	log.WithNodeID(m.nodeID).Info().Msg("placement center raft transport ready, awaiting voter admission")
	return nil
}

// AddVoter adds a new voting member to the cluster. Only the leader can
// call this successfully.
func (m *Manager) AddVoter(nodeID, address string) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !m.IsLeader() {
		return fmt.Errorf("not the leader")
	}
	future := m.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return err
	}
	if m.Events != nil {
		m.Events.Publish(&events.Event{
			Type:     events.EventNodeJoined,
			Message:  "node admitted as raft voter",
			Metadata: map[string]string{"node_id": nodeID, "address": address},
		})
	}
	return nil
}

// RemoveServer removes a member from the cluster.
func (m *Manager) RemoveServer(nodeID string) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !m.IsLeader() {
		return fmt.Errorf("not the leader")
	}
	future := m.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return err
	}
	if m.Events != nil {
		m.Events.Publish(&events.Event{
			Type:     events.EventNodeLeft,
			Message:  "node removed from raft voter set",
			Metadata: map[string]string{"node_id": nodeID},
		})
	}
	return nil
}

// GetClusterServers returns the current raft configuration's server list.
func (m *Manager) GetClusterServers() ([]raft.Server, error) {
	if m.raft == nil {
		return nil, fmt.Errorf("raft not initialized")
	}
	future := m.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return nil, err
	}
	return future.Configuration().Servers, nil
}

// IsLeader reports whether this node currently holds raft leadership.
func (m *Manager) IsLeader() bool {
	return m.raft != nil && m.raft.State() == raft.Leader
}

// LeaderAddr returns the current leader's raft bind address, or "" if
// unknown.
func (m *Manager) LeaderAddr() string {
	if m.raft == nil {
		return ""
	}
	return string(m.raft.Leader())
}

// GetRaftStats returns a snapshot of raft state for metrics collection,
// consumed by pkg/metrics.Collector through the RaftStatsSource interface.
func (m *Manager) GetRaftStats() map[string]interface{} {
	if m.raft == nil {
		return map[string]interface{}{}
	}
	stats := m.raft.Stats()
	numPeers := 0
	if servers, err := m.GetClusterServers(); err == nil {
		numPeers = len(servers)
	}
	return map[string]interface{}{
		"state":          stats["state"],
		"last_log_index": stats["last_log_index"],
		"applied_index":  stats["applied_index"],
		"leader":         m.LeaderAddr(),
		"num_peers":      numPeers,
	}
}

// CountBrokerNodes implements pkg/metrics.BrokerNodeSource.
func (m *Manager) CountBrokerNodes() (int, error) {
	nodes, err := m.store.ListBrokerNodes("")
	if err != nil {
		return 0, err
	}
	return len(nodes), nil
}

// Apply replicates cmd through raft and blocks until it is committed,
// returning any application-level error the FSM produced.
func (m *Manager) Apply(cmd Command) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !m.IsLeader() {
		return fmt.Errorf("not the leader")
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RaftCommitDuration)

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	future := m.raft.Apply(data, 5*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("raft apply failed: %w", err)
	}

	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok && err != nil {
			return err
		}
	}
	return nil
}

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("meta: failed to marshal command payload: %v", err))
	}
	return data
}

// CreateBrokerNode registers a broker node through raft consensus.
func (m *Manager) CreateBrokerNode(node *metastore.BrokerNode) error {
	return m.Apply(Command{Op: opCreateBrokerNode, Data: mustMarshal(node)})
}

// DeleteBrokerNode removes a broker node's registration through raft consensus.
func (m *Manager) DeleteBrokerNode(nodeID uint64) error {
	return m.Apply(Command{Op: opDeleteBrokerNode, Data: mustMarshal(nodeID)})
}

// GetBrokerNode reads directly from the local metastore; reads do not
// go through raft.
func (m *Manager) GetBrokerNode(nodeID uint64) (*metastore.BrokerNode, error) {
	return m.store.GetBrokerNode(nodeID)
}

// ListBrokerNodes reads directly from the local metastore.
func (m *Manager) ListBrokerNodes(clusterName string) ([]*metastore.BrokerNode, error) {
	return m.store.ListBrokerNodes(clusterName)
}

// CreateACLUser adds a login credential record through raft consensus.
func (m *Manager) CreateACLUser(user *metastore.ACLUser) error {
	return m.Apply(Command{Op: opCreateACLUser, Data: mustMarshal(user)})
}

// DeleteACLUser removes a login credential record through raft consensus.
func (m *Manager) DeleteACLUser(username string) error {
	return m.Apply(Command{Op: opDeleteACLUser, Data: mustMarshal(username)})
}

// GetACLUser reads directly from the local metastore.
func (m *Manager) GetACLUser(username string) (*metastore.ACLUser, error) {
	return m.store.GetACLUser(username)
}

// CreateACLRule adds an access rule through raft consensus.
func (m *Manager) CreateACLRule(rule *metastore.ACLRule) error {
	return m.Apply(Command{Op: opCreateACLRule, Data: mustMarshal(rule)})
}

// DeleteACLRule removes an access rule through raft consensus.
func (m *Manager) DeleteACLRule(id string) error {
	return m.Apply(Command{Op: opDeleteACLRule, Data: mustMarshal(id)})
}

// ListACLRules reads directly from the local metastore.
func (m *Manager) ListACLRules() ([]*metastore.ACLRule, error) {
	return m.store.ListACLRules()
}

// SetKV writes a generic key through raft consensus.
func (m *Manager) SetKV(key string, value []byte) error {
	return m.Apply(Command{Op: opSetKV, Data: mustMarshal(kvCommandData{Key: key, Value: value})})
}

// DeleteKV removes a generic key through raft consensus.
func (m *Manager) DeleteKV(key string) error {
	return m.Apply(Command{Op: opDeleteKV, Data: mustMarshal(key)})
}

// GetKV reads directly from the local metastore.
func (m *Manager) GetKV(key string) ([]byte, error) {
	return m.store.GetKV(key)
}

// ExistsKV reads directly from the local metastore.
func (m *Manager) ExistsKV(key string) (bool, error) {
	return m.store.ExistsKV(key)
}

// ListKVByPrefix reads directly from the local metastore.
func (m *Manager) ListKVByPrefix(prefix string) (map[string][]byte, error) {
	return m.store.ListKVByPrefix(prefix)
}

// Close shuts down the raft transport and underlying metastore.
func (m *Manager) Close() error {
	if m.raft != nil {
		if err := m.raft.Shutdown().Error(); err != nil {
			return err
		}
	}
	return m.store.Close()
}
