package meta

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"
	"github.com/robustmq/robustmq/pkg/metastore"
)

// FSM implements the Raft finite state machine for placement center state:
// broker node registration, ACL users/rules, and the generic KV namespace.
// Every committed log entry is applied here and nowhere else, matching
// cuemby-warren's WarrenFSM.
type FSM struct {
	mu    sync.RWMutex
	store metastore.Store
}

// NewFSM creates a new FSM instance
func NewFSM(store metastore.Store) *FSM {
	return &FSM{store: store}
}

// Command represents a state change operation in the Raft log
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

const (
	opCreateBrokerNode = "create_broker_node"
	opDeleteBrokerNode = "delete_broker_node"
	opCreateACLUser    = "create_acl_user"
	opDeleteACLUser    = "delete_acl_user"
	opCreateACLRule    = "create_acl_rule"
	opDeleteACLRule    = "delete_acl_rule"
	opSetKV            = "set_kv"
	opDeleteKV         = "delete_kv"
)

type kvCommandData struct {
	Key   string `json:"key"`
	Value []byte `json:"value,omitempty"`
}

// Apply applies a committed Raft log entry to the FSM.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case opCreateBrokerNode:
		var node metastore.BrokerNode
		if err := json.Unmarshal(cmd.Data, &node); err != nil {
			return err
		}
		return f.store.CreateBrokerNode(&node)

	case opDeleteBrokerNode:
		var nodeID uint64
		if err := json.Unmarshal(cmd.Data, &nodeID); err != nil {
			return err
		}
		return f.store.DeleteBrokerNode(nodeID)

	case opCreateACLUser:
		var user metastore.ACLUser
		if err := json.Unmarshal(cmd.Data, &user); err != nil {
			return err
		}
		return f.store.CreateACLUser(&user)

	case opDeleteACLUser:
		var username string
		if err := json.Unmarshal(cmd.Data, &username); err != nil {
			return err
		}
		return f.store.DeleteACLUser(username)

	case opCreateACLRule:
		var rule metastore.ACLRule
		if err := json.Unmarshal(cmd.Data, &rule); err != nil {
			return err
		}
		return f.store.CreateACLRule(&rule)

	case opDeleteACLRule:
		var id string
		if err := json.Unmarshal(cmd.Data, &id); err != nil {
			return err
		}
		return f.store.DeleteACLRule(id)

	case opSetKV:
		var data kvCommandData
		if err := json.Unmarshal(cmd.Data, &data); err != nil {
			return err
		}
		return f.store.SetKV(data.Key, data.Value)

	case opDeleteKV:
		var key string
		if err := json.Unmarshal(cmd.Data, &key); err != nil {
			return err
		}
		return f.store.DeleteKV(key)

	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}
}

// Snapshot creates a point-in-time snapshot of the FSM's state.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	nodes, err := f.store.ListBrokerNodes("")
	if err != nil {
		return nil, fmt.Errorf("failed to list broker nodes: %w", err)
	}
	users, err := f.store.ListACLUsers()
	if err != nil {
		return nil, fmt.Errorf("failed to list acl users: %w", err)
	}
	rules, err := f.store.ListACLRules()
	if err != nil {
		return nil, fmt.Errorf("failed to list acl rules: %w", err)
	}
	kv, err := f.store.ListKVByPrefix("")
	if err != nil {
		return nil, fmt.Errorf("failed to list kv entries: %w", err)
	}

	return &Snapshot{
		BrokerNodes: nodes,
		ACLUsers:    users,
		ACLRules:    rules,
		KV:          kv,
	}, nil
}

// Restore restores the FSM from a snapshot read from rc.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snapshot Snapshot
	if err := json.NewDecoder(rc).Decode(&snapshot); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, node := range snapshot.BrokerNodes {
		if err := f.store.CreateBrokerNode(node); err != nil {
			return fmt.Errorf("failed to restore broker node: %w", err)
		}
	}
	for _, user := range snapshot.ACLUsers {
		if err := f.store.CreateACLUser(user); err != nil {
			return fmt.Errorf("failed to restore acl user: %w", err)
		}
	}
	for _, rule := range snapshot.ACLRules {
		if err := f.store.CreateACLRule(rule); err != nil {
			return fmt.Errorf("failed to restore acl rule: %w", err)
		}
	}
	for key, value := range snapshot.KV {
		if err := f.store.SetKV(key, value); err != nil {
			return fmt.Errorf("failed to restore kv entry: %w", err)
		}
	}

	return nil
}

// Snapshot is the point-in-time state the FSM persists and restores from.
type Snapshot struct {
	BrokerNodes []*metastore.BrokerNode
	ACLUsers    []*metastore.ACLUser
	ACLRules    []*metastore.ACLRule
	KV          map[string][]byte
}

// Persist writes the snapshot to the given SnapshotSink.
func (s *Snapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()

	if err != nil {
		sink.Cancel()
	}
	return err
}

// Release releases any held snapshot resources; the JSON snapshot holds
// nothing beyond process memory, so this is a no-op.
func (s *Snapshot) Release() {}
