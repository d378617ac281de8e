// Package metastore is the placement center's embedded key-value layer: a
// bucket-per-entity store for broker node registration, ACL state, and the
// generic KV namespace the broker reads/writes over pkg/rpcapi. It is
// applied exclusively from the Raft FSM in pkg/meta, never written to
// directly by RPC handlers, so every mutation goes through consensus.
package metastore

// Store defines the placement center's durable state surface.
type Store interface {
	// Broker nodes
	CreateBrokerNode(node *BrokerNode) error
	GetBrokerNode(nodeID uint64) (*BrokerNode, error)
	ListBrokerNodes(clusterName string) ([]*BrokerNode, error)
	DeleteBrokerNode(nodeID uint64) error

	// ACL users
	CreateACLUser(user *ACLUser) error
	GetACLUser(username string) (*ACLUser, error)
	ListACLUsers() ([]*ACLUser, error)
	DeleteACLUser(username string) error

	// ACL rules
	CreateACLRule(rule *ACLRule) error
	ListACLRules() ([]*ACLRule, error)
	DeleteACLRule(id string) error

	// Generic KV namespace (session/retained-message state, shard metadata)
	SetKV(key string, value []byte) error
	GetKV(key string) ([]byte, error)
	DeleteKV(key string) error
	ExistsKV(key string) (bool, error)
	ListKVByPrefix(prefix string) (map[string][]byte, error)

	Close() error
}
