package metastore

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketBrokerNodes = []byte("broker_nodes")
	bucketACLUsers    = []byte("acl_users")
	bucketACLRules    = []byte("acl_rules")
	bucketKV          = []byte("kv")
)

// BoltStore implements Store using an embedded bbolt database, one bucket
// per entity, JSON-encoded values.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) the placement center's
// on-disk metastore under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "robustmq-meta.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open metastore database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketBrokerNodes, bucketACLUsers, bucketACLRules, bucketKV} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// --- Broker nodes ---

func (s *BoltStore) CreateBrokerNode(node *BrokerNode) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBrokerNodes)
		data, err := json.Marshal(node)
		if err != nil {
			return err
		}
		return b.Put(nodeKey(node.NodeID), data)
	})
}

func (s *BoltStore) GetBrokerNode(nodeID uint64) (*BrokerNode, error) {
	var node BrokerNode
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBrokerNodes)
		data := b.Get(nodeKey(nodeID))
		if data == nil {
			return fmt.Errorf("broker node not found: %d", nodeID)
		}
		return json.Unmarshal(data, &node)
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (s *BoltStore) ListBrokerNodes(clusterName string) ([]*BrokerNode, error) {
	var nodes []*BrokerNode
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBrokerNodes)
		return b.ForEach(func(k, v []byte) error {
			var node BrokerNode
			if err := json.Unmarshal(v, &node); err != nil {
				return err
			}
			if clusterName == "" || node.ClusterName == clusterName {
				nodes = append(nodes, &node)
			}
			return nil
		})
	})
	return nodes, err
}

func (s *BoltStore) DeleteBrokerNode(nodeID uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBrokerNodes)
		return b.Delete(nodeKey(nodeID))
	})
}

func nodeKey(nodeID uint64) []byte {
	return []byte(fmt.Sprintf("%020d", nodeID))
}

// --- ACL users ---

func (s *BoltStore) CreateACLUser(user *ACLUser) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketACLUsers)
		data, err := json.Marshal(user)
		if err != nil {
			return err
		}
		return b.Put([]byte(user.Username), data)
	})
}

func (s *BoltStore) GetACLUser(username string) (*ACLUser, error) {
	var user ACLUser
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketACLUsers)
		data := b.Get([]byte(username))
		if data == nil {
			return fmt.Errorf("acl user not found: %s", username)
		}
		return json.Unmarshal(data, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *BoltStore) ListACLUsers() ([]*ACLUser, error) {
	var users []*ACLUser
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketACLUsers)
		return b.ForEach(func(k, v []byte) error {
			var user ACLUser
			if err := json.Unmarshal(v, &user); err != nil {
				return err
			}
			users = append(users, &user)
			return nil
		})
	})
	return users, err
}

func (s *BoltStore) DeleteACLUser(username string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketACLUsers)
		return b.Delete([]byte(username))
	})
}

// --- ACL rules ---

func (s *BoltStore) CreateACLRule(rule *ACLRule) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketACLRules)
		data, err := json.Marshal(rule)
		if err != nil {
			return err
		}
		return b.Put([]byte(rule.ID), data)
	})
}

func (s *BoltStore) ListACLRules() ([]*ACLRule, error) {
	var rules []*ACLRule
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketACLRules)
		return b.ForEach(func(k, v []byte) error {
			var rule ACLRule
			if err := json.Unmarshal(v, &rule); err != nil {
				return err
			}
			rules = append(rules, &rule)
			return nil
		})
	})
	return rules, err
}

func (s *BoltStore) DeleteACLRule(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketACLRules)
		return b.Delete([]byte(id))
	})
}

// --- Generic KV ---

func (s *BoltStore) SetKV(key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV)
		return b.Put([]byte(key), value)
	})
}

func (s *BoltStore) GetKV(key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV)
		data := b.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("key not found: %s", key)
		}
		value = append([]byte(nil), data...)
		return nil
	})
	return value, err
}

func (s *BoltStore) DeleteKV(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV)
		return b.Delete([]byte(key))
	})
}

func (s *BoltStore) ExistsKV(key string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV)
		found = b.Get([]byte(key)) != nil
		return nil
	})
	return found, err
}

func (s *BoltStore) ListKVByPrefix(prefix string) (map[string][]byte, error) {
	result := make(map[string][]byte)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV)
		c := b.Cursor()
		prefixBytes := []byte(prefix)
		for k, v := c.Seek(prefixBytes); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
			result[string(k)] = append([]byte(nil), v...)
		}
		return nil
	})
	return result, err
}
