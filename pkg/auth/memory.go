package auth

import (
	"sync"

	"github.com/robustmq/robustmq/pkg/metastore"
)

// MemoryBackend is the auth.Backend counterpart to storage.MemoryAdapter:
// an in-process store for single-node development and tests, with no
// placement center dependency.
type MemoryBackend struct {
	mu    sync.RWMutex
	users map[string]*metastore.ACLUser
	rules []*metastore.ACLRule
}

// NewMemoryBackend builds an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{users: make(map[string]*metastore.ACLUser)}
}

// PutUser registers or replaces a credential record.
func (b *MemoryBackend) PutUser(user *metastore.ACLUser) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[user.Username] = user
}

// PutRule appends an access rule.
func (b *MemoryBackend) PutRule(rule *metastore.ACLRule) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rules = append(b.rules, rule)
}

func (b *MemoryBackend) GetUser(username string) (*metastore.ACLUser, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	user, ok := b.users[username]
	return user, ok, nil
}

func (b *MemoryBackend) ListRules() ([]*metastore.ACLRule, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rules := make([]*metastore.ACLRule, len(b.rules))
	copy(rules, b.rules)
	return rules, nil
}
