package auth

import (
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/robustmq/robustmq/pkg/metastore"
	"github.com/robustmq/robustmq/pkg/packet"
)

// Driver is the Go shape of the original implementation's AuthDriver: a
// login/publish/subscribe decision surface layered over a Backend, with a
// read-through cache so a hot connection path does not round-trip to the
// backend on every packet.
type Driver struct {
	backend    Backend
	secretFree bool

	mu    sync.RWMutex
	users map[string]*metastore.ACLUser
	rules []*metastore.ACLRule
}

// NewDriver builds a Driver over backend. secretFreeLogin mirrors the
// original's cluster.security.secret_free_login flag: when set, every
// login and ACL check short-circuits to allowed.
func NewDriver(backend Backend, secretFreeLogin bool) *Driver {
	return &Driver{
		backend:    backend,
		secretFree: secretFreeLogin,
		users:      make(map[string]*metastore.ACLUser),
	}
}

// CheckLogin authenticates username/password, the Go shape of
// AuthDriver::check_login_auth's secret-free short-circuit followed by a
// plaintext credential check, with a cache-miss fallback to the backend
// matching try_get_check_user_by_driver.
func (d *Driver) CheckLogin(username string, password []byte) (bool, error) {
	if d.secretFree {
		return true, nil
	}
	if username == "" {
		return false, nil
	}

	user, ok := d.cachedUser(username)
	if !ok {
		loaded, found, err := d.backend.GetUser(username)
		if err != nil {
			return false, err
		}
		if !found {
			return false, nil
		}
		d.cacheUser(loaded)
		user = loaded
	}

	return checkPasswordHash(user.PasswordHash, password), nil
}

// AllowPublish reports whether username may publish to topic, the Go
// shape of AuthDriver::allow_publish.
func (d *Driver) AllowPublish(username, topic string) bool {
	return d.isAllowed(username, topic, metastore.ActionPublish)
}

// AllowSubscribe reports whether username may subscribe to topic, the Go
// shape of AuthDriver::allow_subscribe.
func (d *Driver) AllowSubscribe(username, topic string) bool {
	return d.isAllowed(username, topic, metastore.ActionSubscribe)
}

// isAllowed evaluates username's ACL rules against topic for action.
// Deny rules always win; absent any matching rule, access is denied,
// except for a superuser or an empty-username secret-free connection,
// which are always allowed. The original's is_allow_acl body was not
// present in the retrieval pack, so this deny-by-default, deny-overrides
// precedence is this module's own resolution (see DESIGN.md).
func (d *Driver) isAllowed(username, topic string, action metastore.ACLAction) bool {
	if d.secretFree {
		return true
	}
	if user, ok := d.cachedUser(username); ok && user.IsSuperuser {
		return true
	}

	rules, err := d.cachedRules()
	if err != nil {
		return false
	}

	allowed := false
	for _, rule := range rules {
		if rule.Username != username {
			continue
		}
		if rule.Action != action && rule.Action != metastore.ActionAll {
			continue
		}
		if !packet.TopicMatches(rule.Topic, topic) {
			continue
		}
		if rule.Permission == metastore.PermissionDeny {
			return false
		}
		allowed = true
	}
	return allowed
}

func (d *Driver) cachedUser(username string) (*metastore.ACLUser, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	user, ok := d.users[username]
	return user, ok
}

func (d *Driver) cacheUser(user *metastore.ACLUser) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[user.Username] = user
}

// cachedRules loads the rule set from the backend on first use. A rule
// added after that point is not visible until the process restarts or
// RefreshRules is called; spec section 9 does not require a push-based
// cache invalidation path.
func (d *Driver) cachedRules() ([]*metastore.ACLRule, error) {
	d.mu.RLock()
	rules := d.rules
	d.mu.RUnlock()
	if rules != nil {
		return rules, nil
	}

	loaded, err := d.backend.ListRules()
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.rules = loaded
	d.mu.Unlock()
	return loaded, nil
}

// RefreshRules forces the next ACL check to reload the rule set from the
// backend, for callers that just wrote a new rule through it.
func (d *Driver) RefreshRules() {
	d.mu.Lock()
	d.rules = nil
	d.mu.Unlock()
}

func checkPasswordHash(hash string, password []byte) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), password) == nil
}

// HashPassword hashes a plaintext password for storage in an
// metastore.ACLUser.PasswordHash field.
func HashPassword(password []byte) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(password, bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
