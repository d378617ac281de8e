package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robustmq/robustmq/pkg/config"
	"github.com/robustmq/robustmq/pkg/metastore"
)

func newTestUser(t *testing.T, username, password string, superuser bool) *metastore.ACLUser {
	t.Helper()
	hash, err := HashPassword([]byte(password))
	require.NoError(t, err)
	return &metastore.ACLUser{Username: username, PasswordHash: hash, IsSuperuser: superuser}
}

func TestCheckLoginSecretFreeAlwaysAllows(t *testing.T) {
	d := NewDriver(NewMemoryBackend(), true)
	ok, err := d.CheckLogin("anyone", []byte("wrong"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheckLoginPlaintextMatch(t *testing.T) {
	backend := NewMemoryBackend()
	backend.PutUser(newTestUser(t, "alice", "s3cret", false))
	d := NewDriver(backend, false)

	ok, err := d.CheckLogin("alice", []byte("s3cret"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.CheckLogin("alice", []byte("wrong"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckLoginUnknownUserDenied(t *testing.T) {
	d := NewDriver(NewMemoryBackend(), false)
	ok, err := d.CheckLogin("ghost", []byte("anything"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckLoginEmptyUsernameDenied(t *testing.T) {
	d := NewDriver(NewMemoryBackend(), false)
	ok, err := d.CheckLogin("", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAllowPublishDeniedWithoutMatchingRule(t *testing.T) {
	backend := NewMemoryBackend()
	backend.PutUser(newTestUser(t, "alice", "s3cret", false))
	d := NewDriver(backend, false)
	_, _ = d.CheckLogin("alice", []byte("s3cret")) // warm the user cache

	assert.False(t, d.AllowPublish("alice", "sensors/temp"))
}

func TestAllowPublishGrantedByMatchingAllowRule(t *testing.T) {
	backend := NewMemoryBackend()
	backend.PutUser(newTestUser(t, "alice", "s3cret", false))
	backend.PutRule(&metastore.ACLRule{
		ID: "r1", Username: "alice", Topic: "sensors/#",
		Permission: metastore.PermissionAllow, Action: metastore.ActionPublish,
	})
	d := NewDriver(backend, false)
	_, _ = d.CheckLogin("alice", []byte("s3cret"))

	assert.True(t, d.AllowPublish("alice", "sensors/temp"))
	assert.False(t, d.AllowSubscribe("alice", "sensors/temp"))
}

func TestAllowDenyRuleWinsOverAllow(t *testing.T) {
	backend := NewMemoryBackend()
	backend.PutUser(newTestUser(t, "alice", "s3cret", false))
	backend.PutRule(&metastore.ACLRule{
		ID: "r1", Username: "alice", Topic: "#",
		Permission: metastore.PermissionAllow, Action: metastore.ActionAll,
	})
	backend.PutRule(&metastore.ACLRule{
		ID: "r2", Username: "alice", Topic: "secret/#",
		Permission: metastore.PermissionDeny, Action: metastore.ActionAll,
	})
	d := NewDriver(backend, false)
	_, _ = d.CheckLogin("alice", []byte("s3cret"))

	assert.True(t, d.AllowPublish("alice", "public/topic"))
	assert.False(t, d.AllowPublish("alice", "secret/keys"))
}

func TestAllowSuperuserBypassesACL(t *testing.T) {
	backend := NewMemoryBackend()
	backend.PutUser(newTestUser(t, "root", "s3cret", true))
	d := NewDriver(backend, false)
	_, _ = d.CheckLogin("root", []byte("s3cret"))

	assert.True(t, d.AllowPublish("root", "anything/at/all"))
	assert.True(t, d.AllowSubscribe("root", "anything/at/all"))
}

func TestNewBackendFactory(t *testing.T) {
	mem, err := NewBackend(config.AuthConfig{StorageType: "memory"}, nil)
	require.NoError(t, err)
	_, ok := mem.(*MemoryBackend)
	assert.True(t, ok)

	_, err = NewBackend(config.AuthConfig{StorageType: "bogus"}, nil)
	assert.Error(t, err)
}
