package rpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	robustmqerrors "github.com/robustmq/robustmq/pkg/errors"
	"github.com/robustmq/robustmq/pkg/metastore"
)

// fakeMetaManager is an in-memory MetaManager for exercising Handler
// without a real raft group.
type fakeMetaManager struct {
	leader bool
	users  map[string]*metastore.ACLUser
	rules  []*metastore.ACLRule
}

func newFakeMetaManager() *fakeMetaManager {
	return &fakeMetaManager{leader: true, users: make(map[string]*metastore.ACLUser)}
}

func (f *fakeMetaManager) IsLeader() bool     { return f.leader }
func (f *fakeMetaManager) LeaderAddr() string { return "127.0.0.1:1228" }

func (f *fakeMetaManager) CreateBrokerNode(*metastore.BrokerNode) error { return nil }
func (f *fakeMetaManager) DeleteBrokerNode(uint64) error                { return nil }
func (f *fakeMetaManager) GetBrokerNode(uint64) (*metastore.BrokerNode, error) {
	return nil, errors.New("not found")
}
func (f *fakeMetaManager) ListBrokerNodes(string) ([]*metastore.BrokerNode, error) { return nil, nil }

func (f *fakeMetaManager) SetKV(string, []byte) error     { return nil }
func (f *fakeMetaManager) GetKV(string) ([]byte, error)   { return nil, errors.New("not found") }
func (f *fakeMetaManager) DeleteKV(string) error          { return nil }
func (f *fakeMetaManager) AddVoter(string, string) error  { return nil }
func (f *fakeMetaManager) RemoveServer(string) error      { return nil }

func (f *fakeMetaManager) CreateACLUser(user *metastore.ACLUser) error {
	f.users[user.Username] = user
	return nil
}
func (f *fakeMetaManager) DeleteACLUser(username string) error {
	delete(f.users, username)
	return nil
}
func (f *fakeMetaManager) GetACLUser(username string) (*metastore.ACLUser, error) {
	user, ok := f.users[username]
	if !ok {
		return nil, robustmqerrors.ErrACLUserNotFound
	}
	return user, nil
}
func (f *fakeMetaManager) CreateACLRule(rule *metastore.ACLRule) error {
	f.rules = append(f.rules, rule)
	return nil
}
func (f *fakeMetaManager) DeleteACLRule(id string) error {
	kept := f.rules[:0]
	for _, r := range f.rules {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	f.rules = kept
	return nil
}
func (f *fakeMetaManager) ListACLRules() ([]*metastore.ACLRule, error) { return f.rules, nil }

func TestHandlerCreateAndGetACLUser(t *testing.T) {
	h := NewHandler(newFakeMetaManager(), nil)

	reply, err := h.CreateACLUser(context.Background(), &CreateACLUserRequest{
		Username: "alice", PasswordHash: "hash", IsSuperuser: false,
	})
	require.NoError(t, err)
	assert.True(t, reply.Success)

	got, err := h.GetACLUser(context.Background(), &GetACLUserRequest{Username: "alice"})
	require.NoError(t, err)
	require.True(t, got.Found)

	var user metastore.ACLUser
	require.NoError(t, json.Unmarshal(got.User, &user))
	assert.Equal(t, "alice", user.Username)
}

func TestHandlerGetACLUserNotFound(t *testing.T) {
	h := NewHandler(newFakeMetaManager(), nil)
	reply, err := h.GetACLUser(context.Background(), &GetACLUserRequest{Username: "ghost"})
	require.NoError(t, err)
	assert.False(t, reply.Found)
}

func TestHandlerCreateACLRuleRejectedWhenNotLeader(t *testing.T) {
	manager := newFakeMetaManager()
	manager.leader = false
	h := NewHandler(manager, nil)

	reply, err := h.CreateACLRule(context.Background(), &CreateACLRuleRequest{
		ID: "r1", Username: "alice", Topic: "t/#", Permission: "allow", Action: "publish",
	})
	require.NoError(t, err)
	assert.False(t, reply.Success)
}

func TestHandlerListACLRules(t *testing.T) {
	manager := newFakeMetaManager()
	h := NewHandler(manager, nil)

	_, err := h.CreateACLRule(context.Background(), &CreateACLRuleRequest{
		ID: "r1", Username: "alice", Topic: "t/#", Permission: "allow", Action: "publish",
	})
	require.NoError(t, err)

	reply, err := h.ListACLRules(context.Background(), &ListACLRulesRequest{})
	require.NoError(t, err)
	require.Len(t, reply.Rules, 1)

	var rule metastore.ACLRule
	require.NoError(t, json.Unmarshal(reply.Rules[0], &rule))
	assert.Equal(t, "alice", rule.Username)
}

func TestHandlerSendRaftMessageWithoutTransportReturnsTypedError(t *testing.T) {
	h := NewHandler(newFakeMetaManager(), nil)

	_, err := h.SendRaftMessage(context.Background(), &SendRaftMessageRequest{Message: []byte("x")})
	require.Error(t, err)
	assert.ErrorIs(t, err, robustmqerrors.ErrRaftTransportNotConfigured)
}

type fakeRaftTransport struct{ response []byte }

func (f *fakeRaftTransport) HandleRaftRPC(message []byte) ([]byte, error) {
	return f.response, nil
}

func TestHandlerSendRaftMessageWithTransport(t *testing.T) {
	h := NewHandler(newFakeMetaManager(), &fakeRaftTransport{response: []byte("ok")})

	reply, err := h.SendRaftMessage(context.Background(), &SendRaftMessageRequest{Message: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), reply.Message)
}
