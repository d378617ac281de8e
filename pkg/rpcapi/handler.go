package rpcapi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	robustmqerrors "github.com/robustmq/robustmq/pkg/errors"
	"github.com/robustmq/robustmq/pkg/log"
	"github.com/robustmq/robustmq/pkg/metastore"
)

// MetaManager is the subset of pkg/meta.Manager the Handler needs. A
// narrow interface here, rather than importing pkg/meta directly, keeps
// pkg/rpcapi free to be exercised by tests with a fake.
type MetaManager interface {
	IsLeader() bool
	LeaderAddr() string

	CreateBrokerNode(node *metastore.BrokerNode) error
	DeleteBrokerNode(nodeID uint64) error
	GetBrokerNode(nodeID uint64) (*metastore.BrokerNode, error)
	ListBrokerNodes(clusterName string) ([]*metastore.BrokerNode, error)

	SetKV(key string, value []byte) error
	GetKV(key string) ([]byte, error)
	DeleteKV(key string) error

	AddVoter(nodeID, address string) error
	RemoveServer(nodeID string) error

	CreateACLUser(user *metastore.ACLUser) error
	DeleteACLUser(username string) error
	GetACLUser(username string) (*metastore.ACLUser, error)
	CreateACLRule(rule *metastore.ACLRule) error
	DeleteACLRule(id string) error
	ListACLRules() ([]*metastore.ACLRule, error)
}

// RaftTransport applies an inbound raft RPC payload and returns the
// transport's response payload. No type in this module implements it:
// cmd/placement-center builds the Handler with a nil RaftTransport (raft
// peers talk over hashicorp/raft's own TCP transport), so SendRaftMessage
// there returns ErrRaftTransportNotConfigured.
type RaftTransport interface {
	HandleRaftRPC(message []byte) ([]byte, error)
}

// Handler implements Server on top of a placement center Manager.
type Handler struct {
	manager MetaManager
	raft    RaftTransport
}

// NewHandler builds a Handler serving RPCs against manager and raft.
func NewHandler(manager MetaManager, raft RaftTransport) *Handler {
	return &Handler{manager: manager, raft: raft}
}

func (h *Handler) ensureLeader() error {
	if !h.manager.IsLeader() {
		leader := h.manager.LeaderAddr()
		if leader == "" {
			return fmt.Errorf("%w: no leader elected yet", robustmqerrors.ErrNotLeader)
		}
		return fmt.Errorf("%w, current leader is at %s", robustmqerrors.ErrNotLeader, leader)
	}
	return nil
}

func (h *Handler) RegisterNode(ctx context.Context, req *RegisterNodeRequest) (*CommonReply, error) {
	if err := h.ensureLeader(); err != nil {
		return &CommonReply{Success: false, Error: err.Error()}, nil
	}

	node := &metastore.BrokerNode{
		NodeID:        req.NodeID,
		ClusterName:   req.ClusterName,
		NodeIP:        req.NodeIP,
		NodeInnerAddr: req.NodeInnerAddr,
		ExtendInfo:    req.ExtendInfo,
		RegisterTime:  time.Now(),
		LastHeartbeat: time.Now(),
	}

	if err := h.manager.CreateBrokerNode(node); err != nil {
		return &CommonReply{Success: false, Error: err.Error()}, nil
	}

	log.WithNodeID(fmt.Sprint(req.NodeID)).Info().
		Str("cluster", req.ClusterName).
		Msg("broker node registered")

	return &CommonReply{Success: true}, nil
}

func (h *Handler) UnRegisterNode(ctx context.Context, req *UnRegisterNodeRequest) (*CommonReply, error) {
	if err := h.ensureLeader(); err != nil {
		return &CommonReply{Success: false, Error: err.Error()}, nil
	}
	if err := h.manager.DeleteBrokerNode(req.NodeID); err != nil {
		return &CommonReply{Success: false, Error: err.Error()}, nil
	}
	return &CommonReply{Success: true}, nil
}

func (h *Handler) Heartbeat(ctx context.Context, req *HeartbeatRequest) (*CommonReply, error) {
	node, err := h.manager.GetBrokerNode(req.NodeID)
	if err != nil {
		return &CommonReply{Success: false, Error: err.Error()}, nil
	}

	if err := h.ensureLeader(); err != nil {
		return &CommonReply{Success: false, Error: err.Error()}, nil
	}

	node.LastHeartbeat = time.Now()
	if err := h.manager.CreateBrokerNode(node); err != nil {
		return &CommonReply{Success: false, Error: err.Error()}, nil
	}
	return &CommonReply{Success: true}, nil
}

func (h *Handler) SendRaftMessage(ctx context.Context, req *SendRaftMessageRequest) (*SendRaftMessageReply, error) {
	if h.raft == nil {
		return nil, robustmqerrors.ErrRaftTransportNotConfigured
	}
	resp, err := h.raft.HandleRaftRPC(req.Message)
	if err != nil {
		return nil, fmt.Errorf("raft rpc failed: %w", err)
	}
	return &SendRaftMessageReply{Message: resp}, nil
}

func (h *Handler) SendRaftConfChange(ctx context.Context, req *SendRaftConfChangeRequest) (*SendRaftConfChangeReply, error) {
	var change struct {
		Add     bool   `json:"add"`
		NodeID  string `json:"node_id"`
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Message, &change); err != nil {
		return &SendRaftConfChangeReply{Success: false, Error: err.Error()}, nil
	}

	var err error
	if change.Add {
		err = h.manager.AddVoter(change.NodeID, change.Address)
	} else {
		err = h.manager.RemoveServer(change.NodeID)
	}
	if err != nil {
		return &SendRaftConfChangeReply{Success: false, Error: err.Error()}, nil
	}
	return &SendRaftConfChangeReply{Success: true}, nil
}

func (h *Handler) NodeList(ctx context.Context, req *NodeListRequest) (*NodeListReply, error) {
	nodes, err := h.manager.ListBrokerNodes(req.ClusterName)
	if err != nil {
		return nil, err
	}

	reply := &NodeListReply{Nodes: make([][]byte, 0, len(nodes))}
	for _, node := range nodes {
		data, err := json.Marshal(node)
		if err != nil {
			return nil, fmt.Errorf("failed to encode broker node: %w", err)
		}
		reply.Nodes = append(reply.Nodes, data)
	}
	return reply, nil
}

func (h *Handler) SetKV(ctx context.Context, req *SetKVRequest) (*CommonReply, error) {
	if err := h.ensureLeader(); err != nil {
		return &CommonReply{Success: false, Error: err.Error()}, nil
	}
	if err := h.manager.SetKV(req.Key, req.Value); err != nil {
		return &CommonReply{Success: false, Error: err.Error()}, nil
	}
	return &CommonReply{Success: true}, nil
}

func (h *Handler) GetKV(ctx context.Context, req *GetKVRequest) (*GetKVReply, error) {
	value, err := h.manager.GetKV(req.Key)
	if err != nil {
		return &GetKVReply{Found: false}, nil
	}
	return &GetKVReply{Value: value, Found: true}, nil
}

func (h *Handler) DeleteKV(ctx context.Context, req *DeleteKVRequest) (*CommonReply, error) {
	if err := h.ensureLeader(); err != nil {
		return &CommonReply{Success: false, Error: err.Error()}, nil
	}
	if err := h.manager.DeleteKV(req.Key); err != nil {
		return &CommonReply{Success: false, Error: err.Error()}, nil
	}
	return &CommonReply{Success: true}, nil
}

func (h *Handler) CreateACLUser(ctx context.Context, req *CreateACLUserRequest) (*CommonReply, error) {
	if err := h.ensureLeader(); err != nil {
		return &CommonReply{Success: false, Error: err.Error()}, nil
	}
	user := &metastore.ACLUser{
		Username:     req.Username,
		PasswordHash: req.PasswordHash,
		IsSuperuser:  req.IsSuperuser,
	}
	if err := h.manager.CreateACLUser(user); err != nil {
		return &CommonReply{Success: false, Error: err.Error()}, nil
	}
	return &CommonReply{Success: true}, nil
}

func (h *Handler) DeleteACLUser(ctx context.Context, req *DeleteACLUserRequest) (*CommonReply, error) {
	if err := h.ensureLeader(); err != nil {
		return &CommonReply{Success: false, Error: err.Error()}, nil
	}
	if err := h.manager.DeleteACLUser(req.Username); err != nil {
		return &CommonReply{Success: false, Error: err.Error()}, nil
	}
	return &CommonReply{Success: true}, nil
}

func (h *Handler) GetACLUser(ctx context.Context, req *GetACLUserRequest) (*GetACLUserReply, error) {
	user, err := h.manager.GetACLUser(req.Username)
	if err != nil {
		return &GetACLUserReply{Found: false}, nil
	}
	data, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("failed to encode acl user: %w", err)
	}
	return &GetACLUserReply{User: data, Found: true}, nil
}

func (h *Handler) CreateACLRule(ctx context.Context, req *CreateACLRuleRequest) (*CommonReply, error) {
	if err := h.ensureLeader(); err != nil {
		return &CommonReply{Success: false, Error: err.Error()}, nil
	}
	rule := &metastore.ACLRule{
		ID:         req.ID,
		Username:   req.Username,
		Topic:      req.Topic,
		Permission: metastore.ACLPermission(req.Permission),
		Action:     metastore.ACLAction(req.Action),
	}
	if err := h.manager.CreateACLRule(rule); err != nil {
		return &CommonReply{Success: false, Error: err.Error()}, nil
	}
	return &CommonReply{Success: true}, nil
}

func (h *Handler) DeleteACLRule(ctx context.Context, req *DeleteACLRuleRequest) (*CommonReply, error) {
	if err := h.ensureLeader(); err != nil {
		return &CommonReply{Success: false, Error: err.Error()}, nil
	}
	if err := h.manager.DeleteACLRule(req.ID); err != nil {
		return &CommonReply{Success: false, Error: err.Error()}, nil
	}
	return &CommonReply{Success: true}, nil
}

func (h *Handler) ListACLRules(ctx context.Context, req *ListACLRulesRequest) (*ListACLRulesReply, error) {
	rules, err := h.manager.ListACLRules()
	if err != nil {
		return nil, err
	}

	reply := &ListACLRulesReply{Rules: make([][]byte, 0, len(rules))}
	for _, rule := range rules {
		data, err := json.Marshal(rule)
		if err != nil {
			return nil, fmt.Errorf("failed to encode acl rule: %w", err)
		}
		reply.Rules = append(reply.Rules, data)
	}
	return reply, nil
}
