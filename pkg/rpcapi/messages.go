package rpcapi

// CommonReply is the shared reply envelope for fire-and-forget placement
// RPCs, matching spec section 6's RegisterNodeRequest/UnRegisterNodeRequest/
// HeartbeatRequest reply type.
type CommonReply struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RegisterNodeRequest registers a broker process with the placement center.
type RegisterNodeRequest struct {
	ClusterName   string            `json:"cluster_name"`
	NodeID        uint64            `json:"node_id"`
	NodeIP        string            `json:"node_ip"`
	NodeInnerAddr string            `json:"node_inner_addr"`
	ExtendInfo    map[string]string `json:"extend_info,omitempty"`
}

// UnRegisterNodeRequest removes a broker's registration.
type UnRegisterNodeRequest struct {
	ClusterName string `json:"cluster_name"`
	NodeID      uint64 `json:"node_id"`
}

// HeartbeatRequest keeps a registered node's last-seen timestamp fresh.
type HeartbeatRequest struct {
	ClusterName string `json:"cluster_name"`
	NodeID      uint64 `json:"node_id"`
}

// SendRaftMessageRequest carries an opaque hashicorp/raft RPC payload
// between placement center peers.
type SendRaftMessageRequest struct {
	Message []byte `json:"message"`
}

// SendRaftMessageReply carries the raft transport's response payload.
type SendRaftMessageReply struct {
	Message []byte `json:"message"`
}

// SendRaftConfChangeRequest asks the leader to add or remove a voter.
type SendRaftConfChangeRequest struct {
	Message []byte `json:"message"`
}

// SendRaftConfChangeReply acknowledges a configuration change.
type SendRaftConfChangeReply struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// NodeListRequest asks for every broker node registered to a cluster.
type NodeListRequest struct {
	ClusterName string `json:"cluster_name"`
}

// NodeListReply returns each node as a JSON-encoded metastore.BrokerNode,
// matching spec section 6's {nodes: [bytes]} shape.
type NodeListReply struct {
	Nodes [][]byte `json:"nodes"`
}

// SetKVRequest writes a generic key through the placement center's
// raft-replicated KV namespace.
type SetKVRequest struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

// GetKVRequest reads a key from the placement center's KV namespace.
type GetKVRequest struct {
	Key string `json:"key"`
}

// GetKVReply returns the value and whether the key existed.
type GetKVReply struct {
	Value []byte `json:"value"`
	Found bool   `json:"found"`
}

// DeleteKVRequest removes a key from the placement center's KV namespace.
type DeleteKVRequest struct {
	Key string `json:"key"`
}

// CreateACLUserRequest registers a login credential record. PasswordHash
// must already be hashed (auth.HashPassword) — the placement center never
// sees a plaintext password.
type CreateACLUserRequest struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	IsSuperuser  bool   `json:"is_superuser"`
}

// DeleteACLUserRequest removes a login credential record.
type DeleteACLUserRequest struct {
	Username string `json:"username"`
}

// GetACLUserRequest looks up one login credential record.
type GetACLUserRequest struct {
	Username string `json:"username"`
}

// GetACLUserReply returns the JSON-encoded metastore.ACLUser, if found.
type GetACLUserReply struct {
	User  []byte `json:"user"`
	Found bool   `json:"found"`
}

// CreateACLRuleRequest adds an access rule.
type CreateACLRuleRequest struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Topic      string `json:"topic"`
	Permission string `json:"permission"`
	Action     string `json:"action"`
}

// DeleteACLRuleRequest removes an access rule by id.
type DeleteACLRuleRequest struct {
	ID string `json:"id"`
}

// ListACLRulesRequest asks for every access rule known to the cluster.
type ListACLRulesRequest struct{}

// ListACLRulesReply returns each rule as a JSON-encoded metastore.ACLRule.
type ListACLRulesReply struct {
	Rules [][]byte `json:"rules"`
}
