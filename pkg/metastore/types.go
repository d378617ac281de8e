package metastore

import "time"

// BrokerNode is a registered MQTT broker process, as seen by the
// placement center. It is the JSON-encoded payload returned by
// NodeListRequest in pkg/rpcapi.
type BrokerNode struct {
	NodeID        uint64            `json:"node_id"`
	ClusterName   string            `json:"cluster_name"`
	NodeIP        string            `json:"node_ip"`
	NodeInnerAddr string            `json:"node_inner_addr"`
	ExtendInfo    map[string]string `json:"extend_info"`
	RegisterTime  time.Time         `json:"register_time"`
	LastHeartbeat time.Time         `json:"last_heartbeat"`
}

// ACLUser is a broker login credential record.
type ACLUser struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	IsSuperuser  bool   `json:"is_superuser"`
}

// ACLPermission is the effect of an ACLRule.
type ACLPermission string

const (
	PermissionAllow ACLPermission = "allow"
	PermissionDeny  ACLPermission = "deny"
)

// ACLAction is the operation an ACLRule governs.
type ACLAction string

const (
	ActionPublish   ACLAction = "publish"
	ActionSubscribe ACLAction = "subscribe"
	ActionAll       ACLAction = "all"
)

// ACLRule grants or denies a username access to a topic pattern.
type ACLRule struct {
	ID         string        `json:"id"`
	Username   string        `json:"username"`
	Topic      string        `json:"topic"`
	Permission ACLPermission `json:"permission"`
	Action     ACLAction     `json:"action"`
}
