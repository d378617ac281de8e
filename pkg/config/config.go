// Package config loads the YAML configuration file shared by the placement
// center and broker binaries and layers cobra flag overrides on top of it,
// the same way cmd/warren/main.go layers --log-level/--log-json over
// defaults before pkg/log.Init runs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// NetworkTCP configures the staged TCP/TLS server's accept and queue sizing.
type NetworkTCP struct {
	AcceptThreadNum   int `yaml:"accept_thread_num"`
	HandlerThreadNum  int `yaml:"handler_thread_num"`
	ResponseThreadNum int `yaml:"response_thread_num"`
	MaxConnections    int `yaml:"max_connections"`
	RequestQueueSize  int `yaml:"request_queue_size"`
	ResponseQueueSize int `yaml:"response_queue_size"`
}

// NetworkTLS configures the optional TLS listener.
type NetworkTLS struct {
	Enable   bool   `yaml:"enable"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// MQTTConfig carries the MQTT-specific listener and protocol knobs.
type MQTTConfig struct {
	TCPPort            uint16        `yaml:"tcp_port"`
	TLSPort            uint16        `yaml:"tls_port"`
	MaxPacketSize      uint32        `yaml:"max_packet_size"`
	DefaultSessionTTL  time.Duration `yaml:"default_session_ttl"`
	ReceiveMax         uint16        `yaml:"receive_max"`
	TopicAliasMax      uint16        `yaml:"topic_alias_max"`
	ServerKeepAliveSec uint16        `yaml:"server_keep_alive_sec"`
}

// SubscribeConfig controls shared-subscription fan-out behavior.
type SubscribeConfig struct {
	SharedSubscriptionStrategy string        `yaml:"shared_subscription_strategy"`
	SupervisorScanInterval     time.Duration `yaml:"supervisor_scan_interval"`
}

// AuthConfig selects and configures the pluggable ACL/login backend.
type AuthConfig struct {
	StorageType     string `yaml:"storage_type"`      // "placement" or "memory"
	SecretFreeLogin bool   `yaml:"secret_free_login"` // skip username/password checks entirely
}

// RuntimeConfig sizes the process-wide worker pools.
type RuntimeConfig struct {
	WorkerThreads int `yaml:"worker_threads"`
}

// PlacementCenterConfig configures the Raft node and its bbolt-backed store.
// NodeID is the raft ServerID, which hashicorp/raft models as a string.
type PlacementCenterConfig struct {
	NodeID          string   `yaml:"node_id"`
	RaftBindAddr    string   `yaml:"raft_bind_addr"`
	RPCAddr         string   `yaml:"rpc_addr"`
	DataDir         string   `yaml:"data_dir"`
	BootstrapPeers  []string `yaml:"bootstrap_peers"`
	HeartbeatMillis int      `yaml:"heartbeat_millis"`
}

// Config is the root configuration tree, loaded from a robustmq.yaml file.
// NodeID here is the numeric broker node id used to register this process
// with the placement center (metastore.BrokerNode.NodeID); it is distinct
// from Placement.NodeID, the raft ServerID string.
type Config struct {
	ClusterName     string                `yaml:"cluster_name"`
	NodeID          uint64                `yaml:"node_id"`
	PlacementCenter []string              `yaml:"placement_center"`
	NetworkTCP      NetworkTCP            `yaml:"network_tcp"`
	NetworkTLS      NetworkTLS            `yaml:"network_tls"`
	MQTT            MQTTConfig            `yaml:"mqtt"`
	Subscribe       SubscribeConfig       `yaml:"subscribe"`
	Auth            AuthConfig            `yaml:"auth"`
	Runtime         RuntimeConfig         `yaml:"runtime"`
	Placement       PlacementCenterConfig `yaml:"placement"`
	LogLevel        string                `yaml:"log_level"`
	LogJSON         bool                  `yaml:"log_json"`
}

// Default returns a Config populated with single-node development
// defaults. PlacementCenter has no default, so Validate rejects the
// result until at least one placement_center address is set.
func Default() *Config {
	return &Config{
		ClusterName: "robustmq-cluster-default",
		NetworkTCP: NetworkTCP{
			AcceptThreadNum:   1,
			HandlerThreadNum:  8,
			ResponseThreadNum: 4,
			MaxConnections:    1000,
			RequestQueueSize:  2000,
			ResponseQueueSize: 2000,
		},
		MQTT: MQTTConfig{
			TCPPort:            1883,
			TLSPort:            8883,
			MaxPacketSize:      1024 * 1024,
			DefaultSessionTTL:  2 * time.Hour,
			ReceiveMax:         65535,
			TopicAliasMax:      65535,
			ServerKeepAliveSec: 60,
		},
		Subscribe: SubscribeConfig{
			SharedSubscriptionStrategy: "round_robin",
			SupervisorScanInterval:     time.Second,
		},
		Auth: AuthConfig{
			StorageType: "placement",
		},
		Runtime: RuntimeConfig{
			WorkerThreads: 4,
		},
		Placement: PlacementCenterConfig{
			RaftBindAddr:    "127.0.0.1:1229",
			RPCAddr:         "127.0.0.1:1228",
			DataDir:         "./data/placement-center",
			HeartbeatMillis: 1000,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file, merging it over Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the invariants the rest of the module assumes hold.
func (c *Config) Validate() error {
	if c.ClusterName == "" {
		return fmt.Errorf("cluster_name must not be empty")
	}
	if c.NetworkTCP.AcceptThreadNum <= 0 {
		return fmt.Errorf("network_tcp.accept_thread_num must be positive")
	}
	if c.NetworkTCP.HandlerThreadNum <= 0 {
		return fmt.Errorf("network_tcp.handler_thread_num must be positive")
	}
	switch c.Subscribe.SharedSubscriptionStrategy {
	case "round_robin", "random", "sticky", "hash", "local":
	default:
		return fmt.Errorf("subscribe.shared_subscription_strategy %q is not one of round_robin|random|sticky|hash|local", c.Subscribe.SharedSubscriptionStrategy)
	}
	if len(c.PlacementCenter) == 0 {
		return fmt.Errorf("placement_center must list at least one address")
	}
	switch c.Auth.StorageType {
	case "memory", "placement":
	default:
		return fmt.Errorf("auth.storage_type %q is not one of memory|placement", c.Auth.StorageType)
	}
	return nil
}
