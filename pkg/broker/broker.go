package broker

import (
	"context"
	"strconv"
	"time"

	"github.com/robustmq/robustmq/pkg/client"
	"github.com/robustmq/robustmq/pkg/connection"
	"github.com/robustmq/robustmq/pkg/log"
	"github.com/robustmq/robustmq/pkg/rpcapi"
)

const registerTimeout = 10 * time.Second
const defaultHeartbeatInterval = 5 * time.Second

// Config carries the identity and network details this broker node
// registers with the placement center.
type Config struct {
	ClusterName       string
	NodeID            uint64
	NodeIP            string
	NodeInnerAddr     string
	HeartbeatInterval time.Duration
}

// Broker is the broker-side half of the register/heartbeat protocol
// (spec section 4.2); the MQTT listener itself lives in pkg/network.
type Broker struct {
	cfg       Config
	placement *client.PlacementClient

	connections *connection.Manager

	stopCh chan struct{}
}

// New builds a Broker. placement must already be constructed against
// the placement center's address (see pkg/client.NewPlacementClient).
func New(cfg Config, placement *client.PlacementClient, connections *connection.Manager) *Broker {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	return &Broker{
		cfg:         cfg,
		placement:   placement,
		connections: connections,
		stopCh:      make(chan struct{}),
	}
}

// Start registers this node with the placement center and starts the
// heartbeat loop exactly once — the teacher's worker started its
// heartbeat loop a single time from Start, and this mirrors it
// deliberately since a duplicated call would double the placement
// center's registration traffic for no benefit.
func (b *Broker) Start(ctx context.Context) error {
	regCtx, cancel := context.WithTimeout(ctx, registerTimeout)
	defer cancel()

	_, err := b.placement.RegisterNode(regCtx, &rpcapi.RegisterNodeRequest{
		ClusterName:   b.cfg.ClusterName,
		NodeID:        b.cfg.NodeID,
		NodeIP:        b.cfg.NodeIP,
		NodeInnerAddr: b.cfg.NodeInnerAddr,
	})
	if err != nil {
		return err
	}

	log.WithNodeID(nodeIDString(b.cfg.NodeID)).Info().Str("cluster", b.cfg.ClusterName).Msg("broker registered with placement center")

	go b.heartbeatLoop()

	return nil
}

// Stop signals the heartbeat loop to exit and unregisters this node.
func (b *Broker) Stop(ctx context.Context) error {
	close(b.stopCh)

	_, err := b.placement.UnRegisterNode(ctx, &rpcapi.UnRegisterNodeRequest{
		ClusterName: b.cfg.ClusterName,
		NodeID:      b.cfg.NodeID,
	})
	return err
}

func (b *Broker) heartbeatLoop() {
	ticker := time.NewTicker(b.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := b.sendHeartbeat(); err != nil {
				log.WithNodeID(nodeIDString(b.cfg.NodeID)).Warn().Err(err).Msg("heartbeat failed")
			}
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) sendHeartbeat() error {
	ctx, cancel := context.WithTimeout(context.Background(), registerTimeout)
	defer cancel()

	_, err := b.placement.Heartbeat(ctx, &rpcapi.HeartbeatRequest{
		ClusterName: b.cfg.ClusterName,
		NodeID:      b.cfg.NodeID,
	})
	return err
}

// ConnectionCount exposes the broker's live connection count for the
// admin/health surface.
func (b *Broker) ConnectionCount() int {
	return b.connections.Count()
}

func nodeIDString(id uint64) string {
	return strconv.FormatUint(id, 10)
}
