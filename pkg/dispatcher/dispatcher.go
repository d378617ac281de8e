package dispatcher

import (
	"net"
	"time"

	"github.com/robustmq/robustmq/pkg/auth"
	"github.com/robustmq/robustmq/pkg/cache"
	"github.com/robustmq/robustmq/pkg/connection"
	"github.com/robustmq/robustmq/pkg/events"
	"github.com/robustmq/robustmq/pkg/metrics"
	"github.com/robustmq/robustmq/pkg/packet"
	"github.com/robustmq/robustmq/pkg/sharedsub"
	"github.com/robustmq/robustmq/pkg/storage"
)

// Handler processes one decoded packet for a connection and optionally
// returns a packet to write back, per spec section 4.6's
// apply(manager, conn, addr, packet) -> Option<MQTTPacket>.
type Handler func(d *Manager, conn *connection.Connection, addr net.Addr, pkt packet.Packet) (packet.Packet, bool)

// Manager is the Command Dispatcher: it owns the collaborators handlers
// need (connections, cache, storage) and the QoS2 state machine, and
// routes each packet kind to its handler.
type Manager struct {
	Connections *connection.Manager
	Cache       *cache.Manager
	Storage     storage.Adapter
	Codec       packet.Codec

	// SharedSub is optional: a broker that never configures shared
	// subscriptions can run the dispatcher without it.
	SharedSub *sharedsub.Manager

	// Auth is optional: when nil, CONNECT/PUBLISH/SUBSCRIBE are admitted
	// unconditionally, matching a broker with no auth backend configured.
	Auth *auth.Driver

	// Events is optional: when set, connect/disconnect publish a
	// lifecycle notification for anything subscribed to the bus
	// (admin tooling, metrics exporters, audit logging).
	Events *events.Broker

	qos2 *qos2Table

	handlers map[packet.Kind]Handler

	sweepStop chan struct{}
}

const qos2SweepInterval = 5 * time.Second

// Start begins the QoS2 handshake-state sweeper. Call Stop to terminate
// it on shutdown.
func (d *Manager) Start() {
	d.sweepStop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(qos2SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				d.qos2.sweepExpired(now)
			case <-d.sweepStop:
				return
			}
		}
	}()
}

// Stop signals the sweeper goroutine to exit.
func (d *Manager) Stop() {
	if d.sweepStop != nil {
		close(d.sweepStop)
	}
}

// NewManager builds a dispatcher wired to the given collaborators. codec
// frames the packets the dispatcher writes back onto a connection's wire
// (direct publish fan-out, acks); the decode side of the same codec lives
// in the staged server's reader stage.
func NewManager(connections *connection.Manager, cacheMgr *cache.Manager, store storage.Adapter, codec packet.Codec, sharedSub *sharedsub.Manager) *Manager {
	d := &Manager{
		Connections: connections,
		Cache:       cacheMgr,
		Storage:     store,
		Codec:       codec,
		SharedSub:   sharedSub,
		qos2:        newQoS2Table(),
	}
	d.handlers = map[packet.Kind]Handler{
		packet.KindConnect:     handleConnect,
		packet.KindPublish:     handlePublish,
		packet.KindPuback:      handlePuback,
		packet.KindPubrec:      handlePubrec,
		packet.KindPubrel:      handlePubrel,
		packet.KindPubcomp:     handlePubcomp,
		packet.KindSubscribe:   handleSubscribe,
		packet.KindUnsubscribe: handleUnsubscribe,
		packet.KindPingreq:     handlePingreq,
		packet.KindDisconnect:  handleDisconnect,
	}
	return d
}

// Apply dispatches pkt to its handler. The bool result reports whether a
// response packet is due; when false, no wire response is sent for this
// inbound packet.
func (d *Manager) Apply(conn *connection.Connection, addr net.Addr, pkt packet.Packet) (packet.Packet, bool) {
	timer := metrics.NewTimer()
	kind := pkt.Kind()
	defer timer.ObserveDurationVec(metrics.PacketHandleDuration, kind.String())
	metrics.PacketsReceivedTotal.WithLabelValues(kind.String()).Inc()

	handler, ok := d.handlers[kind]
	if !ok {
		return nil, false
	}
	return handler(d, conn, addr, pkt)
}
