package dispatcher

import (
	"net"
	"strconv"

	"github.com/robustmq/robustmq/pkg/cache"
	"github.com/robustmq/robustmq/pkg/connection"
	"github.com/robustmq/robustmq/pkg/events"
	"github.com/robustmq/robustmq/pkg/log"
	"github.com/robustmq/robustmq/pkg/packet"
	"github.com/robustmq/robustmq/pkg/sharedsub"
	"github.com/robustmq/robustmq/pkg/storage"
)

func handleConnect(d *Manager, conn *connection.Connection, addr net.Addr, pkt packet.Packet) (packet.Packet, bool) {
	req := pkt.(*packet.ConnectPacket)

	if d.Auth != nil {
		ok, err := d.Auth.CheckLogin(req.Username, req.Password)
		if err != nil {
			log.WithConnID(conn.ID).Warn().Err(err).Str("client_id", req.ClientID).Msg("auth backend error, refusing connect")
			return &packet.ConnackPacket{Reason: packet.ReasonUnspecifiedError}, true
		}
		if !ok {
			log.WithConnID(conn.ID).Warn().Str("client_id", req.ClientID).Str("username", req.Username).Msg("connect refused: bad username or password")
			return &packet.ConnackPacket{Reason: packet.ReasonBadUserNameOrPassword}, true
		}
	}

	conn.ClientID = req.ClientID
	conn.Username = req.Username
	conn.Protocol = req.ProtocolVersion
	conn.State = connection.StateEstablished

	if req.CleanStart {
		d.Cache.RemoveSession(req.ClientID)
	}
	d.Cache.PutSession(&cache.Session{
		ClientID:      req.ClientID,
		ConnID:        conn.ID,
		CleanStart:    req.CleanStart,
		Protocol:      req.ProtocolVersion,
		Subscriptions: make(map[string]packet.SubscribeFilter),
	})

	log.WithConnID(conn.ID).Info().Str("client_id", req.ClientID).Msg("client connected")

	if d.Events != nil {
		d.Events.Publish(&events.Event{
			Type:     events.EventClientConnected,
			Message:  "client connected",
			Metadata: map[string]string{"client_id": req.ClientID},
		})
	}

	return &packet.ConnackPacket{
		SessionPresent: false,
		Reason:         packet.ReasonSuccess,
	}, true
}

func handlePublish(d *Manager, conn *connection.Connection, addr net.Addr, pkt packet.Packet) (packet.Packet, bool) {
	pub := pkt.(*packet.PublishPacket)

	if d.Auth != nil && !d.Auth.AllowPublish(conn.Username, pub.Topic) {
		log.WithConnID(conn.ID).Warn().Str("topic", pub.Topic).Str("username", conn.Username).Msg("publish refused: not authorized")
		switch pub.QoS {
		case packet.QoS1:
			return &packet.PubackPacket{PacketID: pub.PacketID, Reason: packet.ReasonNotAuthorized}, true
		case packet.QoS2:
			return &packet.PubrecPacket{PacketID: pub.PacketID, Reason: packet.ReasonNotAuthorized}, true
		default:
			return nil, false
		}
	}

	if pub.Retain {
		d.Cache.SetRetained(pub.Topic, pub.Payload, pub.QoS)
	}

	d.fanOut(pub)
	d.streamForSharedSub(pub)

	switch pub.QoS {
	case packet.QoS0:
		return nil, false
	case packet.QoS1:
		return &packet.PubackPacket{PacketID: pub.PacketID, Reason: packet.ReasonSuccess}, true
	case packet.QoS2:
		d.qos2.startIncoming(pub.PacketID)
		return &packet.PubrecPacket{PacketID: pub.PacketID, Reason: packet.ReasonSuccess}, true
	default:
		return nil, false
	}
}

// fanOut delivers pub to every subscriber whose filter matches its
// topic, writing directly through the Connection Manager. Shared
// subscriptions ($share/...) are excluded here; those are handled by
// pkg/sharedsub's leader instead.
func (d *Manager) fanOut(pub *packet.PublishPacket) {
	for _, clientID := range d.Cache.Subscribers(pub.Topic) {
		session, ok := d.Cache.GetSession(clientID)
		if !ok {
			continue
		}
		delivered := &packet.PublishPacket{
			PacketID: pub.PacketID,
			Topic:    pub.Topic,
			Payload:  pub.Payload,
			QoS:      packet.Min(pub.QoS, qosForSubscriber(session, pub.Topic)),
			Retain:   false,
		}
		if err := d.writePacket(session.ConnID, session.Protocol, delivered); err != nil {
			log.WithConnID(session.ConnID).Warn().Err(err).Msg("failed to deliver publish, dropping")
		}
	}
}

// writePacket frames pkt for protocol via the dispatcher's codec and
// writes it through the Connection Manager's sink for connID.
func (d *Manager) writePacket(connID uint64, protocol packet.ProtocolVersion, pkt packet.Packet) error {
	frame, err := d.Codec.Encode(packet.Wrapper{ProtocolVersion: protocol, Packet: pkt})
	if err != nil {
		return err
	}
	return d.Connections.WriteTCPFrame(connID, frame)
}

// streamForSharedSub durably appends pub to its topic's shard so the
// shared-subscription pull task (spec section 4.7) can read it, but
// only when the topic actually has a live shared subscriber, to avoid
// paying stream-write cost on every ordinary publish.
func (d *Manager) streamForSharedSub(pub *packet.PublishPacket) {
	if d.SharedSub == nil {
		return
	}
	filter, ok := d.SharedSub.MatchFilter(pub.Topic)
	if !ok {
		return
	}
	if err := d.Storage.CreateShard(filter, storage.ShardConfig{}); err != nil {
		log.Logger.Warn().Err(err).Str("filter", filter).Msg("failed to create shared-sub shard")
		return
	}
	rec := storage.Record{
		Payload: pub.Payload,
		Headers: map[string]string{"qos": strconv.Itoa(int(pub.QoS))},
	}
	if _, err := d.Storage.StreamWrite(filter, []storage.Record{rec}); err != nil {
		log.Logger.Warn().Err(err).Str("filter", filter).Msg("failed to stream-write shared-sub record")
	}
}

// qosForSubscriber returns the QoS session granted the filter matching
// topic. When more than one filter matches, the highest granted QoS
// wins, matching MQTT's "deliver at the best QoS any matching
// subscription allows" semantics.
func qosForSubscriber(session *cache.Session, topic string) packet.QoS {
	best := packet.QoS0
	found := false
	for filterTopic, filter := range session.Subscriptions {
		if !packet.TopicMatches(filterTopic, topic) {
			continue
		}
		if !found || filter.QoS > best {
			best = filter.QoS
			found = true
		}
	}
	return best
}

func handlePuback(d *Manager, conn *connection.Connection, addr net.Addr, pkt packet.Packet) (packet.Packet, bool) {
	// QoS1 delivery confirmed by the peer; nothing further to do.
	return nil, false
}

func handlePubrec(d *Manager, conn *connection.Connection, addr net.Addr, pkt packet.Packet) (packet.Packet, bool) {
	rec := pkt.(*packet.PubrecPacket)
	return &packet.PubrelPacket{PacketID: rec.PacketID, Reason: packet.ReasonSuccess}, true
}

func handlePubrel(d *Manager, conn *connection.Connection, addr net.Addr, pkt packet.Packet) (packet.Packet, bool) {
	rel := pkt.(*packet.PubrelPacket)
	d.qos2.completeIncoming(rel.PacketID)
	return &packet.PubcompPacket{PacketID: rel.PacketID, Reason: packet.ReasonSuccess}, true
}

func handlePubcomp(d *Manager, conn *connection.Connection, addr net.Addr, pkt packet.Packet) (packet.Packet, bool) {
	comp := pkt.(*packet.PubcompPacket)
	d.qos2.completeOutgoing(comp.PacketID)
	return nil, false
}

func handleSubscribe(d *Manager, conn *connection.Connection, addr net.Addr, pkt packet.Packet) (packet.Packet, bool) {
	sub := pkt.(*packet.SubscribePacket)

	session, ok := d.Cache.GetSession(conn.ClientID)
	if !ok {
		session = &cache.Session{ClientID: conn.ClientID, ConnID: conn.ID, Subscriptions: make(map[string]packet.SubscribeFilter)}
	}

	reasons := make([]packet.ReasonCode, len(sub.Filters))
	for i, f := range sub.Filters {
		if d.Auth != nil && !d.Auth.AllowSubscribe(conn.Username, f.Topic) {
			log.WithConnID(conn.ID).Warn().Str("topic", f.Topic).Str("username", conn.Username).Msg("subscribe refused: not authorized")
			reasons[i] = packet.ReasonNotAuthorized
			continue
		}

		session.Subscriptions[f.Topic] = f
		if topic, shared := sharedsub.ParseShared(f.Topic); shared && d.SharedSub != nil {
			d.SharedSub.AddSubscriber(topic, conn.ClientID)
		} else {
			d.Cache.Subscribe(f.Topic, conn.ClientID)
		}
		reasons[i] = packet.ReasonCode(f.QoS)
	}
	d.Cache.PutSession(session)

	return &packet.SubackPacket{PacketID: sub.PacketID, Reasons: reasons}, true
}

func handleUnsubscribe(d *Manager, conn *connection.Connection, addr net.Addr, pkt packet.Packet) (packet.Packet, bool) {
	unsub := pkt.(*packet.UnsubscribePacket)

	session, ok := d.Cache.GetSession(conn.ClientID)
	reasons := make([]packet.ReasonCode, len(unsub.Topics))
	for i, filter := range unsub.Topics {
		if topic, shared := sharedsub.ParseShared(filter); shared && d.SharedSub != nil {
			d.SharedSub.RemoveSubscriber(topic, conn.ClientID)
		} else {
			d.Cache.Unsubscribe(filter, conn.ClientID)
		}
		if ok {
			delete(session.Subscriptions, filter)
		}
		reasons[i] = packet.ReasonSuccess
	}
	if ok {
		d.Cache.PutSession(session)
	}

	return &packet.UnsubackPacket{PacketID: unsub.PacketID, Reasons: reasons}, true
}

func handlePingreq(d *Manager, conn *connection.Connection, addr net.Addr, pkt packet.Packet) (packet.Packet, bool) {
	return &packet.PingrespPacket{}, true
}

func handleDisconnect(d *Manager, conn *connection.Connection, addr net.Addr, pkt packet.Packet) (packet.Packet, bool) {
	conn.State = connection.StateClosing

	if session, ok := d.Cache.GetSession(conn.ClientID); ok {
		for filter := range session.Subscriptions {
			if topic, shared := sharedsub.ParseShared(filter); shared && d.SharedSub != nil {
				d.SharedSub.RemoveSubscriber(topic, conn.ClientID)
			} else {
				d.Cache.Unsubscribe(filter, conn.ClientID)
			}
		}
	}
	d.Cache.RemoveSession(conn.ClientID)

	if d.Events != nil {
		d.Events.Publish(&events.Event{
			Type:     events.EventClientDisconnected,
			Message:  "client disconnected",
			Metadata: map[string]string{"client_id": conn.ClientID},
		})
	}

	return nil, false
}
