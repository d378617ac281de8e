package sharedsub

import (
	"fmt"
	"strconv"
	"time"

	"github.com/robustmq/robustmq/pkg/cache"
	"github.com/robustmq/robustmq/pkg/log"
	"github.com/robustmq/robustmq/pkg/packet"
	"github.com/robustmq/robustmq/pkg/storage"
)

const pullMaxWait = 500 * time.Millisecond
const pullBatchSize = 100

// pullTask implements spec section 4.7's pull loop: read a batch from
// the topic's durable consumer group, commit the offset, and forward
// each record to the push task over h.records.
func (m *Manager) pullTask(topic string, h *leaderHandle) {
	defer m.wg.Done()
	defer close(h.records)

	group := fmt.Sprintf("system_sub_%s", topic)

	for {
		select {
		case <-h.pullStop:
			return
		default:
		}

		recs, err := m.storage.StreamRead(topic, group, pullBatchSize, 0)
		if err != nil {
			log.Logger.Warn().Err(err).Str("topic", topic).Msg("shared-sub pull failed, retrying")
			if sleepOrStop(pullMaxWait, h.pullStop) {
				return
			}
			continue
		}

		if len(recs) == 0 {
			if sleepOrStop(pullMaxWait, h.pullStop) {
				return
			}
			continue
		}

		last := recs[len(recs)-1]
		if _, err := m.storage.StreamCommitOffset(topic, group, last.Offset); err != nil {
			log.Logger.Warn().Err(err).Str("topic", topic).Msg("shared-sub offset commit failed")
		}

		for i := range recs {
			select {
			case h.records <- &recs[i]:
			case <-h.pullStop:
				return
			}
		}
	}
}

func sleepOrStop(d time.Duration, stop chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return false
	case <-stop:
		return true
	}
}

// pushTask implements spec section 4.7's push loop: drain h.records and
// deliver each one to a subscriber chosen by strategy. A delivery
// failure drops only that copy; the leader itself only stops on signal.
func (m *Manager) pushTask(topic string, h *leaderHandle, strategy Strategy) {
	defer m.wg.Done()
	for {
		select {
		case <-h.pushStop:
			return
		case rec, ok := <-h.records:
			if !ok {
				return
			}
			m.deliver(topic, rec, strategy)
		}
	}
}

func (m *Manager) deliver(topic string, rec *storage.Record, strategy Strategy) {
	subs := m.subscribersSnapshot(topic)
	if len(subs) == 0 {
		return
	}

	clientID, ok := strategy.Pick(subs, rec, m.isLocal)
	if !ok {
		return
	}

	session, ok := m.cache.GetSession(clientID)
	if !ok {
		return
	}

	pub := &packet.PublishPacket{
		Topic:   topic,
		Payload: rec.Payload,
		QoS:     packet.Min(recordQoS(rec), sharedSubQoS(session, topic)),
		Retain:  false,
		Properties: packet.PublishProperties{
			UserProperties: map[string]string{"robustmq-shared-sub-rewrite": "true"},
		},
	}

	frame, err := m.codec.Encode(packet.Wrapper{ProtocolVersion: session.Protocol, Packet: pub})
	if err != nil {
		log.Logger.Error().Err(err).Str("topic", topic).Msg("failed to encode shared-sub publish")
		return
	}
	if err := m.connections.WriteTCPFrame(session.ConnID, frame); err != nil {
		log.WithConnID(session.ConnID).Warn().Err(err).Msg("shared-sub delivery dropped")
	}
}

// recordQoS recovers the QoS a record was published at from its
// headers (set by the publish handler when it writes the record),
// defaulting to QoS0 if absent.
func recordQoS(rec *storage.Record) packet.QoS {
	if rec.Headers == nil {
		return packet.QoS0
	}
	v, ok := rec.Headers["qos"]
	if !ok {
		return packet.QoS0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > 2 {
		return packet.QoS0
	}
	return packet.QoS(n)
}

// sharedSubQoS finds the granted QoS for the shared-subscription filter
// on session that maps to topic.
func sharedSubQoS(session *cache.Session, topic string) packet.QoS {
	for filter, sub := range session.Subscriptions {
		if t, ok := ParseShared(filter); ok && t == topic {
			return sub.QoS
		}
	}
	return packet.QoS0
}
