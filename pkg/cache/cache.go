package cache

import (
	"sync"

	"github.com/robustmq/robustmq/pkg/packet"
)

// Session is the broker's view of one MQTT client's durable state
// across reconnects.
type Session struct {
	ClientID      string
	ConnID        uint64
	CleanStart    bool
	Protocol      packet.ProtocolVersion
	Subscriptions map[string]packet.SubscribeFilter // topic filter -> subscription
}

// RetainedMessage is the last retained PUBLISH recorded for a topic.
type RetainedMessage struct {
	Topic   string
	Payload []byte
	QoS     packet.QoS
}

// Manager is the broker's in-memory Cache Manager: sessions, per-topic
// subscribers, and retained messages, each its own concurrent map with
// per-key atomic updates, per spec section 5's "no global lock" policy.
type Manager struct {
	sessions  sync.Map // clientID -> *Session
	retained  sync.Map // topic -> *RetainedMessage
	topicSubs sync.Map // topic filter -> *sync.Map (clientID -> struct{})
}

// NewManager builds an empty Cache Manager.
func NewManager() *Manager {
	return &Manager{}
}

// PutSession registers or replaces a client's session.
func (m *Manager) PutSession(s *Session) {
	m.sessions.Store(s.ClientID, s)
}

// GetSession looks up a session by client id.
func (m *Manager) GetSession(clientID string) (*Session, bool) {
	v, ok := m.sessions.Load(clientID)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// RemoveSession deletes a client's session, used on clean-start
// reconnects and explicit DISCONNECT.
func (m *Manager) RemoveSession(clientID string) {
	m.sessions.Delete(clientID)
}

// Subscribe records clientID as a subscriber of filter.
func (m *Manager) Subscribe(filter, clientID string) {
	v, _ := m.topicSubs.LoadOrStore(filter, &sync.Map{})
	subs := v.(*sync.Map)
	subs.Store(clientID, struct{}{})
}

// Unsubscribe removes clientID from filter's subscriber set.
func (m *Manager) Unsubscribe(filter, clientID string) {
	v, ok := m.topicSubs.Load(filter)
	if !ok {
		return
	}
	subs := v.(*sync.Map)
	subs.Delete(clientID)
}

// Subscribers returns the client ids whose subscription filter matches
// topic, per MQTT wildcard semantics (packet.TopicMatches): an exact
// filter as well as "+"/"#" filters that cover topic all qualify.
func (m *Manager) Subscribers(topic string) []string {
	var ids []string
	m.topicSubs.Range(func(k, v interface{}) bool {
		filter := k.(string)
		if !packet.TopicMatches(filter, topic) {
			return true
		}
		subs := v.(*sync.Map)
		subs.Range(func(k, _ interface{}) bool {
			ids = append(ids, k.(string))
			return true
		})
		return true
	})
	return ids
}

// SetRetained stores the retained message for topic, or clears it when
// payload is empty, matching MQTT's retained-message semantics.
func (m *Manager) SetRetained(topic string, payload []byte, qos packet.QoS) {
	if len(payload) == 0 {
		m.retained.Delete(topic)
		return
	}
	m.retained.Store(topic, &RetainedMessage{Topic: topic, Payload: payload, QoS: qos})
}

// GetRetained returns the retained message for topic, if any.
func (m *Manager) GetRetained(topic string) (*RetainedMessage, bool) {
	v, ok := m.retained.Load(topic)
	if !ok {
		return nil, false
	}
	return v.(*RetainedMessage), true
}
