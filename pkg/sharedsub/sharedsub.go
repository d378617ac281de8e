package sharedsub

import (
	"strings"
	"sync"
	"time"

	"github.com/robustmq/robustmq/pkg/cache"
	"github.com/robustmq/robustmq/pkg/connection"
	"github.com/robustmq/robustmq/pkg/events"
	"github.com/robustmq/robustmq/pkg/log"
	"github.com/robustmq/robustmq/pkg/packet"
	"github.com/robustmq/robustmq/pkg/storage"
)

// SharedPrefix marks an MQTT shared-subscription filter:
// "$share/{group}/{topic filter}".
const SharedPrefix = "$share/"

// ParseShared splits a shared-subscription filter into its underlying
// topic. ok is false for an ordinary (non-shared) filter.
func ParseShared(filter string) (topic string, ok bool) {
	if !strings.HasPrefix(filter, SharedPrefix) {
		return "", false
	}
	rest := filter[len(SharedPrefix):]
	idx := strings.IndexByte(rest, '/')
	if idx < 0 {
		return "", false
	}
	return rest[idx+1:], true
}

const defaultScanInterval = time.Second

type leaderHandle struct {
	pullStop chan struct{}
	pushStop chan struct{}
	records  chan *storage.Record
}

// Manager owns the shared-subscription map and the live leader for
// each topic that currently has at least one shared subscriber.
type Manager struct {
	strategyName string
	scanInterval time.Duration

	storage     storage.Adapter
	cache       *cache.Manager
	connections *connection.Manager
	codec       packet.Codec

	// Events is optional: when set, a leader's start and teardown each
	// publish a lifecycle notification.
	Events *events.Broker

	mu      sync.Mutex
	subs    map[string][]string // topic -> subscriber client ids, insertion order
	leaders map[string]*leaderHandle

	stop chan struct{}
	wg   sync.WaitGroup
}

// Config carries the construction-time knobs NewManager needs from
// config.SubscribeConfig without importing the config package.
type Config struct {
	Strategy     string
	ScanInterval time.Duration
}

// NewManager builds a Manager; call Start to begin the supervisor loop.
func NewManager(cfg Config, store storage.Adapter, cacheMgr *cache.Manager, connections *connection.Manager, codec packet.Codec) *Manager {
	scan := cfg.ScanInterval
	if scan <= 0 {
		scan = defaultScanInterval
	}
	return &Manager{
		strategyName: cfg.Strategy,
		scanInterval: scan,
		storage:      store,
		cache:        cacheMgr,
		connections:  connections,
		codec:        codec,
		subs:         make(map[string][]string),
		leaders:      make(map[string]*leaderHandle),
		stop:         make(chan struct{}),
	}
}

// AddSubscriber records clientID as a shared subscriber of topic.
func (m *Manager) AddSubscriber(topic, clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[topic]
	for _, id := range list {
		if id == clientID {
			return
		}
	}
	m.subs[topic] = append(list, clientID)
}

// RemoveSubscriber drops clientID from topic's shared subscriber list.
// The entry is left in place (possibly empty) for the supervisor to
// notice and tear down, matching spec section 4.7's supervisor-driven
// leader lifecycle.
func (m *Manager) RemoveSubscriber(topic, clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[topic]
	for i, id := range list {
		if id == clientID {
			m.subs[topic] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Start begins the supervisor scan loop.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.run()
}

// Stop signals the supervisor and every live leader to terminate, and
// waits for them to drain.
func (m *Manager) Stop() {
	close(m.stop)
	m.wg.Wait()
}

func (m *Manager) run() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.scan()
		case <-m.stop:
			m.teardownAll()
			return
		}
	}
}

func (m *Manager) scan() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for topic, subs := range m.subs {
		handle, exists := m.leaders[topic]

		if len(subs) == 0 {
			if exists {
				signalStop(handle)
				delete(m.leaders, topic)
				m.publishEvent(events.EventSharedSubTornDown, "shared-sub leader torn down", topic)
			}
			delete(m.subs, topic)
			continue
		}

		if !exists {
			strategy, err := NewStrategy(m.strategyName)
			if err != nil {
				log.Logger.Error().Err(err).Str("topic", topic).Msg("cannot start shared-sub leader: unknown strategy")
				continue
			}
			h := &leaderHandle{
				pullStop: make(chan struct{}, 1),
				pushStop: make(chan struct{}, 1),
				records:  make(chan *storage.Record, 100),
			}
			m.leaders[topic] = h
			m.wg.Add(2)
			go m.pullTask(topic, h)
			go m.pushTask(topic, h, strategy)
			m.publishEvent(events.EventSharedSubLeader, "shared-sub leader started", topic)
		}
	}
}

func (m *Manager) teardownAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for topic, h := range m.leaders {
		signalStop(h)
		delete(m.leaders, topic)
		m.publishEvent(events.EventSharedSubTornDown, "shared-sub leader torn down", topic)
	}
}

// publishEvent is a no-op when Events is unset.
func (m *Manager) publishEvent(typ events.EventType, msg, topic string) {
	if m.Events == nil {
		return
	}
	m.Events.Publish(&events.Event{Type: typ, Message: msg, Metadata: map[string]string{"topic": topic}})
}

// signalStop is a best-effort, idempotent wake of both of a leader's
// tasks: the stop channels are buffered by one, so a signal that is
// already pending (or has just been delivered) never blocks the
// supervisor.
func signalStop(h *leaderHandle) {
	select {
	case h.pullStop <- struct{}{}:
	default:
	}
	select {
	case h.pushStop <- struct{}{}:
	default:
	}
}

// HasSubscribers reports whether topic currently has at least one live
// shared subscriber, used by the publish path to decide whether a
// record needs to be durably streamed for the pull task to pick up.
func (m *Manager) HasSubscribers(topic string) bool {
	_, ok := m.MatchFilter(topic)
	return ok
}

// MatchFilter returns the shared-subscription filter (if any) whose
// wildcard pattern covers topic, along with the live subscriber count
// for that filter. The matched filter is also the shard name the
// filter's leader pull task reads from, so publish-path callers must
// stream records under this name, not the concrete topic, for the
// leader to ever see them.
func (m *Manager) MatchFilter(topic string) (filter string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for f, subs := range m.subs {
		if len(subs) > 0 && packet.TopicMatches(f, topic) {
			return f, true
		}
	}
	return "", false
}

func (m *Manager) subscribersSnapshot(topic string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[topic]
	out := make([]string, len(subs))
	copy(out, subs)
	return out
}

func (m *Manager) isLocal(clientID string) bool {
	session, ok := m.cache.GetSession(clientID)
	if !ok {
		return false
	}
	_, ok = m.connections.GetConnect(session.ConnID)
	return ok
}
