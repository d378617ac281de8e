package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/robustmq/robustmq/pkg/packet"
)

func TestManagerSessionLifecycle(t *testing.T) {
	m := NewManager()

	_, ok := m.GetSession("client-a")
	assert.False(t, ok)

	m.PutSession(&Session{ClientID: "client-a", ConnID: 1})
	session, ok := m.GetSession("client-a")
	assert.True(t, ok)
	assert.Equal(t, uint64(1), session.ConnID)

	m.RemoveSession("client-a")
	_, ok = m.GetSession("client-a")
	assert.False(t, ok)
}

func TestManagerSubscribersExactFilter(t *testing.T) {
	m := NewManager()
	m.Subscribe("t/a", "client-a")
	m.Subscribe("t/a", "client-b")

	ids := m.Subscribers("t/a")
	assert.ElementsMatch(t, []string{"client-a", "client-b"}, ids)

	m.Unsubscribe("t/a", "client-a")
	assert.Equal(t, []string{"client-b"}, m.Subscribers("t/a"))
}

func TestManagerSubscribersWildcardFilter(t *testing.T) {
	m := NewManager()
	m.Subscribe("sport/tennis/#", "client-a")
	m.Subscribe("sport/+/player1", "client-b")

	assert.ElementsMatch(t, []string{"client-a", "client-b"}, m.Subscribers("sport/tennis/player1"))
	assert.Equal(t, []string{"client-a"}, m.Subscribers("sport/tennis/player2"))
	assert.Empty(t, m.Subscribers("weather/today"))
}

func TestManagerRetainedMessages(t *testing.T) {
	m := NewManager()

	_, ok := m.GetRetained("t/a")
	assert.False(t, ok)

	m.SetRetained("t/a", []byte("hello"), packet.QoS1)
	retained, ok := m.GetRetained("t/a")
	assert.True(t, ok)
	assert.Equal(t, []byte("hello"), retained.Payload)
	assert.Equal(t, packet.QoS1, retained.QoS)

	// Empty payload clears a retained message, per MQTT retained semantics.
	m.SetRetained("t/a", nil, packet.QoS0)
	_, ok = m.GetRetained("t/a")
	assert.False(t, ok)
}
