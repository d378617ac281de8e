package sharedsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robustmq/robustmq/pkg/cache"
	"github.com/robustmq/robustmq/pkg/connection"
	"github.com/robustmq/robustmq/pkg/packet"
	"github.com/robustmq/robustmq/pkg/storage"
)

func TestParseShared(t *testing.T) {
	tests := []struct {
		name       string
		filter     string
		wantTopic  string
		wantShared bool
	}{
		{"shared filter", "$share/workers/jobs/#", "jobs/#", true},
		{"shared filter single level", "$share/g/t", "t", true},
		{"ordinary filter", "jobs/#", "", false},
		{"malformed, missing group separator", "$share/workers", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topic, ok := ParseShared(tt.filter)
			assert.Equal(t, tt.wantShared, ok)
			if ok {
				assert.Equal(t, tt.wantTopic, topic)
			}
		})
	}
}

func newTestManager() *Manager {
	return NewManager(Config{Strategy: "round_robin"}, storage.NewMemoryAdapter(), cache.NewManager(), connection.NewManager(), packet.NewMQTTCodec())
}

func TestAddRemoveSubscriberDedupes(t *testing.T) {
	m := newTestManager()

	m.AddSubscriber("t/#", "client-a")
	m.AddSubscriber("t/#", "client-a")
	m.AddSubscriber("t/#", "client-b")

	assert.True(t, m.HasSubscribers("t/x"))

	m.RemoveSubscriber("t/#", "client-a")
	m.RemoveSubscriber("t/#", "client-b")
	assert.False(t, m.HasSubscribers("t/x"))
}

func TestMatchFilterResolvesWildcardToFilterName(t *testing.T) {
	m := newTestManager()
	m.AddSubscriber("t/#", "client-a")

	filter, ok := m.MatchFilter("t/x")
	require.True(t, ok)
	assert.Equal(t, "t/#", filter)

	_, ok = m.MatchFilter("u/x")
	assert.False(t, ok)
}

func TestHasSubscribersFalseWhenSubscriberListEmpty(t *testing.T) {
	m := newTestManager()
	assert.False(t, m.HasSubscribers("t/x"))
}
