package sharedsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robustmq/robustmq/pkg/storage"
)

func notLocal(string) bool { return false }

func TestNewStrategyUnknown(t *testing.T) {
	_, err := NewStrategy("not-a-strategy")
	assert.Error(t, err)
}

func TestRoundRobinStrategyCyclesSubscribers(t *testing.T) {
	s, err := NewStrategy("round_robin")
	require.NoError(t, err)

	subs := []string{"a", "b", "c"}
	var picked []string
	for i := 0; i < 6; i++ {
		id, ok := s.Pick(subs, &storage.Record{}, notLocal)
		require.True(t, ok)
		picked = append(picked, id)
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, picked)
}

func TestStickyStrategyStaysOnSameSubscriberUntilBatchExhausted(t *testing.T) {
	strategy := &stickyStrategy{batchSize: 2}
	subs := []string{"a", "b"}

	first, _ := strategy.Pick(subs, &storage.Record{}, notLocal)
	second, _ := strategy.Pick(subs, &storage.Record{}, notLocal)
	third, _ := strategy.Pick(subs, &storage.Record{}, notLocal)

	assert.Equal(t, first, second)
	assert.NotEqual(t, first, third)
}

func TestStickyStrategyRotatesWhenCurrentDisappears(t *testing.T) {
	strategy := &stickyStrategy{batchSize: 50}

	id, _ := strategy.Pick([]string{"a", "b"}, &storage.Record{}, notLocal)
	require.Equal(t, "a", id)

	next, _ := strategy.Pick([]string{"b"}, &storage.Record{}, notLocal)
	assert.Equal(t, "b", next)
}

func TestHashStrategyIsStableForSameKey(t *testing.T) {
	s, err := NewStrategy("hash")
	require.NoError(t, err)

	key := "device-42"
	subs := []string{"a", "b", "c", "d"}
	first, _ := s.Pick(subs, &storage.Record{Key: &key}, notLocal)
	second, _ := s.Pick(subs, &storage.Record{Key: &key}, notLocal)
	assert.Equal(t, first, second)
}

func TestLocalStrategyPrefersLocalSubscriber(t *testing.T) {
	s, err := NewStrategy("local")
	require.NoError(t, err)

	isLocal := func(id string) bool { return id == "b" }
	id, ok := s.Pick([]string{"a", "b", "c"}, &storage.Record{}, isLocal)
	require.True(t, ok)
	assert.Equal(t, "b", id)
}

func TestLocalStrategyFallsBackWhenNoneLocal(t *testing.T) {
	s, err := NewStrategy("local")
	require.NoError(t, err)

	id, ok := s.Pick([]string{"a", "b"}, &storage.Record{}, notLocal)
	require.True(t, ok)
	assert.Contains(t, []string{"a", "b"}, id)
}
