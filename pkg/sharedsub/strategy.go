package sharedsub

import (
	"hash/fnv"
	"math/rand"
	"strconv"
	"sync"

	robustmqerrors "github.com/robustmq/robustmq/pkg/errors"
	"github.com/robustmq/robustmq/pkg/storage"
)

// defaultStickyBatch bounds how many consecutive records the sticky
// strategy hands the same subscriber before rotating, per spec section
// 4.7's "configured batch count".
const defaultStickyBatch = 50

// Strategy picks which subscriber, among subs, a record is delivered
// to. isLocal reports whether a given client id has a connection on
// this broker process, used by the local strategy.
type Strategy interface {
	Pick(subs []string, rec *storage.Record, isLocal func(string) bool) (string, bool)
}

// NewStrategy builds the Strategy named by the configured
// subscribe.shared_subscription_strategy value.
func NewStrategy(name string) (Strategy, error) {
	switch name {
	case "round_robin":
		return &roundRobinStrategy{}, nil
	case "random":
		return &randomStrategy{}, nil
	case "sticky":
		return &stickyStrategy{batchSize: defaultStickyBatch}, nil
	case "hash":
		return &hashStrategy{}, nil
	case "local":
		return &localStrategy{fallback: &roundRobinStrategy{}}, nil
	default:
		return nil, robustmqerrors.ErrUnknownStrategy
	}
}

type roundRobinStrategy struct {
	mu   sync.Mutex
	next int
}

func (s *roundRobinStrategy) Pick(subs []string, rec *storage.Record, isLocal func(string) bool) (string, bool) {
	if len(subs) == 0 {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.next % len(subs)
	s.next++
	return subs[idx], true
}

type randomStrategy struct{}

func (s *randomStrategy) Pick(subs []string, rec *storage.Record, isLocal func(string) bool) (string, bool) {
	if len(subs) == 0 {
		return "", false
	}
	return subs[rand.Intn(len(subs))], true
}

// stickyStrategy keeps delivering to the same subscriber until it
// disappears from subs or batchSize records have been handed to it,
// per spec section 4.7.
type stickyStrategy struct {
	mu        sync.Mutex
	current   string
	count     int
	next      int
	batchSize int
}

func (s *stickyStrategy) Pick(subs []string, rec *storage.Record, isLocal func(string) bool) (string, bool) {
	if len(subs) == 0 {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != "" && s.count < s.batchSize && contains(subs, s.current) {
		s.count++
		return s.current, true
	}

	idx := s.next % len(subs)
	s.next++
	s.current = subs[idx]
	s.count = 1
	return s.current, true
}

func contains(subs []string, id string) bool {
	for _, s := range subs {
		if s == id {
			return true
		}
	}
	return false
}

// hashStrategy routes by a hash of the record's key (or, absent a key,
// its offset), so records sharing a key are delivered to the same
// subscriber as long as the subscriber set is stable.
type hashStrategy struct{}

func (s *hashStrategy) Pick(subs []string, rec *storage.Record, isLocal func(string) bool) (string, bool) {
	if len(subs) == 0 {
		return "", false
	}
	key := recordHashKey(rec)
	h := fnv.New32a()
	h.Write([]byte(key))
	return subs[int(h.Sum32())%len(subs)], true
}

func recordHashKey(rec *storage.Record) string {
	if rec.Key != nil {
		return *rec.Key
	}
	return strconv.FormatUint(rec.Offset, 10)
}

// localStrategy prefers a subscriber connected to this broker process,
// falling back to round_robin when none is local.
type localStrategy struct {
	fallback *roundRobinStrategy
}

func (s *localStrategy) Pick(subs []string, rec *storage.Record, isLocal func(string) bool) (string, bool) {
	for _, id := range subs {
		if isLocal(id) {
			return id, true
		}
	}
	return s.fallback.Pick(subs, rec, isLocal)
}
