package metrics

import (
	"time"
)

// RaftStatsSource is implemented by pkg/meta.Manager; kept as an interface
// here so pkg/metrics never imports pkg/meta.
type RaftStatsSource interface {
	IsLeader() bool
	GetRaftStats() map[string]interface{}
}

// BrokerNodeSource is implemented by pkg/meta.Manager for broker node counts.
type BrokerNodeSource interface {
	CountBrokerNodes() (int, error)
}

// Collector periodically samples slow-changing gauges (Raft leadership,
// peer count, broker node count) that are cheap to poll but awkward to
// update from every call site.
type Collector struct {
	raft   RaftStatsSource
	nodes  BrokerNodeSource
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(raft RaftStatsSource, nodes BrokerNodeSource) *Collector {
	return &Collector{
		raft:   raft,
		nodes:  nodes,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectRaftMetrics()
	c.collectBrokerNodeMetrics()
}

func (c *Collector) collectRaftMetrics() {
	if c.raft == nil {
		return
	}

	if c.raft.IsLeader() {
		RaftLeader.Set(1)
	} else {
		RaftLeader.Set(0)
	}

	stats := c.raft.GetRaftStats()
	if stats == nil {
		return
	}
	if numPeers, ok := stats["num_peers"].(int); ok {
		RaftPeers.Set(float64(numPeers))
	}
}

func (c *Collector) collectBrokerNodeMetrics() {
	if c.nodes == nil {
		return
	}
	count, err := c.nodes.CountBrokerNodes()
	if err != nil {
		return
	}
	BrokerNodesTotal.Set(float64(count))
}
