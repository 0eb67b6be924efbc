package metrics

import (
	"errors"
	"time"

	"github.com/pitlane/paddock/pkg/store"
	"github.com/pitlane/paddock/pkg/types"
)

// Collector periodically samples pool and batch gauges from the store
type Collector struct {
	store  *store.Store
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(st *store.Store) *Collector {
	return &Collector{
		store:  st,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
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
	c.collectPoolMetrics()
	c.collectBatchMetrics()
}

func (c *Collector) collectPoolMetrics() {
	stats, err := c.store.DashboardStats()
	if err != nil {
		return
	}

	PoolEntries.WithLabelValues(string(types.ProductKXP2), string(types.PoolAvailable)).Set(float64(stats.AvailableKXP2))
	PoolEntries.WithLabelValues(string(types.ProductKXP2), string(types.PoolAssigned)).Set(float64(stats.AssignedKXP2))
	PoolEntries.WithLabelValues(string(types.ProductRXP2), string(types.PoolAvailable)).Set(float64(stats.AvailableRXP2))
	PoolEntries.WithLabelValues(string(types.ProductRXP2), string(types.PoolAssigned)).Set(float64(stats.AssignedRXP2))
}

func (c *Collector) collectBatchMetrics() {
	batch, err := c.store.ActiveBatch()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			ActiveBatchRemaining.Set(0)
		}
		return
	}

	ActiveBatchRemaining.Set(float64(batch.RemainingCount))
}
