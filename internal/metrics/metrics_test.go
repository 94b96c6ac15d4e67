package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flairnode-agent/internal/metrics"
)

func gathered(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				out[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[mf.GetName()] += m.GetGauge().GetValue()
			}
		}
	}
	return out
}

func TestNew_RegistersAndCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.New(reg)

	c.ItemsEnqueued.Inc("log")
	c.ItemsEnqueued.Inc("systemStatus")
	c.SyncRequests.Inc("offline")
	c.ItemsSpilled.Add(3)
	c.QueueDepth.Set(7)

	got := gathered(t, reg)
	assert.Equal(t, 2.0, got["flairnode_queue_items_enqueued_total"])
	assert.Equal(t, 1.0, got["flairnode_uplink_sync_requests_total"])
	assert.Equal(t, 3.0, got["flairnode_overflow_items_spilled_total"])
	assert.Equal(t, 7.0, got["flairnode_queue_depth"])
}

func TestNewTestCounters_Independent(t *testing.T) {
	assert.NotPanics(t, func() {
		metrics.NewTestCounters()
		metrics.NewTestCounters()
	})
}
