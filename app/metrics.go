package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the process-wide prometheus collectors, exposed by the API
// server at /metrics.
type Metrics struct {
	DepositsStarted     prometheus.Counter
	BridgesCompleted    prometheus.Counter
	BridgesFailed       prometheus.Counter
	WatchdogRecoveries  prometheus.Counter
	WatchdogCycles      prometheus.Counter
	PoolReconnects      prometheus.Counter
	PoolCacheFallbacks  prometheus.Counter
	PoolRequestsTotal   *prometheus.CounterVec
	AgentCacheRefreshes prometheus.Counter
	AgentCacheSize      prometheus.Gauge
	WatchdogWatermark   prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		DepositsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shield_bridge_deposits_started_total",
			Help: "Number of deposit flows initiated",
		}),
		BridgesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shield_bridge_bridges_completed_total",
			Help: "Number of bridges finalized",
		}),
		BridgesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shield_bridge_bridges_failed_total",
			Help: "Number of bridges moved to failed",
		}),
		WatchdogRecoveries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shield_bridge_watchdog_recoveries_total",
			Help: "Number of stuck bridges repaired by the watchdog",
		}),
		WatchdogCycles: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shield_bridge_watchdog_cycles_total",
			Help: "Number of watchdog scan cycles run",
		}),
		PoolReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shield_bridge_xrpl_pool_reconnects_total",
			Help: "Number of XRPL connection reconnect attempts",
		}),
		PoolCacheFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shield_bridge_xrpl_pool_cache_fallbacks_total",
			Help: "Number of requests served from stale cache after retries failed",
		}),
		PoolRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shield_bridge_xrpl_pool_requests_total",
			Help: "XRPL pool requests by command and outcome",
		}, []string{"command", "outcome"}),
		AgentCacheRefreshes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shield_bridge_agent_cache_refreshes_total",
			Help: "Number of agent directory cache refreshes",
		}),
		AgentCacheSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "shield_bridge_agent_cache_size",
			Help: "Number of agents currently cached",
		}),
		WatchdogWatermark: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "shield_bridge_watchdog_last_checked_block",
			Help: "Persisted watchdog scan watermark",
		}),
	}
}

var ProcessMetrics = newMetrics()
