package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the gateway's Prometheus metrics. Metrics are
// registered against an explicit registerer so isolated instances can
// run side by side in tests.
type Collector struct {
	connectionsActive prometheus.Gauge
	roomsActive       prometheus.Gauge
	operationsTotal   prometheus.Counter
	joinsRejected     *prometheus.CounterVec
	broadcastFanout   prometheus.Histogram
}

func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "collabgate_connections_active",
			Help: "Number of authenticated websocket connections",
		}),

		roomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "collabgate_rooms_active",
			Help: "Number of live collaboration rooms",
		}),

		operationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "collabgate_operations_relayed_total",
			Help: "Total number of edit operations relayed to room peers",
		}),

		joinsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "collabgate_joins_rejected_total",
			Help: "Room join attempts rejected, by reason",
		}, []string{"reason"}),

		broadcastFanout: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "collabgate_broadcast_fanout",
			Help:    "Number of peers each operation was relayed to",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
	}
}

func (c *Collector) ConnectionOpened() {
	c.connectionsActive.Inc()
}

func (c *Collector) ConnectionClosed() {
	c.connectionsActive.Dec()
}

func (c *Collector) RoomOpened() {
	c.roomsActive.Inc()
}

func (c *Collector) RoomClosed() {
	c.roomsActive.Dec()
}

func (c *Collector) OperationRelayed(fanout int) {
	c.operationsTotal.Inc()
	c.broadcastFanout.Observe(float64(fanout))
}

func (c *Collector) JoinRejected(reason string) {
	c.joinsRejected.WithLabelValues(reason).Inc()
}
