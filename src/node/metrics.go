package node

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	registry *prometheus.Registry

	peers          *prometheus.GaugeVec
	sharesReceived prometheus.Counter
	sharesRejected *prometheus.CounterVec
	sharesVerified prometheus.Counter
	sharesRelayed  prometheus.Counter
	trackerShares  *prometheus.GaugeVec
	violations     prometheus.Counter
	refused        prometheus.Counter
	dialFailures   prometheus.Counter
	desired        prometheus.Counter
	blocksFound    prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		peers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sharechain",
			Name:      "peers",
			Help:      "Established connections by direction.",
		}, []string{"direction"}),
		sharesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sharechain",
			Name:      "shares_received_total",
			Help:      "New shares received from peers.",
		}),
		sharesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sharechain",
			Name:      "shares_rejected_total",
			Help:      "Shares dropped before reaching the tracker.",
		}, []string{"reason"}),
		sharesVerified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sharechain",
			Name:      "shares_verified_total",
			Help:      "Shares verified by the tracker.",
		}),
		sharesRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sharechain",
			Name:      "shares_relayed_total",
			Help:      "Shares sent to peers unrequested.",
		}),
		trackerShares: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sharechain",
			Name:      "tracker_shares",
			Help:      "Shares in the tracker by status.",
		}, []string{"status"}),
		violations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sharechain",
			Name:      "protocol_violations_total",
			Help:      "Connections closed for protocol violations.",
		}),
		refused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sharechain",
			Name:      "connections_refused_total",
			Help:      "Inbound connections refused at accept.",
		}),
		dialFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sharechain",
			Name:      "dial_failures_total",
			Help:      "Failed outbound dials.",
		}),
		desired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sharechain",
			Name:      "desired_requests_total",
			Help:      "getshares requests sent for missing shares.",
		}),
		blocksFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sharechain",
			Name:      "blocks_found_total",
			Help:      "Shares that also met the block target.",
		}),
	}
	m.registry.MustRegister(
		m.peers,
		m.sharesReceived,
		m.sharesRejected,
		m.sharesVerified,
		m.sharesRelayed,
		m.trackerShares,
		m.violations,
		m.refused,
		m.dialFailures,
		m.desired,
		m.blocksFound,
	)
	return m
}
