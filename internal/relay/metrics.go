package relay

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the relay's Prometheus instruments.
type Metrics struct {
	Registry *prometheus.Registry

	ConnectionsActive prometheus.Gauge
	ConnectionErrors  prometheus.Counter
	BlobsStored       prometheus.Counter
	BlobsDelivered    prometheus.Counter
	BlobsExpired      prometheus.Counter
	MessagesRejected  prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vauchi_relay_connections_active",
			Help: "Currently open client connections.",
		}),
		ConnectionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vauchi_relay_connection_errors_total",
			Help: "Connections refused or dropped on error.",
		}),
		BlobsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vauchi_relay_blobs_stored_total",
			Help: "Ciphertext blobs accepted for storage.",
		}),
		BlobsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vauchi_relay_blobs_delivered_total",
			Help: "Blobs flushed to their recipient.",
		}),
		BlobsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vauchi_relay_blobs_expired_total",
			Help: "Blobs purged after TTL.",
		}),
		MessagesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vauchi_relay_messages_rejected_total",
			Help: "Messages rejected by rate limiting or validation.",
		}),
	}
	m.Registry.MustRegister(
		m.ConnectionsActive, m.ConnectionErrors,
		m.BlobsStored, m.BlobsDelivered, m.BlobsExpired, m.MessagesRejected,
	)
	return m
}
