package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons for DeltasDropped.
const (
	ReasonQueueFull  = "queue_full"
	ReasonClosed     = "closed"
	ReasonBusBacklog = "bus_backlog"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collab_connections_active",
		Help: "Live editing connections across all documents.",
	})

	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collab_rooms_active",
		Help: "Documents with at least one live connection.",
	})

	DeltasReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_deltas_received_total",
		Help: "Well-formed deltas received from clients.",
	})

	DeltasMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_deltas_malformed_total",
		Help: "Inbound messages discarded because they were not deltas.",
	})

	DeltasRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_deltas_relayed_total",
		Help: "Deltas queued for delivery to a peer.",
	})

	DeltasDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_deltas_dropped_total",
		Help: "Deltas a peer did not receive.",
	}, []string{"reason"})

	SnapshotSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_snapshot_saves_total",
		Help: "Live content snapshots written to the document store.",
	}, []string{"result"})
)
