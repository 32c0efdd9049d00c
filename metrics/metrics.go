package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "worker",
		Name:      "active_sessions",
		Help:      "Number of live torrent sessions.",
	})

	DownloadSpeedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "worker",
		Name:      "download_speed_bytes",
		Help:      "Aggregate download speed in bytes per second.",
	})

	UploadSpeedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "worker",
		Name:      "upload_speed_bytes",
		Help:      "Aggregate upload speed in bytes per second.",
	})

	ConnectedPeers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "worker",
		Name:      "connected_peers",
		Help:      "Active peers over all sessions.",
	})

	StreamingServers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "worker",
		Name:      "streaming_servers",
		Help:      "Running streaming servers (0 or 1).",
	})

	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "worker",
		Name:      "commands_total",
		Help:      "Commands handled by name.",
	}, []string{"command"})

	ProgressEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "worker",
		Name:      "progress_emitted_total",
		Help:      "Progress snapshots sent to the UI.",
	})

	ProgressSuppressed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "worker",
		Name:      "progress_suppressed_total",
		Help:      "Progress snapshots dropped because nothing changed.",
	})

	WorkerPanics = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "worker",
		Name:      "recovered_panics_total",
		Help:      "Handler panics converted to uncaught-error events.",
	})

	UIEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ui",
		Name:      "events_total",
		Help:      "Worker events routed into the state store by name.",
	}, []string{"event"})

	UIDispatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ui",
		Name:      "dispatch_total",
		Help:      "State store actions by name.",
	}, []string{"action"})

	StateSaves = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ui",
		Name:      "state_saves_total",
		Help:      "Writes of the persisted state file.",
	})
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ActiveSessions,
			DownloadSpeedBytes,
			UploadSpeedBytes,
			ConnectedPeers,
			StreamingServers,
			CommandsTotal,
			ProgressEmitted,
			ProgressSuppressed,
			WorkerPanics,
			UIEventsTotal,
			UIDispatchTotal,
			StateSaves,
		)
	})
}
