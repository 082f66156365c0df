package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	sidecarUp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "quickdock",
		Name:      "sidecar_up",
		Help:      "Whether a backend sidecar handle is currently tracked (1=yes, 0=no).",
	})

	sidecarEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quickdock",
		Name:      "sidecar_events_total",
		Help:      "Total sidecar lifecycle events observed, by kind.",
	}, []string{"kind"})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quickdock",
		Name:      "http_requests_total",
		Help:      "Total backend API requests, by route and status code.",
	}, []string{"route", "code"})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "quickdock",
		Name:      "build_info",
		Help:      "Build metadata for the running binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(sidecarUp, sidecarEvents, httpRequests, buildInfo)
}

// Registry returns the Prometheus registry containing all quickdock metrics.
func Registry() *prometheus.Registry {
	return registry
}

// SetSidecarUp records whether a sidecar handle is currently tracked.
func SetSidecarUp(up bool) {
	value := 0.0
	if up {
		value = 1.0
	}
	sidecarUp.Set(value)
}

// ObserveSidecarEvent counts a single sidecar lifecycle event.
func ObserveSidecarEvent(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	sidecarEvents.WithLabelValues(kind).Inc()
}

// ObserveHTTPRequest counts a completed backend API request.
func ObserveHTTPRequest(route, code string) {
	if route == "" {
		route = "unknown"
	}
	httpRequests.WithLabelValues(route, code).Inc()
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}
