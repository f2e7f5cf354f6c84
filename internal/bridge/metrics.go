package bridge

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dlashua/govee2mqtt/internal/govee"
)

// Metrics holds the bridge's Prometheus collectors. Each Bridge gets its
// own set so tests can register them on a private registry.
type Metrics struct {
	vendorCalls      *prometheus.CounterVec
	vendorDuration   *prometheus.HistogramVec
	attributeChanges *prometheus.CounterVec
	commands         *prometheus.CounterVec
	publishErrors    prometheus.Counter
	devices          prometheus.Gauge
	boosted          prometheus.Gauge
	state            prometheus.Gauge
}

// NewMetrics creates an unregistered collector set.
func NewMetrics() *Metrics {
	return &Metrics{
		vendorCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "govee2mqtt_vendor_calls_total",
			Help: "Govee API calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		vendorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "govee2mqtt_vendor_call_duration_seconds",
			Help:    "Govee API call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		attributeChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "govee2mqtt_attribute_changes_total",
			Help: "Published attribute changes by attribute.",
		}, []string{"attribute"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "govee2mqtt_commands_total",
			Help: "Vendor commands dispatched from MQTT by command and outcome.",
		}, []string{"command", "outcome"}),
		publishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "govee2mqtt_publish_errors_total",
			Help: "MQTT publishes that failed.",
		}),
		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "govee2mqtt_devices",
			Help: "Registered controllable devices.",
		}),
		boosted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "govee2mqtt_boosted_devices",
			Help: "Devices currently polled at the boosted rate.",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "govee2mqtt_bridge_state",
			Help: "Lifecycle state: 0 unstarted, 1 connecting, 2 running, 3 reconnecting, 4 terminated.",
		}),
	}
}

// Collectors returns every collector for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.vendorCalls,
		m.vendorDuration,
		m.attributeChanges,
		m.commands,
		m.publishErrors,
		m.devices,
		m.boosted,
		m.state,
	}
}

func (m *Metrics) observeCall(ev govee.CallEvent) {
	m.vendorCalls.WithLabelValues(ev.Op, ev.Outcome.String()).Inc()
	m.vendorDuration.WithLabelValues(ev.Op).Observe(ev.Duration.Seconds())
}
