// Package metrics exposes the monitor's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const defaultNamespace = "pingwatch"

// Collector is the instrumentation surface used by the core components.
// A nil *Prometheus is a valid no-op collector.
type Collector interface {
	Heartbeat(recovered bool)
	Event(eventType string)
	FalseAlarm()
	AlertResult(result string)
	RateLimited()
	GateHeld(held bool)
	QueueDepth(n int)
	ArmedWorkers(n int)
}

type Prometheus struct {
	heartbeats   *prometheus.CounterVec
	events       *prometheus.CounterVec
	falseAlarms  prometheus.Counter
	alerts       *prometheus.CounterVec
	rateLimited  prometheus.Counter
	gateHeld     prometheus.Gauge
	queueDepth   prometheus.Gauge
	armedWorkers prometheus.Gauge
}

var _ Collector = (*Prometheus)(nil)

// New registers the collectors on reg (prometheus.DefaultRegisterer if nil).
func New(reg prometheus.Registerer, namespace string) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = defaultNamespace
	}
	p := Prometheus{
		heartbeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_total",
			Help:      "Accepted heartbeats, by whether they brought the worker up.",
		}, []string{"recovered"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Recorded up/down events.",
		}, []string{"type"}),
		falseAlarms: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "false_alarms_total",
			Help:      "Expiries that found the worker alive on re-validation.",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "alerts_total",
			Help:      "Alerts by delivery result.",
		}, []string{"result"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "rate_limited_total",
			Help:      "Rate limit signals received from the alert transport.",
		}),
		gateHeld: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "gate_held",
			Help:      "1 while expiry processing is held by transport backoff.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "queue_depth",
			Help:      "Alerts waiting for delivery.",
		}),
		armedWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "armed_workers",
			Help:      "Workers with a live expiry timer.",
		}),
	}
	reg.MustRegister(
		p.heartbeats,
		p.events,
		p.falseAlarms,
		p.alerts,
		p.rateLimited,
		p.gateHeld,
		p.queueDepth,
		p.armedWorkers,
	)
	return &p
}

func (p *Prometheus) Heartbeat(recovered bool) {
	if p == nil {
		return
	}
	label := "false"
	if recovered {
		label = "true"
	}
	p.heartbeats.WithLabelValues(label).Inc()
}

func (p *Prometheus) Event(eventType string) {
	if p == nil {
		return
	}
	p.events.WithLabelValues(eventType).Inc()
}

func (p *Prometheus) FalseAlarm() {
	if p == nil {
		return
	}
	p.falseAlarms.Inc()
}

func (p *Prometheus) AlertResult(result string) {
	if p == nil {
		return
	}
	p.alerts.WithLabelValues(result).Inc()
}

func (p *Prometheus) RateLimited() {
	if p == nil {
		return
	}
	p.rateLimited.Inc()
}

func (p *Prometheus) GateHeld(held bool) {
	if p == nil {
		return
	}
	if held {
		p.gateHeld.Set(1)
		return
	}
	p.gateHeld.Set(0)
}

func (p *Prometheus) QueueDepth(n int) {
	if p == nil {
		return
	}
	p.queueDepth.Set(float64(n))
}

func (p *Prometheus) ArmedWorkers(n int) {
	if p == nil {
		return
	}
	p.armedWorkers.Set(float64(n))
}
