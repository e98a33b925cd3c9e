package monitor

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tourwise/pulse/pkg/metrics"
)

// healthValue maps a health state to a numeric gauge value so Prometheus can
// alert on transitions.
func healthValue(s metrics.HealthState) float64 {
	switch s {
	case metrics.StateHealthy:
		return 2
	case metrics.StateDegraded:
		return 1
	case metrics.StateUnhealthy:
		return 0
	default:
		return -1
	}
}

// Exporter mirrors the in-memory metric store into a Prometheus registry.
// The mirror is one-directional and best-effort; dashboards read the store,
// Prometheus scrapes the mirror.
type Exporter struct {
	registry *prometheus.Registry

	resourceGauges *prometheus.GaugeVec
	serviceHealth  *prometheus.GaugeVec
	serviceLatency *prometheus.GaugeVec
	loopTicks      *prometheus.CounterVec
	loopFailures   *prometheus.CounterVec
	alertsRaised   *prometheus.CounterVec
}

// NewExporter creates an exporter with its own registry so embedding
// applications and tests never collide on the default registerer.
func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		resourceGauges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pulse_resource_value",
			Help: "Latest sampled value of a system resource gauge",
		}, []string{"resource"}),
		serviceHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pulse_service_health_status",
			Help: "Service health (2 healthy, 1 degraded, 0 unhealthy, -1 unknown)",
		}, []string{"service"}),
		serviceLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pulse_service_response_time_ms",
			Help: "Latest health check round trip in milliseconds",
		}, []string{"service"}),
		loopTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_loop_ticks_total",
			Help: "Completed polling loop ticks",
		}, []string{"loop"}),
		loopFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_loop_failures_total",
			Help: "Polling loop ticks that failed and triggered backoff",
		}, []string{"loop"}),
		alertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_alerts_raised_total",
			Help: "Alert events appended to the alert log",
		}, []string{"severity"}),
	}

	for _, c := range []prometheus.Collector{
		e.resourceGauges, e.serviceHealth, e.serviceLatency,
		e.loopTicks, e.loopFailures, e.alertsRaised,
	} {
		e.safeRegister(c)
	}
	return e
}

// safeRegister tolerates duplicate registration so repeated construction in
// the same process cannot panic.
func (e *Exporter) safeRegister(c prometheus.Collector) {
	if err := e.registry.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return
		}
	}
}

// Gatherer exposes the registry for a promhttp handler.
func (e *Exporter) Gatherer() prometheus.Gatherer { return e.registry }

// ObserveResource mirrors one sampled resource gauge.
func (e *Exporter) ObserveResource(name string, value float64) {
	e.resourceGauges.WithLabelValues(name).Set(value)
}

// ObserveHealth mirrors one service health record.
func (e *Exporter) ObserveHealth(h metrics.ServiceHealth) {
	e.serviceHealth.WithLabelValues(h.ServiceName).Set(healthValue(h.Status))
	e.serviceLatency.WithLabelValues(h.ServiceName).Set(h.ResponseTimeMs)
}

// TickCompleted counts a finished loop tick.
func (e *Exporter) TickCompleted(loop string) {
	e.loopTicks.WithLabelValues(loop).Inc()
}

// TickFailed counts a failed loop tick.
func (e *Exporter) TickFailed(loop string) {
	e.loopFailures.WithLabelValues(loop).Inc()
}

// AlertRaised counts an appended alert event.
func (e *Exporter) AlertRaised(severity string) {
	e.alertsRaised.WithLabelValues(severity).Inc()
}
