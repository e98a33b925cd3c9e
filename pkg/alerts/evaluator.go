// Package alerts contains the threshold evaluator, the bounded alert event
// log, and notification sinks.
package alerts

import (
	"fmt"
	"time"
)

// Severity tags an alert event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Threshold is a two-tier alert boundary for one metric. A value at or above
// Critical always wins over Warning.
type Threshold struct {
	Warning  float64 `yaml:"warning" json:"warning"`
	Critical float64 `yaml:"critical" json:"critical"`
}

// Event is an alert raised by threshold evaluation. Events are append-only;
// nothing mutates one after creation.
type Event struct {
	ID         string    `json:"id"`
	Severity   Severity  `json:"severity"`
	Message    string    `json:"message"`
	MetricName string    `json:"metric_name"`
	Value      float64   `json:"value"`
	Threshold  float64   `json:"threshold"`
	Timestamp  time.Time `json:"timestamp"`
}

// Evaluate compares a metric value against its threshold pair and returns the
// highest-severity breach, if any. It is a pure function: no I/O, no state,
// identical inputs produce identical results. ID and timestamp are assigned
// later, when the event is appended to a Log.
func Evaluate(metricName string, value float64, th Threshold) (Event, bool) {
	var severity Severity
	var boundary float64

	switch {
	case value >= th.Critical:
		severity = SeverityCritical
		boundary = th.Critical
	case value >= th.Warning:
		severity = SeverityWarning
		boundary = th.Warning
	default:
		return Event{}, false
	}

	return Event{
		Severity:   severity,
		Message:    fmt.Sprintf("%s at %.1f breached %s threshold %.1f", metricName, value, severity, boundary),
		MetricName: metricName,
		Value:      value,
		Threshold:  boundary,
	}, true
}
