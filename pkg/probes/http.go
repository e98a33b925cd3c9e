package probes

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/tourwise/pulse/pkg/logging"
	"github.com/tourwise/pulse/pkg/metrics"
)

// HTTPProbe checks one external service endpoint with a GET request.
//
// Status derivation is total over all HTTP status codes: <400 healthy,
// 400..499 degraded, >=500 or transport failure unhealthy. Response time is
// recorded even when the check fails. A circuit breaker guards the target so
// a dependency that keeps failing is short-circuited instead of paying the
// full timeout on every tick.
type HTTPProbe struct {
	name    string
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *logging.StructuredLogger
}

// NewHTTPProbe creates an HTTP probe for a named service endpoint.
func NewHTTPProbe(name, url string, timeout time.Duration, logger *logging.StructuredLogger) *HTTPProbe {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &HTTPProbe{
		name:    name,
		url:     url,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
		logger:  logger.WithComponent("http_probe"),
	}
}

// Name returns the monitored service name.
func (p *HTTPProbe) Name() string { return p.name }

// Check issues a single GET against the target and classifies the outcome.
func (p *HTTPProbe) Check(ctx context.Context) metrics.ServiceHealth {
	start := time.Now()

	result, err := p.breaker.Execute(func() (interface{}, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
		if reqErr != nil {
			return nil, reqErr
		}
		resp, doErr := p.client.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		resp.Body.Close()
		return resp.StatusCode, nil
	})

	elapsed := float64(time.Since(start).Microseconds()) / 1000.0
	health := metrics.ServiceHealth{
		ServiceName:    p.name,
		ResponseTimeMs: elapsed,
		LastCheck:      time.Now(),
		Metadata:       map[string]string{"url": p.url},
	}

	if err != nil {
		p.logger.Warn("service check failed",
			"service", p.name, "url", p.url, "error", err.Error())
		health.Status = metrics.StateUnhealthy
		health.ErrorRatePct = 100
		health.Metadata["error"] = err.Error()
		return health
	}

	code := result.(int)
	health.Metadata["status_code"] = strconv.Itoa(code)
	switch {
	case code < 400:
		health.Status = metrics.StateHealthy
		health.ErrorRatePct = 0
		health.UptimePct = 100
	case code < 500:
		health.Status = metrics.StateDegraded
		health.ErrorRatePct = 25
		health.UptimePct = 100
	default:
		health.Status = metrics.StateUnhealthy
		health.ErrorRatePct = 100
	}
	return health
}
