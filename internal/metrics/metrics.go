package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the API
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // DispatchRuns counts dispatch runs by outcome
    DispatchRuns = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "dispatch_runs_total", Help: "Dispatch runs by outcome."},
        []string{"outcome"},
    )
    // DispatchOrdersAssigned counts orders placed into turns
    DispatchOrdersAssigned = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "dispatch_orders_assigned_total", Help: "Orders assigned by dispatch runs."},
    )
    // DispatchOrdersUnassigned counts orders no shift could take
    DispatchOrdersUnassigned = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "dispatch_orders_unassigned_total", Help: "Orders left unassigned by dispatch runs."},
    )
    // DispatchDuration records planning durations in seconds
    DispatchDuration = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "dispatch_duration_seconds", Help: "Dispatch planning duration in seconds.", Buckets: prometheus.DefBuckets},
    )

    // WebhookDeliveries counts webhook delivery outcomes by event type and status
    WebhookDeliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
        []string{"event_type", "status"},
    )

    // RateLimited counts requests rejected by the rate limiter
    RateLimited = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "rate_limited_requests_total", Help: "Requests rejected with 429."},
    )
)

var regOnce sync.Once

// RegisterDefault registers all collectors on the package registry.
func RegisterDefault() {
    regOnce.Do(func() {
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(DispatchRuns)
        Registry.MustRegister(DispatchOrdersAssigned)
        Registry.MustRegister(DispatchOrdersUnassigned)
        Registry.MustRegister(DispatchDuration)
        Registry.MustRegister(WebhookDeliveries)
        Registry.MustRegister(RateLimited)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

// ObserveWebhookDelivery records one delivery attempt outcome.
func ObserveWebhookDelivery(eventType string, success bool) {
    status := "failed"
    if success { status = "delivered" }
    WebhookDeliveries.WithLabelValues(eventType, status).Inc()
}
