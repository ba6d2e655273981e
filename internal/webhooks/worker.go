package webhooks

import (
    "bytes"
    "context"
    "net/http"
    "time"

    "fastdelivery/internal/metrics"
    "fastdelivery/internal/store"
)

// Worker drains the delivery queue: due rows are POSTed to their
// subscriber with an HMAC signature, retried with exponential backoff
// and dropped after MaxAttempts.
type Worker struct {
    Store       store.Store
    HTTP        *http.Client
    Stop        chan struct{}
    MaxAttempts int
}

func NewWorker(s store.Store, maxAttempts int) *Worker {
    if maxAttempts <= 0 { maxAttempts = 10 }
    return &Worker{
        Store:       s,
        HTTP:        &http.Client{Timeout: 5 * time.Second},
        Stop:        make(chan struct{}),
        MaxAttempts: maxAttempts,
    }
}

func (w *Worker) Start() {
    go func() {
        ticker := time.NewTicker(1 * time.Second)
        defer ticker.Stop()
        for {
            select {
            case <-w.Stop:
                return
            case <-ticker.C:
                w.ProcessOnce()
            }
        }
    }()
}

func (w *Worker) ProcessOnce() {
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    items, err := w.Store.FetchDueWebhookDeliveries(ctx, 50)
    if err != nil || len(items) == 0 { return }
    for _, it := range items {
        success, code, lastErr := w.attempt(ctx, it)
        switch {
        case success:
            _ = w.Store.MarkWebhookDelivery(ctx, it.ID, true, nil, "", code)
        case it.Attempts+1 >= w.MaxAttempts:
            _ = w.Store.MarkWebhookDelivery(ctx, it.ID, false, nil, lastErr, code)
        default:
            next := time.Now().Add(nextBackoff(it.Attempts))
            _ = w.Store.MarkWebhookDelivery(ctx, it.ID, false, &next, lastErr, code)
        }
        metrics.ObserveWebhookDelivery(it.EventType, success)
    }
}

func (w *Worker) attempt(ctx context.Context, it store.WebhookDelivery) (bool, int, string) {
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
    if err != nil { return false, 0, err.Error() }
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set("X-Event-Type", it.EventType)
    if it.Secret != "" {
        req.Header.Set("X-Signature", SignHMAC(it.Secret, it.Payload))
    }
    resp, err := w.HTTP.Do(req)
    if err != nil { return false, 0, err.Error() }
    defer resp.Body.Close()
    if resp.StatusCode >= 200 && resp.StatusCode < 300 {
        return true, resp.StatusCode, ""
    }
    return false, resp.StatusCode, ""
}

func nextBackoff(attempts int) time.Duration {
    if attempts < 0 { attempts = 0 }
    if attempts > 10 { attempts = 10 }
    base := time.Second * time.Duration(1<<attempts)
    if base > time.Hour { base = time.Hour }
    return base
}
