// Package api implements HTTP handlers and helpers for the dispatch service.
package api

import (
    "context"
    "os"
    "strconv"
    "strings"

    "fastdelivery/internal/auth"
    "fastdelivery/internal/store"
    "fastdelivery/internal/webhooks"
)

type Server struct {
    Store   store.Store
    Pub     *webhooks.Publisher
    Auth    *auth.Verifier
    Broker  EventBroker
    Limiter Limiter
}

// NewServer creates a Server. If DATABASE_URL is unset, uses in-memory store.
func NewServer() (*Server, error) {
    dsn := os.Getenv("DATABASE_URL")
    var s store.Store
    if strings.TrimSpace(dsn) == "" {
        s = store.NewMemory()
    } else {
        sp, err := store.NewPostgres(dsn)
        if err != nil {
            return nil, err
        }
        // Run migrations (dev helper)
        if os.Getenv("DB_MIGRATE") != "false" {
            if err := sp.MigrateDir(context.Background(), "db/migrations"); err != nil {
                return nil, err
            }
        }
        s = sp
    }
    var broker EventBroker
    var limiter Limiter
    rps, burst := rateFromEnv()
    if os.Getenv("REDIS_URL") != "" {
        if rb, err := NewRedisBroker(); err == nil { broker = rb } else { broker = NewBroker() }
        if rl, err := NewRedisLimiter(rps); err == nil { limiter = rl }
    } else {
        broker = NewBroker()
    }
    if limiter == nil {
        limiter = NewLocalLimiter(rps, burst)
    }
    return &Server{
        Store:   s,
        Pub:     webhooks.NewPublisher(s),
        Auth:    auth.NewVerifierFromEnv(),
        Broker:  broker,
        Limiter: limiter,
    }, nil
}

func rateFromEnv() (rps, burst int) {
    rps, burst = 10, 10
    if v := os.Getenv("RATE_RPS"); v != "" {
        if n, err := strconv.Atoi(v); err == nil && n > 0 { rps = n }
    }
    if v := os.Getenv("RATE_BURST"); v != "" {
        if n, err := strconv.Atoi(v); err == nil && n > 0 { burst = n }
    }
    return rps, burst
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
    max := 10
    if v := os.Getenv("WEBHOOK_MAX_ATTEMPTS"); v != "" {
        if n, err := strconv.Atoi(v); err == nil && n > 0 { max = n }
    }
    return webhooks.NewWorker(s.Store, max)
}
