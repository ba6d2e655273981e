package api

import (
    "context"
    "net"
    "net/http"
    "os"
    "strconv"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"
    "golang.org/x/time/rate"

    "fastdelivery/internal/metrics"
)

// Limiter throttles requests per client key. Allow reports whether the
// request may proceed and, when it may not, how long to wait.
type Limiter interface {
    Allow(ctx context.Context, key string) (bool, time.Duration)
}

// RedisLimiter is a fixed-window counter shared across replicas:
// INCR on a per-second key, EXPIRE on first hit.
type RedisLimiter struct {
    rdb *redis.Client
    rps int
}

func NewRedisLimiter(rps int) (*RedisLimiter, error) {
    opt, err := redis.ParseURL(os.Getenv("REDIS_URL"))
    if err != nil { return nil, err }
    return &RedisLimiter{rdb: redis.NewClient(opt), rps: rps}, nil
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
    now := time.Now()
    bucket := "ratelimit:" + key + ":" + strconv.FormatInt(now.Unix(), 10)
    n, err := l.rdb.Incr(ctx, bucket).Result()
    if err != nil {
        // Redis down: fail open rather than refuse all traffic.
        return true, 0
    }
    if n == 1 {
        l.rdb.Expire(ctx, bucket, 2*time.Second)
    }
    if int(n) > l.rps {
        return false, time.Second - time.Duration(now.Nanosecond())
    }
    return true, 0
}

// LocalLimiter is the single-process fallback built on token buckets.
type LocalLimiter struct {
    mu      sync.Mutex
    buckets map[string]*rate.Limiter
    rps     int
    burst   int
}

func NewLocalLimiter(rps, burst int) *LocalLimiter {
    return &LocalLimiter{buckets: map[string]*rate.Limiter{}, rps: rps, burst: burst}
}

func (l *LocalLimiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
    l.mu.Lock()
    b, ok := l.buckets[key]
    if !ok {
        b = rate.NewLimiter(rate.Limit(l.rps), l.burst)
        l.buckets[key] = b
    }
    l.mu.Unlock()
    if b.Allow() {
        return true, 0
    }
    return false, time.Second
}

// RateLimitMiddleware rejects over-limit clients with 429 + Retry-After.
func (s *Server) RateLimitMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if s.Limiter == nil {
            next.ServeHTTP(w, r)
            return
        }
        ok, retry := s.Limiter.Allow(r.Context(), clientKey(r))
        if !ok {
            metrics.RateLimited.Inc()
            secs := int(retry / time.Second)
            if secs < 1 { secs = 1 }
            w.Header().Set("Retry-After", strconv.Itoa(secs))
            writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded", r.URL.Path)
            return
        }
        next.ServeHTTP(w, r)
    })
}

func clientKey(r *http.Request) string {
    host, _, err := net.SplitHostPort(r.RemoteAddr)
    if err != nil { host = r.RemoteAddr }
    return host
}
