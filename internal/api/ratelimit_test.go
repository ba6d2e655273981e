package api

import (
    "context"
    "net/http"
    "net/http/httptest"
    "testing"
)

func TestLocalLimiterAllows(t *testing.T) {
    l := NewLocalLimiter(10, 2)
    ctx := context.Background()
    if ok, _ := l.Allow(ctx, "1.2.3.4"); !ok { t.Fatal("first request refused") }
    if ok, _ := l.Allow(ctx, "1.2.3.4"); !ok { t.Fatal("second request refused") }
    ok, retry := l.Allow(ctx, "1.2.3.4")
    if ok { t.Fatal("burst exceeded but allowed") }
    if retry <= 0 { t.Fatalf("retry hint: %v", retry) }
    // Each client key gets its own bucket.
    if ok, _ := l.Allow(ctx, "5.6.7.8"); !ok { t.Fatal("independent key refused") }
}

func TestRateLimitMiddleware(t *testing.T) {
    s := &Server{Limiter: NewLocalLimiter(1, 1)}
    h := s.RateLimitMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(http.StatusOK)
    }))

    first := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodGet, "/orders", nil)
    req.RemoteAddr = "10.0.0.1:5000"
    h.ServeHTTP(first, req)
    if first.Code != http.StatusOK { t.Fatalf("first: %d", first.Code) }

    second := httptest.NewRecorder()
    h.ServeHTTP(second, req)
    if second.Code != http.StatusTooManyRequests { t.Fatalf("second: %d", second.Code) }
    if second.Header().Get("Retry-After") == "" { t.Fatal("missing Retry-After") }
}
