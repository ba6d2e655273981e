package api

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "net/http/httptest"
    "testing"

    "fastdelivery/internal/auth"
    "fastdelivery/internal/store"
    "fastdelivery/internal/webhooks"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
    t.Helper()
    s := &Server{
        Store:  store.NewMemory(),
        Auth:   &auth.Verifier{Mode: "dev"},
        Broker: NewBroker(),
    }
    s.Pub = webhooks.NewPublisher(s.Store)

    mux := http.NewServeMux()
    mux.HandleFunc("/couriers", s.CouriersHandler)
    mux.HandleFunc("/couriers/", s.CouriersSubtreeHandler)
    mux.HandleFunc("/orders", s.OrdersHandler)
    mux.HandleFunc("/orders/", s.OrdersSubtreeHandler)
    mux.HandleFunc("/v1/subscriptions", s.SubscriptionsHandler)
    mux.HandleFunc("/v1/subscriptions/", s.SubscriptionByIDHandler)
    mux.HandleFunc("/healthz", s.HealthHandler)
    mux.HandleFunc("/readyz", s.ReadyHandler)

    ts := httptest.NewServer(mux)
    t.Cleanup(ts.Close)
    return s, ts
}

func doJSON(t *testing.T, method, url string, body string) (*http.Response, map[string]any) {
    t.Helper()
    var req *http.Request
    var err error
    if body != "" {
        req, err = http.NewRequest(method, url, bytes.NewReader([]byte(body)))
    } else {
        req, err = http.NewRequest(method, url, nil)
    }
    if err != nil { t.Fatalf("NewRequest: %v", err) }
    req.Header.Set("Content-Type", "application/json")
    resp, err := http.DefaultClient.Do(req)
    if err != nil { t.Fatalf("%s %s: %v", method, url, err) }
    defer resp.Body.Close()
    out := map[string]any{}
    _ = json.NewDecoder(resp.Body).Decode(&out)
    return resp, out
}

func TestCouriersCreateAndList(t *testing.T) {
    _, ts := newTestServer(t)

    resp, body := doJSON(t, http.MethodPost, ts.URL+"/couriers",
        `{"couriers":[{"courierType":"FOOT","regions":[1],"workingHours":["11:00-15:00"]},
                      {"courierType":"BIKE","regions":[1,2],"workingHours":["09:00-18:00"]}]}`)
    if resp.StatusCode != http.StatusOK { t.Fatalf("status: %d %v", resp.StatusCode, body) }
    created := body["couriers"].([]any)
    if len(created) != 2 { t.Fatalf("created: %v", body) }

    // Default page size is 1.
    resp, body = doJSON(t, http.MethodGet, ts.URL+"/couriers", "")
    if resp.StatusCode != http.StatusOK { t.Fatalf("list status: %d", resp.StatusCode) }
    if n := len(body["couriers"].([]any)); n != 1 { t.Fatalf("default page: %d", n) }

    _, body = doJSON(t, http.MethodGet, ts.URL+"/couriers?limit=10&offset=1", "")
    if n := len(body["couriers"].([]any)); n != 1 { t.Fatalf("offset page: %d", n) }

    resp, _ = doJSON(t, http.MethodGet, ts.URL+"/couriers/1", "")
    if resp.StatusCode != http.StatusOK { t.Fatalf("get status: %d", resp.StatusCode) }
    resp, _ = doJSON(t, http.MethodGet, ts.URL+"/couriers/404", "")
    if resp.StatusCode != http.StatusNotFound { t.Fatalf("missing courier: %d", resp.StatusCode) }
}

func TestCouriersRejectInvalidPayload(t *testing.T) {
    _, ts := newTestServer(t)
    cases := []string{
        `{"couriers":[]}`,
        `{"couriers":[{"courierType":"SCOOTER","regions":[1],"workingHours":["09:00-18:00"]}]}`,
        `{"couriers":[{"courierType":"FOOT","regions":[],"workingHours":["09:00-18:00"]}]}`,
        `{"couriers":[{"courierType":"FOOT","regions":[1],"workingHours":["9:00-18:00"]}]}`,
        `{"couriers":[{"courierType":"FOOT","regions":[1],"workingHours":["25:00-26:00"]}]}`,
    }
    for _, c := range cases {
        resp, _ := doJSON(t, http.MethodPost, ts.URL+"/couriers", c)
        if resp.StatusCode != http.StatusBadRequest {
            t.Fatalf("payload %s: status %d", c, resp.StatusCode)
        }
    }
}

func TestOrdersRejectInvalidPayload(t *testing.T) {
    _, ts := newTestServer(t)
    cases := []string{
        `{"orders":[]}`,
        `{"orders":[{"weight":0,"region":1,"deliveryHours":["09:00-18:00"],"cost":10}]}`,
        `{"orders":[{"weight":1,"region":0,"deliveryHours":["09:00-18:00"],"cost":10}]}`,
        `{"orders":[{"weight":1,"region":1,"deliveryHours":[],"cost":10}]}`,
        `{"orders":[{"weight":1,"region":1,"deliveryHours":["09:00-18:00"],"cost":-5}]}`,
    }
    for _, c := range cases {
        resp, _ := doJSON(t, http.MethodPost, ts.URL+"/orders", c)
        if resp.StatusCode != http.StatusBadRequest {
            t.Fatalf("payload %s: status %d", c, resp.StatusCode)
        }
    }
}

func TestDispatchLifecycle(t *testing.T) {
    _, ts := newTestServer(t)

    resp, _ := doJSON(t, http.MethodPost, ts.URL+"/couriers",
        `{"couriers":[{"courierType":"FOOT","regions":[1],"workingHours":["11:00-15:00"]}]}`)
    if resp.StatusCode != http.StatusOK { t.Fatalf("create courier: %d", resp.StatusCode) }
    resp, _ = doJSON(t, http.MethodPost, ts.URL+"/orders",
        `{"orders":[{"weight":4,"region":1,"deliveryHours":["09:00-21:00"],"cost":100},
                    {"weight":5,"region":1,"deliveryHours":["09:00-21:00"],"cost":200}]}`)
    if resp.StatusCode != http.StatusOK { t.Fatalf("create orders: %d", resp.StatusCode) }

    resp, body := doJSON(t, http.MethodPost, ts.URL+"/orders/assign?date=2026-08-28", "")
    if resp.StatusCode != http.StatusCreated { t.Fatalf("assign: %d %v", resp.StatusCode, body) }
    if body["unassigned"].(float64) != 0 { t.Fatalf("unassigned: %v", body["unassigned"]) }
    turns := body["assignments"].([]any)
    if len(turns) != 1 { t.Fatalf("turns: %v", turns) }
    turn := turns[0].(map[string]any)
    if turn["turnTime"] != "11:00" { t.Fatalf("turnTime: %v", turn["turnTime"]) }
    if len(turn["orderIds"].([]any)) != 2 { t.Fatalf("orderIds: %v", turn["orderIds"]) }

    // A second run finds nothing left to assign.
    resp, body = doJSON(t, http.MethodPost, ts.URL+"/orders/assign?date=2026-08-28", "")
    if resp.StatusCode != http.StatusCreated { t.Fatalf("re-assign: %d", resp.StatusCode) }
    if len(body["assignments"].([]any)) != 0 { t.Fatalf("re-assign turns: %v", body["assignments"]) }

    resp, body = doJSON(t, http.MethodGet, ts.URL+"/couriers/assignments?date=2026-08-28", "")
    if resp.StatusCode != http.StatusOK { t.Fatalf("assignments: %d", resp.StatusCode) }
    if len(body["assignments"].([]any)) != 1 { t.Fatalf("stored turns: %v", body["assignments"]) }

    // Complete order 1: wrong courier first, then the assigned one.
    resp, _ = doJSON(t, http.MethodPost, ts.URL+"/orders/complete",
        `{"completeInfo":[{"courierId":99,"orderId":1,"completeTime":"2026-08-28T12:00:00Z"}]}`)
    if resp.StatusCode != http.StatusBadRequest { t.Fatalf("wrong courier: %d", resp.StatusCode) }
    resp, body = doJSON(t, http.MethodPost, ts.URL+"/orders/complete",
        `{"completeInfo":[{"courierId":1,"orderId":1,"completeTime":"2026-08-28T12:00:00Z"}]}`)
    if resp.StatusCode != http.StatusOK { t.Fatalf("complete: %d %v", resp.StatusCode, body) }

    // A second completion of the same order is rejected.
    resp, _ = doJSON(t, http.MethodPost, ts.URL+"/orders/complete",
        `{"completeInfo":[{"courierId":1,"orderId":1,"completeTime":"2026-08-28T13:00:00Z"}]}`)
    if resp.StatusCode != http.StatusBadRequest { t.Fatalf("re-complete: %d", resp.StatusCode) }

    // Meta-info: 1 completed order, cost 100, FOOT coefficients (2, 3),
    // 4 working hours over 30 days.
    resp, body = doJSON(t, http.MethodGet, ts.URL+"/couriers/meta-info/1?startDate=2026-08-01&endDate=2026-08-31", "")
    if resp.StatusCode != http.StatusOK { t.Fatalf("meta-info: %d", resp.StatusCode) }
    if body["ordersCount"].(float64) != 1 || body["ordersCost"].(float64) != 100 {
        t.Fatalf("meta counts: %v", body)
    }
    if body["earnings"].(float64) != 200 { t.Fatalf("earnings: %v", body["earnings"]) }
    if body["hoursCount"].(float64) != 120 { t.Fatalf("hoursCount: %v", body["hoursCount"]) }
    if fmt.Sprintf("%.4f", body["rating"].(float64)) != "0.0250" {
        t.Fatalf("rating: %v", body["rating"])
    }
}

func TestMetaInfoWithoutActivity(t *testing.T) {
    _, ts := newTestServer(t)
    resp, _ := doJSON(t, http.MethodPost, ts.URL+"/couriers",
        `{"couriers":[{"courierType":"AUTO","regions":[1],"workingHours":["08:00-20:00"]}]}`)
    if resp.StatusCode != http.StatusOK { t.Fatalf("create courier: %d", resp.StatusCode) }
    resp, body := doJSON(t, http.MethodGet, ts.URL+"/couriers/meta-info/1?startDate=2026-08-01&endDate=2026-08-31", "")
    if resp.StatusCode != http.StatusOK { t.Fatalf("meta-info: %d", resp.StatusCode) }
    if _, ok := body["earnings"]; ok { t.Fatalf("idle courier must omit earnings: %v", body) }
    if _, ok := body["rating"]; ok { t.Fatalf("idle courier must omit rating: %v", body) }
}

func TestAssignConflictWhileLocked(t *testing.T) {
    s, ts := newTestServer(t)
    release, err := s.Store.AcquireDispatchLock(context.Background(), "2026-08-28")
    if err != nil { t.Fatalf("lock: %v", err) }
    defer release()
    resp, _ := doJSON(t, http.MethodPost, ts.URL+"/orders/assign?date=2026-08-28", "")
    if resp.StatusCode != http.StatusConflict { t.Fatalf("status: %d", resp.StatusCode) }
}

func TestAssignRequiresDispatcherRole(t *testing.T) {
    _, ts := newTestServer(t)
    req, _ := http.NewRequest(http.MethodPost, ts.URL+"/orders/assign", nil)
    req.Header.Set("X-Role", "viewer")
    resp, err := http.DefaultClient.Do(req)
    if err != nil { t.Fatalf("do: %v", err) }
    defer resp.Body.Close()
    if resp.StatusCode != http.StatusForbidden { t.Fatalf("status: %d", resp.StatusCode) }
}

func TestAssignRejectsBadDate(t *testing.T) {
    _, ts := newTestServer(t)
    resp, _ := doJSON(t, http.MethodPost, ts.URL+"/orders/assign?date=28-08-2026", "")
    if resp.StatusCode != http.StatusBadRequest { t.Fatalf("status: %d", resp.StatusCode) }
}

func TestSubscriptionsLifecycle(t *testing.T) {
    _, ts := newTestServer(t)
    resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/subscriptions",
        `{"url":"https://hooks.example/dispatch","events":["dispatch.completed"],"secret":"s"}`)
    if resp.StatusCode != http.StatusCreated { t.Fatalf("create: %d %v", resp.StatusCode, body) }
    id := body["id"].(string)

    resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/subscriptions", `{"url":"ftp://nope","events":["x"]}`)
    if resp.StatusCode != http.StatusBadRequest { t.Fatalf("bad url: %d", resp.StatusCode) }

    _, body = doJSON(t, http.MethodGet, ts.URL+"/v1/subscriptions", "")
    if len(body["items"].([]any)) != 1 { t.Fatalf("items: %v", body) }

    resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/v1/subscriptions/"+id, "")
    if resp.StatusCode != http.StatusNoContent { t.Fatalf("delete: %d", resp.StatusCode) }
    resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/v1/subscriptions/"+id, "")
    if resp.StatusCode != http.StatusNotFound { t.Fatalf("double delete: %d", resp.StatusCode) }
}

func TestHealthAndReady(t *testing.T) {
    _, ts := newTestServer(t)
    resp, _ := doJSON(t, http.MethodGet, ts.URL+"/healthz", "")
    if resp.StatusCode != http.StatusOK { t.Fatalf("healthz: %d", resp.StatusCode) }
    resp, _ = doJSON(t, http.MethodGet, ts.URL+"/readyz", "")
    if resp.StatusCode != http.StatusOK { t.Fatalf("readyz: %d", resp.StatusCode) }
}
