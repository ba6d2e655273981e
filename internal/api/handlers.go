package api

import (
    "encoding/json"
    "errors"
    "fmt"
    "math"
    "net/http"
    "strconv"
    "strings"
    "time"

    "fastdelivery/internal/dispatch"
    "fastdelivery/internal/metrics"
    "fastdelivery/internal/model"
    "fastdelivery/internal/store"
)

// CouriersHandler handles POST/GET /couriers
func (s *Server) CouriersHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var req struct {
            Couriers []model.CourierIn `json:"couriers"`
        }
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if len(req.Couriers) == 0 {
            writeProblem(w, http.StatusBadRequest, "Invalid couriers", "couriers must not be empty", r.URL.Path)
            return
        }
        for i, c := range req.Couriers {
            if err := validateCourierIn(c); err != nil {
                writeProblem(w, http.StatusBadRequest, "Invalid courier", fmt.Sprintf("couriers[%d]: %v", i, err), r.URL.Path)
                return
            }
        }
        created, err := s.Store.CreateCouriers(r.Context(), req.Couriers)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create couriers failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"couriers": created})
    case http.MethodGet:
        limit, offset := pageParams(r)
        items, err := s.Store.ListCouriers(r.Context(), limit, offset)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List couriers failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"couriers": items, "limit": limit, "offset": offset})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// CouriersSubtreeHandler handles GET /couriers/{id},
// GET /couriers/meta-info/{id} and GET /couriers/assignments.
func (s *Server) CouriersSubtreeHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    rest := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/couriers/"), "/")
    switch {
    case rest == "assignments":
        s.assignmentsIndex(w, r)
    case strings.HasPrefix(rest, "meta-info/"):
        s.courierMetaInfo(w, r, strings.TrimPrefix(rest, "meta-info/"))
    default:
        id, err := strconv.ParseInt(rest, 10, 64)
        if err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid courier id", rest, r.URL.Path)
            return
        }
        c, err := s.Store.GetCourier(r.Context(), id)
        if errors.Is(err, store.ErrNotFound) {
            writeProblem(w, http.StatusNotFound, "Courier not found", "", r.URL.Path)
            return
        }
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Get courier failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, c)
    }
}

func (s *Server) assignmentsIndex(w http.ResponseWriter, r *http.Request) {
    date := r.URL.Query().Get("date")
    if date != "" {
        if err := validateDate(date); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid date", err.Error(), r.URL.Path)
            return
        }
    }
    var courierID int64
    if v := r.URL.Query().Get("courierId"); v != "" {
        n, err := strconv.ParseInt(v, 10, 64)
        if err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid courierId", v, r.URL.Path)
            return
        }
        courierID = n
    }
    items, err := s.Store.ListAssignments(r.Context(), date, courierID)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List assignments failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"date": date, "assignments": items})
}

func (s *Server) courierMetaInfo(w http.ResponseWriter, r *http.Request, idStr string) {
    id, err := strconv.ParseInt(idStr, 10, 64)
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid courier id", idStr, r.URL.Path)
        return
    }
    start, end, err := metaRange(r)
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid date range", err.Error(), r.URL.Path)
        return
    }
    c, err := s.Store.GetCourier(r.Context(), id)
    if errors.Is(err, store.ErrNotFound) {
        writeProblem(w, http.StatusNotFound, "Courier not found", "", r.URL.Path)
        return
    }
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Get courier failed", err.Error(), r.URL.Path)
        return
    }
    // End date is inclusive.
    count, cost, err := s.Store.CourierStats(r.Context(), id, start, end.AddDate(0, 0, 1))
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Courier stats failed", err.Error(), r.URL.Path)
        return
    }
    meta := model.CourierMeta{
        CourierID: id,
        StartDate: start.Format("2006-01-02"),
        EndDate:   end.Format("2006-01-02"),
    }
    if count > 0 {
        earnCoeff, rateCoeff := dispatch.Coefficients(c.CourierType)
        days := int(end.Sub(start).Hours() / 24)
        hours := workingHoursTotal(c.WorkingHours) * days
        meta.CourierType = c.CourierType
        meta.OrdersCount = count
        meta.OrdersCost = cost
        meta.HoursCount = hours
        meta.Earnings = cost * earnCoeff
        if hours > 0 {
            meta.Rating = math.Round(float64(count)/float64(hours)*float64(rateCoeff)*10000) / 10000
        }
    }
    writeJSON(w, http.StatusOK, meta)
}

// workingHoursTotal sums whole-hour deltas over the courier's spans.
func workingHoursTotal(spans []string) int {
    total := 0
    for _, span := range spans {
        start, end, err := dispatch.ParseWindow(span)
        if err != nil { continue }
        total += int(end)/60 - int(start)/60
    }
    return total
}

// metaRange parses startDate/endDate query params, defaulting to the
// current calendar month.
func metaRange(r *http.Request) (time.Time, time.Time, error) {
    now := time.Now().UTC()
    start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
    end := start.AddDate(0, 1, -1)
    if v := r.URL.Query().Get("startDate"); v != "" {
        t, err := time.Parse("2006-01-02", v)
        if err != nil { return time.Time{}, time.Time{}, err }
        start = t
    }
    if v := r.URL.Query().Get("endDate"); v != "" {
        t, err := time.Parse("2006-01-02", v)
        if err != nil { return time.Time{}, time.Time{}, err }
        end = t
    }
    if end.Before(start) {
        return time.Time{}, time.Time{}, fmt.Errorf("endDate before startDate")
    }
    return start, end, nil
}

// OrdersHandler handles POST/GET /orders
func (s *Server) OrdersHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var req struct {
            Orders []model.OrderIn `json:"orders"`
        }
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if len(req.Orders) == 0 {
            writeProblem(w, http.StatusBadRequest, "Invalid orders", "orders must not be empty", r.URL.Path)
            return
        }
        for i, o := range req.Orders {
            if err := validateOrderIn(o); err != nil {
                writeProblem(w, http.StatusBadRequest, "Invalid order", fmt.Sprintf("orders[%d]: %v", i, err), r.URL.Path)
                return
            }
        }
        created, err := s.Store.CreateOrders(r.Context(), req.Orders)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create orders failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"orders": created})
    case http.MethodGet:
        limit, offset := pageParams(r)
        items, err := s.Store.ListOrders(r.Context(), limit, offset)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List orders failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"orders": items, "limit": limit, "offset": offset})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// OrdersSubtreeHandler handles GET /orders/{id}, POST /orders/complete
// and POST /orders/assign.
func (s *Server) OrdersSubtreeHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/orders/"), "/")
    switch rest {
    case "complete":
        s.completeOrders(w, r)
    case "assign":
        s.assignOrders(w, r)
    default:
        if r.Method != http.MethodGet {
            w.WriteHeader(http.StatusMethodNotAllowed)
            return
        }
        id, err := strconv.ParseInt(rest, 10, 64)
        if err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid order id", rest, r.URL.Path)
            return
        }
        o, err := s.Store.GetOrder(r.Context(), id)
        if errors.Is(err, store.ErrNotFound) {
            writeProblem(w, http.StatusNotFound, "Order not found", "", r.URL.Path)
            return
        }
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Get order failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, o)
    }
}

func (s *Server) completeOrders(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var req struct {
        CompleteInfo []model.CompleteInfo `json:"completeInfo"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if len(req.CompleteInfo) == 0 {
        writeProblem(w, http.StatusBadRequest, "Invalid completeInfo", "completeInfo must not be empty", r.URL.Path)
        return
    }
    for i, in := range req.CompleteInfo {
        if in.CourierID <= 0 || in.OrderID <= 0 || in.CompleteTime.IsZero() {
            writeProblem(w, http.StatusBadRequest, "Invalid completeInfo",
                fmt.Sprintf("completeInfo[%d]: courierId, orderId and completeTime are required", i), r.URL.Path)
            return
        }
    }
    done, err := s.Store.CompleteOrders(r.Context(), req.CompleteInfo)
    if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrNotAssigned) || errors.Is(err, store.ErrAlreadyCompleted) {
        writeProblem(w, http.StatusBadRequest, "Completion rejected", err.Error(), r.URL.Path)
        return
    }
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Complete orders failed", err.Error(), r.URL.Path)
        return
    }
    s.Broker.Publish(TopicOrders, Event{Type: "order.completed", Data: map[string]any{"count": len(done)}})
    s.Pub.Emit(r.Context(), "order.completed", map[string]any{"orders": done})
    writeJSON(w, http.StatusOK, map[string]any{"orders": done})
}

func (s *Server) assignOrders(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    p := s.getPrincipal(r)
    if !isDispatcher(p) {
        writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin required", r.URL.Path)
        return
    }
    date := r.URL.Query().Get("date")
    if date == "" {
        date = time.Now().UTC().Format("2006-01-02")
    }
    if err := validateDate(date); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid date", err.Error(), r.URL.Path)
        return
    }
    release, err := s.Store.AcquireDispatchLock(r.Context(), date)
    if errors.Is(err, store.ErrRunInProgress) {
        metrics.DispatchRuns.WithLabelValues("conflict").Inc()
        writeProblem(w, http.StatusConflict, "Dispatch in progress", "another run holds the lock for "+date, r.URL.Path)
        return
    }
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Dispatch lock failed", err.Error(), r.URL.Path)
        return
    }
    defer release()

    couriers, orders, err := s.Store.DispatchSnapshot(r.Context(), date)
    if err != nil {
        metrics.DispatchRuns.WithLabelValues("error").Inc()
        writeProblem(w, http.StatusInternalServerError, "Dispatch snapshot failed", err.Error(), r.URL.Path)
        return
    }
    start := time.Now()
    res, err := dispatch.Plan(dispatch.Input{Date: date, Couriers: couriers, Orders: orders})
    if err != nil {
        metrics.DispatchRuns.WithLabelValues("error").Inc()
        writeProblem(w, http.StatusInternalServerError, "Dispatch failed", err.Error(), r.URL.Path)
        return
    }
    metrics.DispatchDuration.Observe(time.Since(start).Seconds())
    if err := s.Store.SaveAssignments(r.Context(), res.Assignments); err != nil {
        metrics.DispatchRuns.WithLabelValues("error").Inc()
        writeProblem(w, http.StatusInternalServerError, "Save assignments failed", err.Error(), r.URL.Path)
        return
    }
    assigned := 0
    for _, a := range res.Assignments {
        assigned += len(a.OrderIDs)
    }
    metrics.DispatchRuns.WithLabelValues("ok").Inc()
    metrics.DispatchOrdersAssigned.Add(float64(assigned))
    metrics.DispatchOrdersUnassigned.Add(float64(res.Unassigned))

    summary := map[string]any{
        "date":       date,
        "batchId":    res.BatchID,
        "assigned":   assigned,
        "unassigned": res.Unassigned,
    }
    s.Broker.Publish(TopicAssignments, Event{Type: "dispatch.completed", Data: summary})
    s.Pub.Emit(r.Context(), "dispatch.completed", map[string]any{
        "date": date, "batchId": res.BatchID,
        "assigned": assigned, "unassigned": res.Unassigned,
        "assignments": res.Assignments,
    })
    writeJSON(w, http.StatusCreated, map[string]any{
        "date":        date,
        "batchId":     res.BatchID,
        "assignments": res.Assignments,
        "unassigned":  res.Unassigned,
    })
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var in model.SubscriptionIn
        if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if !strings.HasPrefix(in.URL, "http://") && !strings.HasPrefix(in.URL, "https://") {
            writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url must be http(s)", r.URL.Path)
            return
        }
        if len(in.Events) == 0 {
            writeProblem(w, http.StatusBadRequest, "Invalid subscription", "events must not be empty", r.URL.Path)
            return
        }
        sub, err := s.Store.CreateSubscription(r.Context(), in)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusCreated, sub)
    case http.MethodGet:
        items, err := s.Store.ListSubscriptions(r.Context())
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodDelete {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
    if id == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
        return
    }
    err := s.Store.DeleteSubscription(r.Context(), id)
    if errors.Is(err, store.ErrNotFound) {
        writeProblem(w, http.StatusNotFound, "Subscription not found", "", r.URL.Path)
        return
    }
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Delete subscription failed", err.Error(), r.URL.Path)
        return
    }
    w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    if err := s.Store.Ping(r.Context()); err != nil {
        writeProblem(w, http.StatusServiceUnavailable, "Not ready", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func pageParams(r *http.Request) (limit, offset int) {
    limit, offset = 1, 0
    if v := r.URL.Query().Get("limit"); v != "" {
        if n, err := strconv.Atoi(v); err == nil && n > 0 { limit = n }
    }
    if v := r.URL.Query().Get("offset"); v != "" {
        if n, err := strconv.Atoi(v); err == nil && n >= 0 { offset = n }
    }
    return limit, offset
}
