package store

import (
    "context"
    "sync"
    "time"

    "github.com/google/uuid"

    "fastdelivery/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu           sync.Mutex
    couriers     map[int64]model.Courier
    courierIDs   []int64
    orders       map[int64]model.Order
    orderIDs     []int64
    assignedTo   map[int64]int64 // order id -> courier id
    assignments  []model.Assignment
    subs         map[string]model.Subscription
    subIDs       []string
    deliveries   map[string]*memDelivery
    deliveryIDs  []string
    locks        map[string]*sync.Mutex // dispatch date -> run lock
    nextCourier  int64
    nextOrder    int64
    nextRecordID int64
}

func NewMemory() *Memory {
    return &Memory{
        couriers:   map[int64]model.Courier{},
        orders:     map[int64]model.Order{},
        assignedTo: map[int64]int64{},
        subs:       map[string]model.Subscription{},
        deliveries: map[string]*memDelivery{},
        locks:      map[string]*sync.Mutex{},
    }
}

// memDelivery augments WebhookDelivery with scheduling state.
type memDelivery struct {
    WebhookDelivery
    NextAttemptAt time.Time
    LastError     string
    ResponseCode  int
}

func (m *Memory) CreateCouriers(ctx context.Context, couriers []model.CourierIn) ([]model.Courier, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := make([]model.Courier, 0, len(couriers))
    for _, in := range couriers {
        m.nextCourier++
        c := model.Courier{ID: m.nextCourier, CourierType: in.CourierType, Regions: in.Regions, WorkingHours: in.WorkingHours}
        m.couriers[c.ID] = c
        m.courierIDs = append(m.courierIDs, c.ID)
        out = append(out, c)
    }
    return out, nil
}

func (m *Memory) GetCourier(ctx context.Context, id int64) (model.Courier, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    c, ok := m.couriers[id]
    if !ok { return model.Courier{}, ErrNotFound }
    return c, nil
}

func (m *Memory) ListCouriers(ctx context.Context, limit, offset int) ([]model.Courier, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if limit <= 0 { limit = 1 }
    if offset < 0 { offset = 0 }
    out := []model.Courier{}
    for i := offset; i < len(m.courierIDs) && len(out) < limit; i++ {
        out = append(out, m.couriers[m.courierIDs[i]])
    }
    return out, nil
}

func (m *Memory) CreateOrders(ctx context.Context, orders []model.OrderIn) ([]model.Order, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := make([]model.Order, 0, len(orders))
    for _, in := range orders {
        m.nextOrder++
        o := model.Order{ID: m.nextOrder, Weight: in.Weight, Region: in.Region, DeliveryHours: in.DeliveryHours, Cost: in.Cost}
        m.orders[o.ID] = o
        m.orderIDs = append(m.orderIDs, o.ID)
        out = append(out, o)
    }
    return out, nil
}

func (m *Memory) GetOrder(ctx context.Context, id int64) (model.Order, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    o, ok := m.orders[id]
    if !ok { return model.Order{}, ErrNotFound }
    return o, nil
}

func (m *Memory) ListOrders(ctx context.Context, limit, offset int) ([]model.Order, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if limit <= 0 { limit = 1 }
    if offset < 0 { offset = 0 }
    out := []model.Order{}
    for i := offset; i < len(m.orderIDs) && len(out) < limit; i++ {
        out = append(out, m.orders[m.orderIDs[i]])
    }
    return out, nil
}

func (m *Memory) CompleteOrders(ctx context.Context, infos []model.CompleteInfo) ([]model.Order, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    // Validate the whole batch before mutating anything.
    for _, in := range infos {
        o, ok := m.orders[in.OrderID]
        if !ok { return nil, ErrNotFound }
        if m.assignedTo[in.OrderID] != in.CourierID { return nil, ErrNotAssigned }
        if o.CompletedTime != nil { return nil, ErrAlreadyCompleted }
    }
    out := make([]model.Order, 0, len(infos))
    for _, in := range infos {
        o := m.orders[in.OrderID]
        t := in.CompleteTime
        o.CompletedTime = &t
        m.orders[in.OrderID] = o
        out = append(out, o)
    }
    return out, nil
}

func (m *Memory) DispatchSnapshot(ctx context.Context, date string) ([]model.Courier, []model.Order, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    couriers := make([]model.Courier, 0, len(m.courierIDs))
    for _, id := range m.courierIDs {
        couriers = append(couriers, m.couriers[id])
    }
    orders := []model.Order{}
    for _, id := range m.orderIDs {
        o := m.orders[id]
        if o.CompletedTime != nil { continue }
        if _, taken := m.assignedTo[id]; taken { continue }
        orders = append(orders, o)
    }
    return couriers, orders, nil
}

func (m *Memory) SaveAssignments(ctx context.Context, assignments []model.Assignment) error {
    m.mu.Lock(); defer m.mu.Unlock()
    for _, a := range assignments {
        m.nextRecordID++
        a.ID = m.nextRecordID
        m.assignments = append(m.assignments, a)
        for _, oid := range a.OrderIDs {
            m.assignedTo[oid] = a.CourierID
        }
    }
    return nil
}

func (m *Memory) ListAssignments(ctx context.Context, date string, courierID int64) ([]model.Assignment, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.Assignment{}
    for _, a := range m.assignments {
        if date != "" && a.Date != date { continue }
        if courierID != 0 && a.CourierID != courierID { continue }
        out = append(out, a)
    }
    return out, nil
}

func (m *Memory) AcquireDispatchLock(ctx context.Context, date string) (func(), error) {
    m.mu.Lock()
    l, ok := m.locks[date]
    if !ok {
        l = &sync.Mutex{}
        m.locks[date] = l
    }
    m.mu.Unlock()
    if !l.TryLock() { return nil, ErrRunInProgress }
    return l.Unlock, nil
}

func (m *Memory) CourierStats(ctx context.Context, courierID int64, start, end time.Time) (int, int, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    count, cost := 0, 0
    for _, id := range m.orderIDs {
        o := m.orders[id]
        if o.CompletedTime == nil || m.assignedTo[id] != courierID { continue }
        t := *o.CompletedTime
        if t.Before(start) || !t.Before(end) { continue }
        count++
        cost += o.Cost
    }
    return count, cost, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, in model.SubscriptionIn) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s := model.Subscription{ID: uuid.New().String(), URL: in.URL, Events: in.Events, Secret: in.Secret}
    m.subs[s.ID] = s
    m.subIDs = append(m.subIDs, s.ID)
    return s, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.Subscription{}
    for _, id := range m.subIDs {
        out = append(out, m.subs[id])
    }
    return out, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.subs[id]; !ok { return ErrNotFound }
    delete(m.subs, id)
    for i, sid := range m.subIDs {
        if sid == id {
            m.subIDs = append(m.subIDs[:i], m.subIDs[i+1:]...)
            break
        }
    }
    return nil
}

func (m *Memory) SubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.Subscription{}
    for _, id := range m.subIDs {
        s := m.subs[id]
        for _, e := range s.Events {
            if e == eventType || e == "*" {
                out = append(out, s)
                break
            }
        }
    }
    return out, nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    d := &memDelivery{WebhookDelivery: WebhookDelivery{
        ID:             uuid.New().String(),
        SubscriptionID: subscriptionID,
        EventType:      eventType,
        URL:            url,
        Secret:         secret,
        Payload:        payload,
        Status:         "pending",
    }}
    m.deliveries[d.ID] = d
    m.deliveryIDs = append(m.deliveryIDs, d.ID)
    return d.ID, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := time.Now()
    out := []WebhookDelivery{}
    for _, id := range m.deliveryIDs {
        d := m.deliveries[id]
        if d.Status != "pending" || d.NextAttemptAt.After(now) { continue }
        out = append(out, d.WebhookDelivery)
        if limit > 0 && len(out) >= limit { break }
    }
    return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d, ok := m.deliveries[id]
    if !ok { return ErrNotFound }
    d.Attempts++
    d.LastError = lastError
    d.ResponseCode = responseCode
    switch {
    case success:
        d.Status = "delivered"
    case nextAttemptAt != nil:
        d.Status = "pending"
        d.NextAttemptAt = *nextAttemptAt
    default:
        d.Status = "failed"
    }
    return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
