package store

import (
    "context"
    "errors"
    "time"

    "fastdelivery/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
    // Couriers
    CreateCouriers(ctx context.Context, couriers []model.CourierIn) ([]model.Courier, error)
    GetCourier(ctx context.Context, id int64) (model.Courier, error)
    ListCouriers(ctx context.Context, limit, offset int) ([]model.Courier, error)

    // Orders
    CreateOrders(ctx context.Context, orders []model.OrderIn) ([]model.Order, error)
    GetOrder(ctx context.Context, id int64) (model.Order, error)
    ListOrders(ctx context.Context, limit, offset int) ([]model.Order, error)
    CompleteOrders(ctx context.Context, infos []model.CompleteInfo) ([]model.Order, error)

    // Dispatch
    // DispatchSnapshot returns the full courier roster plus every order
    // that is neither completed nor already assigned.
    DispatchSnapshot(ctx context.Context, date string) ([]model.Courier, []model.Order, error)
    // SaveAssignments persists one batch atomically and marks the
    // covered orders as assigned.
    SaveAssignments(ctx context.Context, assignments []model.Assignment) error
    ListAssignments(ctx context.Context, date string, courierID int64) ([]model.Assignment, error)
    // AcquireDispatchLock serializes dispatch runs per date. A second
    // caller gets ErrRunInProgress until release is called.
    AcquireDispatchLock(ctx context.Context, date string) (release func(), err error)

    // Meta-info source data: completed-order count and cost sum for one
    // courier over [start, end).
    CourierStats(ctx context.Context, courierID int64, start, end time.Time) (count, cost int, err error)

    // Subscriptions
    CreateSubscription(ctx context.Context, in model.SubscriptionIn) (model.Subscription, error)
    ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
    DeleteSubscription(ctx context.Context, id string) error
    SubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)

    // Webhook deliveries
    EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
    FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
    MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int) error

    Ping(ctx context.Context) error
}

var (
    ErrNotFound = errors.New("not found")

    // ErrRunInProgress means another dispatch run holds the per-date lock.
    ErrRunInProgress = errors.New("dispatch run already in progress")

    // ErrNotAssigned rejects a completion for an order that was never
    // assigned to that courier.
    ErrNotAssigned = errors.New("order not assigned to courier")

    // ErrAlreadyCompleted rejects a second completion of the same order.
    ErrAlreadyCompleted = errors.New("order already completed")
)
