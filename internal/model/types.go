package model

import "time"

// VehicleType identifies how a courier moves around town. The dispatch
// capability table in internal/dispatch keys off this value.
type VehicleType string

const (
    VehicleFoot VehicleType = "FOOT"
    VehicleBike VehicleType = "BIKE"
    VehicleAuto VehicleType = "AUTO"
)

// Known reports whether the value is one of the supported vehicle types.
func (v VehicleType) Known() bool {
    return v == VehicleFoot || v == VehicleBike || v == VehicleAuto
}

// Courier is a registered courier. WorkingHours holds one or more
// "HH:MM-HH:MM" spans; each span becomes an independent shift on dispatch.
type Courier struct {
    ID           int64       `json:"id"`
    CourierType  VehicleType `json:"courierType"`
    Regions      []int       `json:"regions"`
    WorkingHours []string    `json:"workingHours"`
}

// CourierIn is the create payload for a single courier.
type CourierIn struct {
    CourierType  VehicleType `json:"courierType"`
    Regions      []int       `json:"regions"`
    WorkingHours []string    `json:"workingHours"`
}

// Order is a delivery order. DeliveryHours holds one or more
// "HH:MM-HH:MM" windows; only the first is considered by dispatch.
type Order struct {
    ID            int64      `json:"id"`
    Weight        float64    `json:"weight"`
    Region        int        `json:"region"`
    DeliveryHours []string   `json:"deliveryHours"`
    Cost          int        `json:"cost"`
    CompletedTime *time.Time `json:"completedTime,omitempty"`
}

// OrderIn is the create payload for a single order.
type OrderIn struct {
    Weight        float64  `json:"weight"`
    Region        int      `json:"region"`
    DeliveryHours []string `json:"deliveryHours"`
    Cost          int      `json:"cost"`
}

// CompleteInfo marks one order delivered by one courier.
type CompleteInfo struct {
    CourierID    int64     `json:"courierId"`
    OrderID      int64     `json:"orderId"`
    CompleteTime time.Time `json:"completeTime"`
}

// Assignment is one closed delivery turn: a batch of orders one courier
// delivers together on one outing. Immutable once stored.
type Assignment struct {
    ID          int64       `json:"id,omitempty"`
    BatchID     string      `json:"batchId"`
    CourierID   int64       `json:"courierId"`
    CourierType VehicleType `json:"courierType"`
    Date        string      `json:"date"`     // YYYY-MM-DD
    TurnTime    string      `json:"turnTime"` // HH:MM, start of the turn
    Regions     []int       `json:"regions"`  // distinct, insertion order
    OrderIDs    []int64     `json:"orderIds"` // assignment order
}

// CourierMeta is the meta-info read model: activity totals plus derived
// earnings and rating over a date range.
type CourierMeta struct {
    CourierID   int64       `json:"courierId"`
    CourierType VehicleType `json:"courierType,omitempty"`
    StartDate   string      `json:"startDate"`
    EndDate     string      `json:"endDate"`
    OrdersCount int         `json:"ordersCount,omitempty"`
    OrdersCost  int         `json:"ordersCost,omitempty"`
    HoursCount  int         `json:"hoursCount,omitempty"`
    Earnings    int         `json:"earnings,omitempty"`
    Rating      float64     `json:"rating,omitempty"`
}

// Subscription registers a webhook endpoint for dispatch events.
type Subscription struct {
    ID     string   `json:"id"`
    URL    string   `json:"url"`
    Events []string `json:"events"`
    Secret string   `json:"secret,omitempty"`
}

// SubscriptionIn is the create payload for a webhook subscription.
type SubscriptionIn struct {
    URL    string   `json:"url"`
    Events []string `json:"events"`
    Secret string   `json:"secret"`
}
