package dispatch

import (
    "fmt"

    "fastdelivery/internal/model"
)

// Candidate is the immutable per-order view used during matching. Only
// the first delivery window is considered; the rest are ignored on
// purpose to keep the heuristic single-window.
type Candidate struct {
    OrderID     int64
    Region      int
    Weight      float64
    Cost        int
    WindowStart Clock
    WindowEnd   Clock
}

// NewCandidate builds a Candidate from an order. Fails when the order has
// no delivery window or the first window is malformed.
func NewCandidate(o model.Order) (Candidate, error) {
    c := Candidate{OrderID: o.ID, Region: o.Region, Weight: o.Weight, Cost: o.Cost}
    if len(o.DeliveryHours) == 0 {
        return c, fmt.Errorf("order %d has no delivery window", o.ID)
    }
    var err error
    c.WindowStart, c.WindowEnd, err = ParseWindow(o.DeliveryHours[0])
    if err != nil {
        return c, fmt.Errorf("order %d: %w", o.ID, err)
    }
    return c, nil
}
