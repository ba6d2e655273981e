package dispatch

import (
    "fmt"

    "fastdelivery/internal/model"
)

// ShiftState tags the shift's position in its lifecycle. A shift opens
// with daylight left and is exhausted once its cursor can no longer fit a
// delivery before the shift end.
type ShiftState int

const (
    ShiftOpen ShiftState = iota
    ShiftExhausted
)

// Turn accumulates one batch of orders delivered together. Start is the
// cursor value at the moment the turn was opened; Regions keeps distinct
// regions in insertion order; Orders keeps assignment order. A Turn is
// immutable once it lands on the shift's closed list.
type Turn struct {
    Start   Clock
    Regions []int
    Orders  []int64
}

func (t Turn) touches(region int) bool {
    for _, r := range t.Regions {
        if r == region {
            return true
        }
    }
    return false
}

// Shift is one courier's one working window on one date: the unit of
// capacity tracking. All mutation happens through Allocate, CanAllocate
// (time resync only) and RestartTurn; everything else is read-only.
type Shift struct {
    CourierID int64
    Vehicle   model.VehicleType

    cap     Capability
    regions map[int]struct{}
    start   Clock
    end     Clock

    // Allocation state. cursor is the time the courier becomes free for
    // the next delivery; started marks that the cursor has been
    // established (always true for shifts built by NewShift, kept
    // explicit so the ordering rule for cursor-less shifts stays named
    // rather than implied).
    cursor  Clock
    started bool
    state   ShiftState

    load        float64 // remaining weight budget for the current turn
    regionSlots int     // remaining fresh-region budget
    orderSlots  int     // remaining order-count budget

    current Turn
    closed  []Turn
}

// NewShift builds the allocation context for one (courier, working-hours)
// pair. A courier with several working-hours spans yields several shifts
// that never share capacity.
func NewShift(c model.Courier, hours string) (*Shift, error) {
    start, end, err := ParseWindow(hours)
    if err != nil {
        return nil, fmt.Errorf("courier %d: %w", c.ID, err)
    }
    s := &Shift{
        CourierID: c.ID,
        Vehicle:   c.CourierType,
        cap:       CapabilityFor(c.CourierType),
        regions:   make(map[int]struct{}, len(c.Regions)),
        start:     start,
        end:       end,
        cursor:    start,
        started:   true,
    }
    for _, r := range c.Regions {
        s.regions[r] = struct{}{}
    }
    s.resetBudgets()
    s.current = Turn{Start: s.cursor}
    return s, nil
}

func (s *Shift) resetBudgets() {
    s.load = s.cap.MaxLoad
    s.regionSlots = s.cap.MaxRegions
    s.orderSlots = s.cap.MaxOrders
}

// deliverCost is the per-order delivery cost in minutes: FirstMin when
// the current turn is empty, NextMin otherwise.
func (s *Shift) deliverCost() Clock {
    if len(s.current.Orders) == 0 {
        return Clock(s.cap.FirstMin)
    }
    return Clock(s.cap.NextMin)
}

// deliverTime is the clock at which the next order in the current turn
// would be delivered.
func (s *Shift) deliverTime() Clock {
    return s.cursor + s.deliverCost()
}

// CanAllocate reports whether the order fits this shift. Three checks run
// in order: time, weight, region. The time check carries a side effect:
// when the candidate deliver time misses the order's window but the shift
// still has room to open a fresh turn no earlier than the window start
// (end - FirstMin >= windowStart), the current turn is force-closed and
// the cursor jumps to the window start, after which the order counts as
// feasible. That resync persists even if a later check fails.
func (s *Shift) CanAllocate(o Candidate) bool {
    return s.fitsTime(o) && s.fitsWeight(o) && s.fitsRegion(o)
}

func (s *Shift) fitsTime(o Candidate) bool {
    dt := s.deliverTime()
    if o.WindowStart <= dt && dt <= o.WindowEnd {
        return true
    }
    if s.end-Clock(s.cap.FirstMin) >= o.WindowStart {
        s.RestartTurn()
        s.cursor = o.WindowStart
        s.current.Start = o.WindowStart
        return true
    }
    return false
}

func (s *Shift) fitsWeight(o Candidate) bool {
    return s.load >= o.Weight
}

func (s *Shift) fitsRegion(o Candidate) bool {
    if _, ok := s.regions[o.Region]; !ok {
        return false
    }
    return s.current.touches(o.Region) || s.regionSlots > 0
}

// Allocate commits the order to the current turn. Callers must have seen
// CanAllocate return true in the same step; no checks are repeated here.
// The cursor advances to the delivery time, budgets shrink, and a turn
// that hits its weight or order limit exactly is closed on the spot.
func (s *Shift) Allocate(o Candidate) {
    s.cursor = s.deliverTime()
    s.current.Orders = append(s.current.Orders, o.OrderID)
    s.orderSlots--
    if !s.current.touches(o.Region) {
        s.current.Regions = append(s.current.Regions, o.Region)
        s.regionSlots--
    }
    s.load -= o.Weight
    if s.load == 0 || s.orderSlots == 0 {
        s.RestartTurn()
    }
    s.transition()
}

// RestartTurn closes the current turn: a non-empty turn is appended to
// the closed list, budgets return to the vehicle maxima and a fresh turn
// opens at the cursor. Also called by the driver at end of run to flush a
// partial turn.
func (s *Shift) RestartTurn() {
    if len(s.current.Orders) > 0 {
        s.closed = append(s.closed, s.current)
    }
    s.resetBudgets()
    s.current = Turn{Start: s.cursor}
}

// transition re-evaluates the Open/Exhausted tag. Invoked after every
// allocation that advanced the cursor.
func (s *Shift) transition() {
    if s.deliverTime() > s.end {
        s.state = ShiftExhausted
    }
}

// Loaded reports whether the shift can serve no further order today: the
// next deliver time would pass the shift end regardless of any per-order
// feasibility.
func (s *Shift) Loaded() bool {
    s.transition()
    return s.state == ShiftExhausted
}

// Closed returns the finished turns in the order they were closed.
func (s *Shift) Closed() []Turn {
    return s.closed
}

// CompareShifts is the scheduling priority order: earlier cursor first. A
// shift whose cursor is not yet established ranks ahead of any shift with
// one; courier id breaks remaining ties so the order is total. The
// cursor-less case is unreachable for shifts built by NewShift and exists
// for future shift sources without a known start.
func CompareShifts(a, b *Shift) int {
    switch {
    case !a.started && !b.started:
        // fall through to id tie-break
    case !a.started:
        return -1
    case !b.started:
        return 1
    case a.cursor != b.cursor:
        if a.cursor < b.cursor {
            return -1
        }
        return 1
    }
    if a.CourierID != b.CourierID {
        if a.CourierID < b.CourierID {
            return -1
        }
        return 1
    }
    return 0
}
