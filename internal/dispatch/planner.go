package dispatch

import (
    "slices"

    "github.com/google/uuid"

    "fastdelivery/internal/model"
)

// Input is the working set for one dispatch pass: a full courier roster
// and every order that is neither completed nor already assigned. The
// order of Orders carries no meaning; it is whatever the snapshot source
// produced, and the planner must not depend on it.
type Input struct {
    Date     string
    Couriers []model.Courier
    Orders   []model.Order
}

// Result is the outcome of one pass. Assignments holds one record per
// closed turn; Unassigned counts orders no shift could take, which is a
// normal outcome rather than an error.
type Result struct {
    BatchID     string
    Assignments []model.Assignment
    Unassigned  int
}

// Plan runs the single-pass greedy matching over the input snapshot.
//
// One shift is materialized per (courier, working-hours) pair. For each
// order, the open shifts are scanned in priority order (earliest cursor
// first) and the first shift whose CanAllocate accepts the order takes
// it; a shift that becomes loaded right after an allocation leaves the
// pool. When no shift matches, the order stays unassigned and the pool is
// left untouched — deliberately an explicit branch, so the check never
// acts on a shift matched for an earlier order. After the last order,
// every shift flushes its partial turn and the closed turns become the
// assignment batch.
//
// Malformed working-hours or delivery-window strings fail the whole pass:
// formats are validated upstream and a violation here means the caller
// broke the contract.
func Plan(in Input) (Result, error) {
    res := Result{BatchID: uuid.New().String(), Assignments: []model.Assignment{}}

    shifts := make([]*Shift, 0, len(in.Couriers))
    for _, c := range in.Couriers {
        for _, hours := range c.WorkingHours {
            s, err := NewShift(c, hours)
            if err != nil {
                return Result{}, err
            }
            shifts = append(shifts, s)
        }
    }

    pool := make([]*Shift, len(shifts))
    copy(pool, shifts)

    for _, o := range in.Orders {
        cand, err := NewCandidate(o)
        if err != nil {
            return Result{}, err
        }
        matched, ok := matchShift(pool, cand)
        if !ok {
            res.Unassigned++
            continue
        }
        matched.Allocate(cand)
        if matched.Loaded() {
            pool = slices.DeleteFunc(pool, func(s *Shift) bool { return s == matched })
        }
    }

    // Flush partial turns on every shift, including the ones already
    // removed from the pool.
    for _, s := range shifts {
        s.RestartTurn()
        for _, t := range s.Closed() {
            res.Assignments = append(res.Assignments, model.Assignment{
                BatchID:     res.BatchID,
                CourierID:   s.CourierID,
                CourierType: s.Vehicle,
                Date:        in.Date,
                TurnTime:    t.Start.String(),
                Regions:     t.Regions,
                OrderIDs:    t.Orders,
            })
        }
    }
    return res, nil
}

// matchShift scans the pool in priority order and returns the first shift
// that can take the candidate. Shifts re-rank themselves as their cursors
// advance, so the priority order is re-derived per order.
func matchShift(pool []*Shift, cand Candidate) (*Shift, bool) {
    ranked := make([]*Shift, len(pool))
    copy(ranked, pool)
    slices.SortStableFunc(ranked, CompareShifts)
    for _, s := range ranked {
        if s.CanAllocate(cand) {
            return s, true
        }
    }
    return nil, false
}
