//go:build postgres_integration

package store

import (
    "context"
    "errors"
    "os"
    "testing"
    "time"

    "fastdelivery/internal/model"
)

// Runs against a live database: TEST_DATABASE_URL must point at a
// disposable Postgres with the migrations applied.
//
//	go test -tags postgres_integration ./internal/store/

func newTestPostgres(t *testing.T) *Postgres {
    t.Helper()
    dsn := os.Getenv("TEST_DATABASE_URL")
    if dsn == "" { t.Skip("TEST_DATABASE_URL not set") }
    p, err := NewPostgres(dsn)
    if err != nil { t.Fatalf("NewPostgres: %v", err) }
    if err := p.MigrateDir(context.Background(), "../../db/migrations"); err != nil {
        t.Fatalf("MigrateDir: %v", err)
    }
    return p
}

func TestPostgresRoundTrip(t *testing.T) {
    p := newTestPostgres(t)
    ctx := context.Background()

    cs, err := p.CreateCouriers(ctx, []model.CourierIn{
        {CourierType: model.VehicleBike, Regions: []int{1, 2}, WorkingHours: []string{"09:00-18:00"}},
    })
    if err != nil { t.Fatalf("CreateCouriers: %v", err) }
    c := cs[0]

    got, err := p.GetCourier(ctx, c.ID)
    if err != nil { t.Fatalf("GetCourier: %v", err) }
    if got.CourierType != model.VehicleBike || len(got.Regions) != 2 {
        t.Fatalf("round trip: %+v", got)
    }

    os_, err := p.CreateOrders(ctx, []model.OrderIn{
        {Weight: 3, Region: 1, DeliveryHours: []string{"09:00-18:00"}, Cost: 150},
    })
    if err != nil { t.Fatalf("CreateOrders: %v", err) }
    o := os_[0]

    _, err = p.CompleteOrders(ctx, []model.CompleteInfo{{CourierID: c.ID, OrderID: o.ID, CompleteTime: time.Now()}})
    if !errors.Is(err, ErrNotAssigned) { t.Fatalf("unassigned complete: %v", err) }

    err = p.SaveAssignments(ctx, []model.Assignment{{
        BatchID: "itest", CourierID: c.ID, CourierType: c.CourierType,
        Date: "2026-08-28", TurnTime: "09:00", Regions: []int{1}, OrderIDs: []int64{o.ID},
    }})
    if err != nil { t.Fatalf("SaveAssignments: %v", err) }

    _, free, err := p.DispatchSnapshot(ctx, "2026-08-28")
    if err != nil { t.Fatalf("DispatchSnapshot: %v", err) }
    for _, fo := range free {
        if fo.ID == o.ID { t.Fatal("assigned order leaked into snapshot") }
    }

    when := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
    done, err := p.CompleteOrders(ctx, []model.CompleteInfo{{CourierID: c.ID, OrderID: o.ID, CompleteTime: when}})
    if err != nil { t.Fatalf("CompleteOrders: %v", err) }
    if done[0].CompletedTime == nil { t.Fatal("missing completed time") }

    _, err = p.CompleteOrders(ctx, []model.CompleteInfo{{CourierID: c.ID, OrderID: o.ID, CompleteTime: when.Add(time.Hour)}})
    if !errors.Is(err, ErrAlreadyCompleted) { t.Fatalf("repeat complete: %v", err) }

    count, cost, err := p.CourierStats(ctx, c.ID, when.Add(-time.Hour), when.Add(time.Hour))
    if err != nil { t.Fatalf("CourierStats: %v", err) }
    if count != 1 || cost != 150 { t.Fatalf("stats: count=%d cost=%d", count, cost) }
}

func TestPostgresDispatchLock(t *testing.T) {
    p := newTestPostgres(t)
    ctx := context.Background()
    release, err := p.AcquireDispatchLock(ctx, "2099-01-01")
    if err != nil { t.Fatalf("acquire: %v", err) }
    defer release()
    if _, err := p.AcquireDispatchLock(ctx, "2099-01-01"); !errors.Is(err, ErrRunInProgress) {
        t.Fatalf("second acquire: %v", err)
    }
}
