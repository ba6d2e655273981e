package store

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "fmt"
    "hash/fnv"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "fastdelivery/internal/model"
)

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
    return p.db.PingContext(ctx)
}

// MigrateDir applies every .sql file in dir in lexical order. Files are
// expected to be idempotent (CREATE TABLE IF NOT EXISTS style).
func (p *Postgres) MigrateDir(ctx context.Context, dir string) error {
    entries, err := os.ReadDir(dir)
    if err != nil { return err }
    names := []string{}
    for _, e := range entries {
        if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
            names = append(names, e.Name())
        }
    }
    sort.Strings(names)
    for _, name := range names {
        b, err := os.ReadFile(filepath.Join(dir, name))
        if err != nil { return err }
        if _, err := p.db.ExecContext(ctx, string(b)); err != nil {
            return fmt.Errorf("migrate %s: %w", name, err)
        }
    }
    return nil
}

func toJSON(v any) []byte {
    b, _ := json.Marshal(v)
    return b
}

func (p *Postgres) CreateCouriers(ctx context.Context, couriers []model.CourierIn) ([]model.Courier, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return nil, err }
    defer func() { _ = tx.Rollback() }()

    out := make([]model.Courier, 0, len(couriers))
    for _, in := range couriers {
        c := model.Courier{CourierType: in.CourierType, Regions: in.Regions, WorkingHours: in.WorkingHours}
        err = tx.QueryRowContext(ctx,
            `INSERT INTO couriers (courier_type, regions, working_hours) VALUES ($1,$2,$3) RETURNING id`,
            string(in.CourierType), toJSON(in.Regions), toJSON(in.WorkingHours)).Scan(&c.ID)
        if err != nil { return nil, err }
        out = append(out, c)
    }
    if err := tx.Commit(); err != nil { return nil, err }
    return out, nil
}

func scanCourier(row interface{ Scan(...any) error }) (model.Courier, error) {
    var c model.Courier
    var ctype string
    var regions, hours []byte
    if err := row.Scan(&c.ID, &ctype, &regions, &hours); err != nil {
        return model.Courier{}, err
    }
    c.CourierType = model.VehicleType(ctype)
    if err := json.Unmarshal(regions, &c.Regions); err != nil { return model.Courier{}, err }
    if err := json.Unmarshal(hours, &c.WorkingHours); err != nil { return model.Courier{}, err }
    return c, nil
}

func (p *Postgres) GetCourier(ctx context.Context, id int64) (model.Courier, error) {
    row := p.db.QueryRowContext(ctx, `SELECT id, courier_type, regions, working_hours FROM couriers WHERE id=$1`, id)
    c, err := scanCourier(row)
    if errors.Is(err, sql.ErrNoRows) { return model.Courier{}, ErrNotFound }
    return c, err
}

func (p *Postgres) ListCouriers(ctx context.Context, limit, offset int) ([]model.Courier, error) {
    if limit <= 0 { limit = 1 }
    if offset < 0 { offset = 0 }
    rows, err := p.db.QueryContext(ctx,
        `SELECT id, courier_type, regions, working_hours FROM couriers ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Courier{}
    for rows.Next() {
        c, err := scanCourier(rows)
        if err != nil { return nil, err }
        out = append(out, c)
    }
    return out, rows.Err()
}

func (p *Postgres) CreateOrders(ctx context.Context, orders []model.OrderIn) ([]model.Order, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return nil, err }
    defer func() { _ = tx.Rollback() }()

    out := make([]model.Order, 0, len(orders))
    for _, in := range orders {
        o := model.Order{Weight: in.Weight, Region: in.Region, DeliveryHours: in.DeliveryHours, Cost: in.Cost}
        err = tx.QueryRowContext(ctx,
            `INSERT INTO orders (weight, region, delivery_hours, cost) VALUES ($1,$2,$3,$4) RETURNING id`,
            in.Weight, in.Region, toJSON(in.DeliveryHours), in.Cost).Scan(&o.ID)
        if err != nil { return nil, err }
        out = append(out, o)
    }
    if err := tx.Commit(); err != nil { return nil, err }
    return out, nil
}

func scanOrder(row interface{ Scan(...any) error }) (model.Order, error) {
    var o model.Order
    var hours []byte
    var completed sql.NullTime
    if err := row.Scan(&o.ID, &o.Weight, &o.Region, &hours, &o.Cost, &completed); err != nil {
        return model.Order{}, err
    }
    if err := json.Unmarshal(hours, &o.DeliveryHours); err != nil { return model.Order{}, err }
    if completed.Valid {
        t := completed.Time
        o.CompletedTime = &t
    }
    return o, nil
}

func (p *Postgres) GetOrder(ctx context.Context, id int64) (model.Order, error) {
    row := p.db.QueryRowContext(ctx,
        `SELECT id, weight, region, delivery_hours, cost, completed_time FROM orders WHERE id=$1`, id)
    o, err := scanOrder(row)
    if errors.Is(err, sql.ErrNoRows) { return model.Order{}, ErrNotFound }
    return o, err
}

func (p *Postgres) ListOrders(ctx context.Context, limit, offset int) ([]model.Order, error) {
    if limit <= 0 { limit = 1 }
    if offset < 0 { offset = 0 }
    rows, err := p.db.QueryContext(ctx,
        `SELECT id, weight, region, delivery_hours, cost, completed_time FROM orders ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Order{}
    for rows.Next() {
        o, err := scanOrder(rows)
        if err != nil { return nil, err }
        out = append(out, o)
    }
    return out, rows.Err()
}

func (p *Postgres) CompleteOrders(ctx context.Context, infos []model.CompleteInfo) ([]model.Order, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return nil, err }
    defer func() { _ = tx.Rollback() }()

    out := make([]model.Order, 0, len(infos))
    for _, in := range infos {
        var assigned sql.NullInt64
        var completed sql.NullTime
        err = tx.QueryRowContext(ctx, `SELECT assigned_courier_id, completed_time FROM orders WHERE id=$1 FOR UPDATE`, in.OrderID).Scan(&assigned, &completed)
        if errors.Is(err, sql.ErrNoRows) { return nil, ErrNotFound }
        if err != nil { return nil, err }
        if !assigned.Valid || assigned.Int64 != in.CourierID { return nil, ErrNotAssigned }
        if completed.Valid { return nil, ErrAlreadyCompleted }
        row := tx.QueryRowContext(ctx,
            `UPDATE orders SET completed_time = $2 WHERE id=$1
             RETURNING id, weight, region, delivery_hours, cost, completed_time`,
            in.OrderID, in.CompleteTime)
        o, err := scanOrder(row)
        if err != nil { return nil, err }
        out = append(out, o)
    }
    if err := tx.Commit(); err != nil { return nil, err }
    return out, nil
}

func (p *Postgres) DispatchSnapshot(ctx context.Context, date string) ([]model.Courier, []model.Order, error) {
    couriers, err := p.ListCouriers(ctx, 1<<30, 0)
    if err != nil { return nil, nil, err }
    rows, err := p.db.QueryContext(ctx,
        `SELECT id, weight, region, delivery_hours, cost, completed_time FROM orders
         WHERE completed_time IS NULL AND assigned_batch IS NULL ORDER BY id`)
    if err != nil { return nil, nil, err }
    defer rows.Close()
    orders := []model.Order{}
    for rows.Next() {
        o, err := scanOrder(rows)
        if err != nil { return nil, nil, err }
        orders = append(orders, o)
    }
    return couriers, orders, rows.Err()
}

func (p *Postgres) SaveAssignments(ctx context.Context, assignments []model.Assignment) error {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func() { _ = tx.Rollback() }()

    for _, a := range assignments {
        _, err = tx.ExecContext(ctx,
            `INSERT INTO assignments (batch_id, courier_id, courier_type, plan_date, turn_time, regions, order_ids)
             VALUES ($1,$2,$3,$4,$5,$6,$7)`,
            a.BatchID, a.CourierID, string(a.CourierType), a.Date, a.TurnTime, toJSON(a.Regions), toJSON(a.OrderIDs))
        if err != nil { return err }
        for _, oid := range a.OrderIDs {
            _, err = tx.ExecContext(ctx,
                `UPDATE orders SET assigned_courier_id=$1, assigned_batch=$2 WHERE id=$3`,
                a.CourierID, a.BatchID, oid)
            if err != nil { return err }
        }
    }
    return tx.Commit()
}

func (p *Postgres) ListAssignments(ctx context.Context, date string, courierID int64) ([]model.Assignment, error) {
    q := `SELECT id, batch_id, courier_id, courier_type, plan_date, turn_time, regions, order_ids FROM assignments`
    conds, args := []string{}, []any{}
    if date != "" {
        args = append(args, date)
        conds = append(conds, fmt.Sprintf("plan_date=$%d", len(args)))
    }
    if courierID != 0 {
        args = append(args, courierID)
        conds = append(conds, fmt.Sprintf("courier_id=$%d", len(args)))
    }
    if len(conds) > 0 { q += " WHERE " + strings.Join(conds, " AND ") }
    q += " ORDER BY id"
    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Assignment{}
    for rows.Next() {
        var a model.Assignment
        var ctype string
        var regions, orderIDs []byte
        if err := rows.Scan(&a.ID, &a.BatchID, &a.CourierID, &ctype, &a.Date, &a.TurnTime, &regions, &orderIDs); err != nil {
            return nil, err
        }
        a.CourierType = model.VehicleType(ctype)
        if err := json.Unmarshal(regions, &a.Regions); err != nil { return nil, err }
        if err := json.Unmarshal(orderIDs, &a.OrderIDs); err != nil { return nil, err }
        out = append(out, a)
    }
    return out, rows.Err()
}

// AcquireDispatchLock takes a session-level advisory lock keyed on the
// date, on a dedicated connection so the lock survives until release.
func (p *Postgres) AcquireDispatchLock(ctx context.Context, date string) (func(), error) {
    key := lockKey(date)
    conn, err := p.db.Conn(ctx)
    if err != nil { return nil, err }
    var got bool
    if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&got); err != nil {
        _ = conn.Close()
        return nil, err
    }
    if !got {
        _ = conn.Close()
        return nil, ErrRunInProgress
    }
    release := func() {
        _, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, key)
        _ = conn.Close()
    }
    return release, nil
}

func lockKey(date string) int64 {
    h := fnv.New64a()
    _, _ = h.Write([]byte("dispatch:" + date))
    return int64(h.Sum64())
}

func (p *Postgres) CourierStats(ctx context.Context, courierID int64, start, end time.Time) (int, int, error) {
    var count, cost int
    err := p.db.QueryRowContext(ctx,
        `SELECT COUNT(*), COALESCE(SUM(cost),0) FROM orders
         WHERE assigned_courier_id=$1 AND completed_time >= $2 AND completed_time < $3`,
        courierID, start, end).Scan(&count, &cost)
    return count, cost, err
}

func (p *Postgres) CreateSubscription(ctx context.Context, in model.SubscriptionIn) (model.Subscription, error) {
    s := model.Subscription{ID: uuid.New().String(), URL: in.URL, Events: in.Events, Secret: in.Secret}
    _, err := p.db.ExecContext(ctx,
        `INSERT INTO subscriptions (id, url, events, secret) VALUES ($1,$2,$3,$4)`,
        s.ID, s.URL, toJSON(s.Events), s.Secret)
    if err != nil { return model.Subscription{}, err }
    return s, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id, url, events, secret FROM subscriptions ORDER BY created_at`)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        var s model.Subscription
        var events []byte
        if err := rows.Scan(&s.ID, &s.URL, &events, &s.Secret); err != nil { return nil, err }
        if err := json.Unmarshal(events, &s.Events); err != nil { return nil, err }
        out = append(out, s)
    }
    return out, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
    res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) SubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
    rows, err := p.db.QueryContext(ctx,
        `SELECT id, url, events, secret FROM subscriptions WHERE events @> to_jsonb(ARRAY[$1::text]) OR events @> '["*"]'`,
        eventType)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        var s model.Subscription
        var events []byte
        if err := rows.Scan(&s.ID, &s.URL, &events, &s.Secret); err != nil { return nil, err }
        if err := json.Unmarshal(events, &s.Events); err != nil { return nil, err }
        out = append(out, s)
    }
    return out, rows.Err()
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    _, err := p.db.ExecContext(ctx,
        `INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at)
         VALUES ($1,$2,$3,$4,$5,$6,'pending',0,now())`,
        id, subscriptionID, eventType, url, secret, payload)
    if err != nil { return "", err }
    return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    if limit <= 0 { limit = 50 }
    rows, err := p.db.QueryContext(ctx,
        `SELECT id, subscription_id, event_type, url, secret, payload, status, attempts
         FROM webhook_deliveries WHERE status='pending' AND next_attempt_at <= now()
         ORDER BY next_attempt_at LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
            return nil, err
        }
        out = append(out, d)
    }
    return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int) error {
    status := "failed"
    switch {
    case success:
        status = "delivered"
    case nextAttemptAt != nil:
        status = "pending"
    }
    res, err := p.db.ExecContext(ctx,
        `UPDATE webhook_deliveries
         SET status=$2, attempts=attempts+1, next_attempt_at=COALESCE($3, next_attempt_at), last_error=$4, response_code=$5
         WHERE id=$1`,
        id, status, nextAttemptAt, lastError, responseCode)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}
