package webhooks

import (
    "context"
    "encoding/json"
    "time"

    "github.com/google/uuid"

    "fastdelivery/internal/store"
)

type Publisher struct {
    Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
    return &Publisher{Store: s}
}

// Emit fans an event out to every matching subscription by enqueueing
// one delivery per subscriber. Best effort: subscribers that cannot be
// enqueued are skipped, the dispatch path never fails on webhooks.
func (p *Publisher) Emit(ctx context.Context, eventType string, data any) {
    subs, err := p.Store.SubscriptionsForEvent(ctx, eventType)
    if err != nil || len(subs) == 0 {
        return
    }
    payload := map[string]any{
        "id":   "evt_" + uuid.New().String(),
        "type": eventType,
        "ts":   time.Now().UTC().Format(time.RFC3339),
        "data": data,
    }
    body, _ := json.Marshal(payload)
    for _, s := range subs {
        _, _ = p.Store.EnqueueWebhook(ctx, s.ID, eventType, s.URL, s.Secret, body)
    }
}
