package api

import (
    "net/http"
    "time"

    "github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// AssignmentsStreamHandler upgrades to WebSocket and pushes dispatch
// events as they happen: one JSON message per event. Clients pick the
// topic with ?topic=assignments|orders.
func (s *Server) AssignmentsStreamHandler(w http.ResponseWriter, r *http.Request) {
    topic := r.URL.Query().Get("topic")
    if topic == "" { topic = TopicAssignments }
    if topic != TopicAssignments && topic != TopicOrders {
        writeProblem(w, http.StatusBadRequest, "Invalid topic", "expected assignments or orders", r.URL.Path)
        return
    }
    conn, err := upgrader.Upgrade(w, r, nil)
    if err != nil {
        return
    }
    defer func() { _ = conn.Close() }()

    ch := s.Broker.Subscribe(topic)
    defer s.Broker.Unsubscribe(topic, ch)

    conn.SetReadLimit(1 << 16)
    _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
    conn.SetPongHandler(func(string) error {
        _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
        return nil
    })

    // Reader: drain control frames, signal close.
    done := make(chan struct{})
    go func() {
        defer close(done)
        for {
            if _, _, err := conn.ReadMessage(); err != nil {
                return
            }
        }
    }()

    ping := time.NewTicker(20 * time.Second)
    defer ping.Stop()
    for {
        select {
        case <-done:
            return
        case <-ping.C:
            if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
                return
            }
        case evt, ok := <-ch:
            if !ok { return }
            if err := conn.WriteJSON(evt); err != nil {
                return
            }
        }
    }
}
