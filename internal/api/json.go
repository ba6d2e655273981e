package api

import (
    "encoding/json"
    "net/http"
)

// Problem is the error body every handler writes, shaped per RFC 7807.
// Detail and Instance are filled per call site; Type stays "about:blank"
// since no dedicated problem-type registry exists for this service.
type Problem struct {
    Type     string `json:"type"`
    Title    string `json:"title"`
    Status   int    `json:"status"`
    Detail   string `json:"detail,omitempty"`
    Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(v)
}

// writeProblem writes a Problem with the given status. instance should be
// the request path so clients can tell which call failed.
func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
    writeJSON(w, status, Problem{
        Type:     "about:blank",
        Title:    title,
        Status:   status,
        Detail:   detail,
        Instance: instance,
    })
}
