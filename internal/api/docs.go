package api

import (
    "net/http"
    "os"
    "sync"

    "gopkg.in/yaml.v3"
)

const openapiPath = "openapi/openapi.yaml"

var specOnce sync.Once
var specYAML []byte
var specJSON any

func loadSpec() {
    specOnce.Do(func() {
        b, err := os.ReadFile(openapiPath)
        if err != nil { return }
        specYAML = b
        var doc any
        if err := yaml.Unmarshal(b, &doc); err == nil {
            specJSON = doc
        }
    })
}

// OpenAPIHandler serves the API description: YAML at /openapi.yaml,
// JSON (converted from the same document) at /openapi.json.
func (s *Server) OpenAPIHandler(w http.ResponseWriter, r *http.Request) {
    loadSpec()
    switch r.URL.Path {
    case "/openapi.yaml":
        if specYAML == nil {
            writeProblem(w, http.StatusNotFound, "Not Found", "spec unavailable", r.URL.Path)
            return
        }
        w.Header().Set("Content-Type", "application/yaml")
        _, _ = w.Write(specYAML)
    case "/openapi.json":
        if specJSON == nil {
            writeProblem(w, http.StatusNotFound, "Not Found", "spec unavailable", r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, specJSON)
    default:
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
    }
}
