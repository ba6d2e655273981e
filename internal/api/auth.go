package api

import (
    "net/http"
    "strings"

    "fastdelivery/internal/auth"
)

// getPrincipal extracts the caller identity.
//   - If Authorization: Bearer is present, uses the configured verifier
//     (dev/hmac).
//   - Else falls back to headers for dev.
func (s *Server) getPrincipal(r *http.Request) auth.Principal {
    authz := r.Header.Get("Authorization")
    if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
        tok := strings.TrimSpace(authz[len("Bearer "):])
        if p, err := s.Auth.Verify(tok); err == nil {
            return p
        }
    }
    subject := r.Header.Get("X-Subject")
    role := r.Header.Get("X-Role")
    if subject == "" {
        subject = "anonymous"
    }
    if role == "" {
        role = "admin"
    }
    return auth.Principal{Subject: subject, Role: strings.ToLower(role)}
}

func isDispatcher(p auth.Principal) bool {
    return p.Role == "admin" || p.Role == "dispatcher"
}
