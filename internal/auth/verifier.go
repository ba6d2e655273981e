// Package auth provides JWT verification helpers.
package auth

import (
    "crypto/hmac"
    "crypto/sha256"
    "encoding/base64"
    "encoding/json"
    "errors"
    "os"
    "strings"
)

// Verifier validates bearer tokens and extracts subject/role claims.
// Supports modes: dev (no verify), hmac (HS256).
type Verifier struct {
    Mode       string
    HMACSecret []byte
}

type Principal struct {
    Subject string
    Role    string
}

func NewVerifierFromEnv() *Verifier {
    mode := strings.ToLower(strings.TrimSpace(os.Getenv("AUTH_MODE")))
    if mode == "" {
        mode = "dev"
    }
    return &Verifier{
        Mode:       mode,
        HMACSecret: []byte(os.Getenv("AUTH_HMAC_SECRET")),
    }
}

func (v *Verifier) Verify(token string) (Principal, error) {
    if v.Mode == "dev" {
        // token format: subject:role
        parts := strings.Split(token, ":")
        if len(parts) >= 2 {
            return Principal{Subject: parts[0], Role: strings.ToLower(parts[1])}, nil
        }
        return Principal{}, errors.New("invalid dev token; expected subject:role")
    }
    if v.Mode != "hmac" {
        return Principal{}, errors.New("unsupported auth mode")
    }
    segs := strings.Split(token, ".")
    if len(segs) != 3 {
        return Principal{}, errors.New("invalid JWT")
    }
    headerJSON, err := b64urlDecode(segs[0])
    if err != nil {
        return Principal{}, err
    }
    payloadJSON, err := b64urlDecode(segs[1])
    if err != nil {
        return Principal{}, err
    }
    sig, err := b64urlDecode(segs[2])
    if err != nil {
        return Principal{}, err
    }
    var hdr map[string]any
    if err := json.Unmarshal(headerJSON, &hdr); err != nil {
        return Principal{}, err
    }
    if alg, _ := hdr["alg"].(string); alg != "HS256" {
        return Principal{}, errors.New("unsupported alg for hmac")
    }
    mac := hmac.New(sha256.New, v.HMACSecret)
    mac.Write([]byte(segs[0] + "." + segs[1]))
    if !hmac.Equal(mac.Sum(nil), sig) {
        return Principal{}, errors.New("bad signature")
    }
    var claims map[string]any
    if err := json.Unmarshal(payloadJSON, &claims); err != nil {
        return Principal{}, err
    }
    sub, _ := claims["sub"].(string)
    role, _ := claims["role"].(string)
    if sub == "" {
        return Principal{}, errors.New("missing sub claim")
    }
    if role == "" {
        role = "user"
    }
    return Principal{Subject: sub, Role: strings.ToLower(role)}, nil
}

func b64urlDecode(s string) ([]byte, error) { return base64.RawURLEncoding.DecodeString(s) }
