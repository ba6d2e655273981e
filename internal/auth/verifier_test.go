package auth

import (
    "crypto/hmac"
    "crypto/sha256"
    "encoding/base64"
    "testing"
)

func signHS256(t *testing.T, secret, payload string) string {
    t.Helper()
    enc := base64.RawURLEncoding
    header := enc.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
    body := enc.EncodeToString([]byte(payload))
    mac := hmac.New(sha256.New, []byte(secret))
    mac.Write([]byte(header + "." + body))
    return header + "." + body + "." + enc.EncodeToString(mac.Sum(nil))
}

func TestVerifyDevToken(t *testing.T) {
    v := &Verifier{Mode: "dev"}
    p, err := v.Verify("ops:Admin")
    if err != nil { t.Fatalf("Verify: %v", err) }
    if p.Subject != "ops" || p.Role != "admin" { t.Fatalf("principal: %+v", p) }
    if _, err := v.Verify("no-role"); err == nil { t.Fatal("expected error") }
}

func TestVerifyHMACToken(t *testing.T) {
    v := &Verifier{Mode: "hmac", HMACSecret: []byte("topsecret")}
    tok := signHS256(t, "topsecret", `{"sub":"dispatcher-1","role":"Admin"}`)
    p, err := v.Verify(tok)
    if err != nil { t.Fatalf("Verify: %v", err) }
    if p.Subject != "dispatcher-1" || p.Role != "admin" { t.Fatalf("principal: %+v", p) }

    if _, err := v.Verify(signHS256(t, "wrong", `{"sub":"x"}`)); err == nil {
        t.Fatal("wrong secret accepted")
    }
    if _, err := v.Verify("a.b"); err == nil { t.Fatal("malformed token accepted") }
    if _, err := v.Verify(signHS256(t, "topsecret", `{"role":"admin"}`)); err == nil {
        t.Fatal("missing sub accepted")
    }
}

func TestVerifyDefaultsRole(t *testing.T) {
    v := &Verifier{Mode: "hmac", HMACSecret: []byte("topsecret")}
    p, err := v.Verify(signHS256(t, "topsecret", `{"sub":"x"}`))
    if err != nil { t.Fatalf("Verify: %v", err) }
    if p.Role != "user" { t.Fatalf("role: %s", p.Role) }
}
