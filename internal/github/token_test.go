package github

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testKeyPEM(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
}

func newManagerAgainst(t *testing.T, srv *httptest.Server) *TokenManager {
	t.Helper()
	tm, err := NewTokenManager("app-1", 99, testKeyPEM(t))
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	tm.exchangeURL = srv.URL
	tm.httpClient = srv.Client()
	return tm
}

func TestNewTokenManager_ValidatesInputs(t *testing.T) {
	pemData := testKeyPEM(t)

	if _, err := NewTokenManager("", 1, pemData); err == nil {
		t.Error("expected error for empty app id")
	}
	if _, err := NewTokenManager("app-1", 0, pemData); err == nil {
		t.Error("expected error for non-positive installation id")
	}
	if _, err := NewTokenManager("app-1", 1, []byte("not pem")); err == nil {
		t.Error("expected error for invalid private key")
	}
	if _, err := NewTokenManager("app-1", 1, pemData); err != nil {
		t.Errorf("unexpected error for valid inputs: %v", err)
	}
}

func TestTokenManager_TokenCachesUntilNearExpiry(t *testing.T) {
	var exchanges int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		exchanges++
		if auth := r.Header.Get("Authorization"); auth == "" {
			t.Error("expected Authorization header carrying the app JWT")
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"token":"installation-token-%d","expires_at":%q}`, exchanges, time.Now().Add(time.Hour).Format(time.RFC3339))
	}))
	defer srv.Close()

	tm := newManagerAgainst(t, srv)

	first, err := tm.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	second, err := tm.Token()
	if err != nil {
		t.Fatalf("Token (cached): %v", err)
	}
	if first != second {
		t.Errorf("expected cached token on second call, got %q then %q", first, second)
	}
	if exchanges != 1 {
		t.Errorf("expected exactly one exchange call, got %d", exchanges)
	}
}

func TestTokenManager_RefreshesWithinBuffer(t *testing.T) {
	var exchanges int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		exchanges++
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"token":"installation-token-%d","expires_at":%q}`, exchanges, time.Now().Add(time.Hour).Format(time.RFC3339))
	}))
	defer srv.Close()

	tm := newManagerAgainst(t, srv)
	tm.token = "stale-token"
	tm.expiresAt = time.Now().Add(refreshBuffer - time.Minute)

	token, err := tm.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if token == "stale-token" {
		t.Error("expected a refreshed token when cached one is within the refresh buffer")
	}
	if exchanges != 1 {
		t.Errorf("expected one exchange call, got %d", exchanges)
	}
}

func TestTokenManager_ExchangeFailureSurfacesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"Bad credentials"}`)
	}))
	defer srv.Close()

	tm := newManagerAgainst(t, srv)
	if _, err := tm.Token(); err == nil {
		t.Fatal("expected error from failed exchange")
	}
}
