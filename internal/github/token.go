// Package github mints the short-lived GitHub App installation token the
// supervisor passes to executors as GITHUB_TOKEN. The supervisor's domain
// logic only ever consumes the result through Token(), so this package is
// narrowed to exactly that surface rather than a general-purpose GitHub
// App client.
package github

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// refreshBuffer is how long before expiry a cached token is treated as
// stale, so an executor never starts a run holding a token about to
// lapse mid-session.
const refreshBuffer = 5 * time.Minute

// appJWTLifetime is GitHub's maximum allowed lifetime for the App JWT
// used to authenticate the installation-token exchange itself.
const appJWTLifetime = 10 * time.Minute

// TokenManager mints and caches a GitHub App installation access token
// for one (appID, installationID) pair, satisfying
// supervisor.GitHubTokenSource. Safe for concurrent use.
type TokenManager struct {
	appID          string
	installationID int64
	privateKey     *rsa.PrivateKey
	exchangeURL    string
	httpClient     *http.Client
	nowFunc        func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewTokenManager parses privateKeyPEM (PKCS#1 or PKCS#8) and returns a
// TokenManager ready to mint tokens for the given GitHub App installation.
func NewTokenManager(appID string, installationID int64, privateKeyPEM []byte) (*TokenManager, error) {
	if appID == "" {
		return nil, fmt.Errorf("github: app id is required")
	}
	if installationID <= 0 {
		return nil, fmt.Errorf("github: installation id must be positive")
	}
	key, err := parsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("github: parse private key: %w", err)
	}
	return &TokenManager{
		appID:          appID,
		installationID: installationID,
		privateKey:     key,
		exchangeURL:    "https://api.github.com",
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		nowFunc:        time.Now,
	}, nil
}

// Token returns a valid installation token, minting a fresh one when the
// cached token is missing or within refreshBuffer of expiring.
func (tm *TokenManager) Token() (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.token != "" && tm.expiresAt.After(tm.nowFunc().Add(refreshBuffer)) {
		return tm.token, nil
	}

	appJWT, err := tm.signAppJWT()
	if err != nil {
		return "", fmt.Errorf("github: sign app jwt: %w", err)
	}
	token, expiresAt, err := tm.exchangeForInstallationToken(appJWT)
	if err != nil {
		return "", fmt.Errorf("github: exchange installation token: %w", err)
	}
	tm.token, tm.expiresAt = token, expiresAt
	return tm.token, nil
}

// signAppJWT builds the App JWT used to authenticate the
// installation-token exchange request.
func (tm *TokenManager) signAppJWT() (string, error) {
	now := tm.nowFunc()
	claims := jwt.RegisteredClaims{
		Issuer:    tm.appID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(appJWTLifetime)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(tm.privateKey)
}

// exchangeForInstallationToken calls the GitHub App installation access
// token endpoint and returns the minted token and its expiry.
func (tm *TokenManager) exchangeForInstallationToken(appJWT string) (string, time.Time, error) {
	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", tm.exchangeURL, tm.installationID)
	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+appJWT)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := tm.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", time.Time{}, err
	}
	if resp.StatusCode != http.StatusCreated {
		return "", time.Time{}, fmt.Errorf("installation token request failed (%d): %s", resp.StatusCode, string(body))
	}

	var out struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", time.Time{}, fmt.Errorf("parse installation token response: %w", err)
	}
	return out.Token, out.ExpiresAt, nil
}

// parsePrivateKey parses a PEM-encoded RSA private key in either PKCS#1
// or PKCS#8 form, the two forms GitHub App private key downloads use.
func parsePrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if block.Type == "RSA PRIVATE KEY" {
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return rsaKey, nil
}
