// Package middleware provides authentication and HTTP middleware for the web
// API.
package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const tokenDuration = 24 * time.Hour

// TokenManager issues and verifies stateless HMAC-signed API tokens. A token
// carries the identity ID and an expiry; there is no server-side session
// state, so a restart does not invalidate issued tokens.
type TokenManager struct {
	secret []byte
}

// NewTokenManager creates a token manager.
func NewTokenManager(secret string) *TokenManager {
	// Use a default secret if none provided (for development)
	if secret == "" {
		secret = "faceguard-dev-secret-change-in-production"
	}
	return &TokenManager{secret: []byte(secret)}
}

// Issue creates a signed token for the given identity.
func (tm *TokenManager) Issue(identityID string) string {
	return tm.issueWithExpiry(identityID, time.Now().Add(tokenDuration))
}

func (tm *TokenManager) issueWithExpiry(identityID string, expiresAt time.Time) string {
	payload := base64.RawURLEncoding.EncodeToString([]byte(identityID)) +
		"." + strconv.FormatInt(expiresAt.Unix(), 10)
	return payload + "." + tm.sign(payload)
}

// Verify checks a token's signature and expiry and returns the identity ID.
func (tm *TokenManager) Verify(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("malformed token")
	}

	payload := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(parts[2]), []byte(tm.sign(payload))) {
		return "", fmt.Errorf("invalid token signature")
	}

	expiry, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", fmt.Errorf("malformed token expiry")
	}
	if time.Now().Unix() > expiry {
		return "", fmt.Errorf("token expired")
	}

	identityID, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("malformed token subject")
	}
	return string(identityID), nil
}

func (tm *TokenManager) sign(data string) string {
	h := hmac.New(sha256.New, tm.secret)
	h.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
