package session

import (
	"crypto/sha256"
	"encoding/base64"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// The gateway does not hold the backend's signing key; the bearer token is
// opaque to it. Claims are read unverified for bookkeeping only (session
// keying, expiry short-circuit); authorization stays with the backend.

// CredentialKey derives a stable per-user session key from a bearer credential:
// the JWT `sub` claim when the token parses, otherwise a digest of the raw token.
func CredentialKey(token string) string {
	claims := new(jwt.StandardClaims)
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err == nil && claims.Subject != "" {
		return claims.Subject
	}
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:12])
}

// CredentialExpired reports whether the credential carries an `exp` claim in
// the past. An expired credential is treated as absent so the UI lands on
// sign-in instead of bouncing between loading and auth failures.
// Tokens without a readable exp claim are never reported expired here; the
// backend remains the authority.
func CredentialExpired(token string, now time.Time) bool {
	claims := new(jwt.StandardClaims)
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return false
	}
	if claims.ExpiresAt == 0 {
		return false
	}
	return now.After(time.Unix(claims.ExpiresAt, 0))
}
