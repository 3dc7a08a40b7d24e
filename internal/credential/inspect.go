package credential

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo describes a stored token without revealing it.
type TokenInfo struct {
	ExpiresAt time.Time
	Present   bool
	HasExpiry bool
}

// Inspect reads the exp claim of a JWT without verifying its signature.
// Tokens are opaque to the client, so the result is informational only;
// non-JWT tokens report no expiry.
func Inspect(token string) TokenInfo {
	if token == "" {
		return TokenInfo{}
	}

	info := TokenInfo{Present: true}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return info
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return info
	}

	info.ExpiresAt = exp.Time
	info.HasExpiry = true
	return info
}

// Expired reports whether the token carried an expiry that is before now.
func (i TokenInfo) Expired(now time.Time) bool {
	return i.HasExpiry && !i.ExpiresAt.After(now)
}

// Describe renders the token state for status output.
func (i TokenInfo) Describe(now time.Time) string {
	switch {
	case !i.Present:
		return "absent"
	case !i.HasExpiry:
		return "present (expiry unknown)"
	case i.Expired(now):
		return "expired at " + i.ExpiresAt.Format(time.RFC3339)
	default:
		return "valid until " + i.ExpiresAt.Format(time.RFC3339)
	}
}
