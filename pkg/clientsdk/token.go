package clientsdk

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrOpaqueToken is returned by InspectToken for tokens that are not JWTs.
// Such tokens are still valid bearer credentials; they just cannot be
// inspected locally.
var ErrOpaqueToken = errors.New("clientsdk: token is not a JWT")

// TokenInfo is what can be read from a bearer token without verifying it.
type TokenInfo struct {
	Subject   string
	Issuer    string
	ExpiresAt time.Time // zero when the token has no exp claim
}

// Expired reports whether the token carries an expiry that is before now.
func (i TokenInfo) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// InspectToken decodes the registered claims of a JWT without checking its
// signature. Verification is the backend's job; this is only used to warn
// about stale credentials early.
func InspectToken(raw string) (TokenInfo, error) {
	var claims jwt.RegisteredClaims

	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return TokenInfo{}, ErrOpaqueToken
		}
		return TokenInfo{}, fmt.Errorf("inspect token: %w", err)
	}

	info := TokenInfo{
		Subject: claims.Subject,
		Issuer:  claims.Issuer,
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.UTC()
	}

	return info, nil
}
