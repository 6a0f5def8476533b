package cryptox

import (
	"crypto/sha256"
	"encoding/base64"
)

// fingerprintPrefixLen is how much of a fingerprint is kept when it is only
// used to correlate log lines.
const fingerprintPrefixLen = 12

// FingerprintToken returns a deterministic SHA-256 fingerprint of a token,
// base64url encoded without padding (43 chars). The original token cannot be
// recovered from it, so it is safe to log or persist.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ShortFingerprint is a truncated FingerprintToken for log attributes. Empty
// tokens fingerprint to the empty string so "no credential" stays visible.
func ShortFingerprint(token string) string {
	if token == "" {
		return ""
	}
	return FingerprintToken(token)[:fingerprintPrefixLen]
}

// Mask hides a secret for display. It never returns any character of the
// input, only whether one was set.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "[REDACTED]"
}
