package auth

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// TokenFingerprint returns a short, stable digest of a bearer token so log
// lines about the same caller can be correlated without recording the token.
func TokenFingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}
