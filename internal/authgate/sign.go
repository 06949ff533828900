// Package authgate verifies every inbound request: CIDR
// filter, header presence, client match, timestamp skew, nonce freshness,
// signature, then rate limit, in that fail-fast order.
package authgate

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Canonical builds the exact byte sequence the HMAC is computed over.
// Literal "\n" separators, PATH_WITH_QUERY exactly as received (caller must
// not re-encode it), SHA256_HEX of the body (of "" for an empty body).
func Canonical(method, pathWithQuery, timestamp, nonce string, body []byte) string {
	bodyHash := sha256.Sum256(body)
	return fmt.Sprintf("%s\n%s\n%s\n%s\n%s",
		method, pathWithQuery, timestamp, nonce, hex.EncodeToString(bodyHash[:]))
}

// Sign returns the lowercase hex HMAC-SHA256 of canonical under secret. Used
// both to verify inbound requests and to sign the push delivery path's
// outbound webhook calls.
func Sign(canonical string, secret []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(canonical))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature recomputes the expected signature and compares it to the
// presented one in constant time, using the same hmac.New/hmac.Equal shape
// as the rest of the bridge's signing helpers.
func VerifySignature(method, pathWithQuery, timestamp, nonce string, body []byte, secret []byte, presented string) bool {
	expected := Sign(Canonical(method, pathWithQuery, timestamp, nonce, body), secret)
	return hmac.Equal([]byte(expected), []byte(presented))
}
