package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader is the request header carrying the webhook signature.
const SignatureHeader = "X-Hub-Signature-256"

// VerifySignature checks the X-Hub-Signature-256 value against an
// HMAC-SHA256 of the raw request body. The body must be the exact bytes as
// received; re-serialized JSON digests differently.
func VerifySignature(body []byte, header, secret string) bool {
	if secret == "" || header == "" {
		return false
	}
	received, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	receivedMAC, err := hex.DecodeString(received)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(receivedMAC, mac.Sum(nil))
}
