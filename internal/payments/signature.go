package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign returns the lowercase hex HMAC-SHA256 of payload under secret, the
// format the gateway uses for both webhook and checkout signatures.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidSignature reports whether signature is the HMAC of payload under secret.
// The comparison is constant-time. An empty secret never validates.
func ValidSignature(payload []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

// orderSignaturePayload is what Checkout signs for an order-based payment.
func orderSignaturePayload(orderID, paymentID string) []byte {
	return []byte(orderID + "|" + paymentID)
}

// paymentLinkSignaturePayload is what the payment-link callback signs.
func paymentLinkSignaturePayload(linkID, referenceID, linkStatus, paymentID string) []byte {
	return []byte(linkID + "|" + referenceID + "|" + linkStatus + "|" + paymentID)
}
