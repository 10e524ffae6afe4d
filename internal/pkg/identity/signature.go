package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"time"
)

// DefaultSignatureTolerance bounds timestamp skew on identity webhooks.
const DefaultSignatureTolerance = 5 * time.Minute

// VerifySignature checks an identity webhook signature. The provider signs
// "<eventID>.<timestamp>.<payload>" with HMAC-SHA256 and sends
// "v1,<base64>" (possibly several space-separated candidates) in the
// signature header.
func VerifySignature(payload []byte, eventID, timestamp, signatureHeader, webhookSecret string) bool {
	return verifySignatureAt(payload, eventID, timestamp, signatureHeader, webhookSecret, time.Now(), DefaultSignatureTolerance)
}

func verifySignatureAt(payload []byte, eventID, timestamp, signatureHeader, webhookSecret string, now time.Time, tolerance time.Duration) bool {
	secret := strings.TrimSpace(webhookSecret)
	header := strings.TrimSpace(signatureHeader)
	id := strings.TrimSpace(eventID)
	ts := strings.TrimSpace(timestamp)
	if secret == "" || header == "" || id == "" || ts == "" {
		return false
	}

	tsUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	age := now.Sub(time.Unix(tsUnix, 0))
	if age > tolerance || age < -tolerance {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(id))
	mac.Write([]byte("."))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, candidate := range strings.Fields(header) {
		version, value, found := strings.Cut(candidate, ",")
		if !found || version != "v1" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			continue
		}
		if hmac.Equal(expected, decoded) {
			return true
		}
	}
	return false
}
