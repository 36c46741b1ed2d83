package wire

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// IdempotencyKeyHeader names the inbound header that, when present, supplies
// the event's idempotency key verbatim.
const IdempotencyKeyHeader = "X-Idempotency-Key"

// DeriveIdempotencyKey computes the fallback idempotency key for a request
// that carries none: sha256 over source name, event type, and the raw body,
// NUL-separated so field boundaries cannot collide.
func DeriveIdempotencyKey(sourceName, eventType string, rawBody []byte) string {
	h := sha256.New()
	h.Write([]byte(sourceName))
	h.Write([]byte{0})
	h.Write([]byte(eventType))
	h.Write([]byte{0})
	h.Write(rawBody)
	return hex.EncodeToString(h.Sum(nil))
}

// NewCorrelationID mints the opaque correlation id stamped on ingest log
// context and event rows.
func NewCorrelationID() string {
	return uuid.NewString()
}
