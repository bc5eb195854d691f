package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

type IdempotencyStatus string

const (
	IdempotencyPending   IdempotencyStatus = "PENDING"
	IdempotencyCompleted IdempotencyStatus = "COMPLETED"
	IdempotencyFailed    IdempotencyStatus = "FAILED"
)

const IdempotencyTTL = 24 * time.Hour

type IdempotencyRecord struct {
	Key           string            `json:"key"`
	RequestHash   string            `json:"request_hash"`
	Status        IdempotencyStatus `json:"status"`
	TransactionID string            `json:"transaction_id,omitempty"`
	ExpiresAt     time.Time         `json:"expires_at"`
	CreatedAt     time.Time         `json:"created_at"`
}

func NewIdempotencyRecord(key, requestHash string, ttl time.Duration) *IdempotencyRecord {
	now := time.Now().UTC()
	return &IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      IdempotencyPending,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}
}

func (r *IdempotencyRecord) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// HashRequest produces the content hash used to detect idempotency-key reuse
// with a different payload.
func HashRequest(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
