// Package idempotency stores the responses of completed create requests so a
// client retrying with the same Idempotency-Key gets the original response
// instead of a second record.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrKeyNotFound is returned when no response is stored for a key.
	ErrKeyNotFound = errors.New("idempotency key not found")

	// ErrKeyExists is returned when storing a key that is already present.
	ErrKeyExists = errors.New("idempotency key already exists")

	// ErrInvalidKey is returned for an empty key.
	ErrInvalidKey = errors.New("invalid idempotency key")

	// ErrKeyTooLong is returned when the key exceeds MaxKeyLength.
	ErrKeyTooLong = errors.New("idempotency key exceeds maximum length of 64 characters")
)

// MaxKeyLength is the maximum allowed length for a client-supplied key.
const MaxKeyLength = 64

// DefaultExpiry is how long a stored response is replayed.
const DefaultExpiry = 24 * time.Hour

// Record is a stored response for one key.
type Record struct {
	Key          string    `json:"key"`
	Method       string    `json:"method"`
	Route        string    `json:"route"`
	StatusCode   int       `json:"statusCode"`
	Body         string    `json:"body"`
	ResponseHash string    `json:"responseHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ValidateKey checks a client-supplied key.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	return nil
}

// ScopedKey namespaces key by owner so two users cannot collide.
func ScopedKey(owner, key string) string {
	return owner + ":" + key
}

// ComputeResponseHash returns the hex SHA-256 of body.
func ComputeResponseHash(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

// Repository persists completed responses.
type Repository interface {
	// Get returns the record for key or ErrKeyNotFound.
	Get(ctx context.Context, key string) (*Record, error)

	// Store saves record. Returns ErrKeyExists if the key is already stored.
	Store(ctx context.Context, record *Record) error
}
