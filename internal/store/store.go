// Package store defines the verification-record storage contract shared by
// the in-memory and DynamoDB backings.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for the phone number.
	ErrNotFound = errors.New("verification record not found")
	// ErrUnavailable wraps backend failures. Callers treat it as fatal for
	// the request (fail closed), never as an empty result.
	ErrUnavailable = errors.New("record store unavailable")
)

// Record is the single outstanding verification per phone number. The code
// itself is stored as a bcrypt hash, never in the clear.
type Record struct {
	PhoneNumber string    `json:"phone_number" dynamodbav:"PhoneNumber"`
	CodeHash    string    `json:"code_hash" dynamodbav:"CodeHash"`
	IssuingIP   string    `json:"issuing_ip" dynamodbav:"IssuingIP"`
	Attempts    int       `json:"attempts" dynamodbav:"Attempts"`
	CreatedAt   time.Time `json:"created_at" dynamodbav:"CreatedAt"`
	ExpiresAt   time.Time `json:"expires_at" dynamodbav:"ExpiresAt"`
}

// Expired reports whether the record is past its validity window.
func (r *Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// RecordStore is the durable, keyed storage of verification records. All
// operations are atomic per phone number; implementations must serialize
// mutations for the same key.
type RecordStore interface {
	// Put upserts the record, replacing any existing live record for the
	// same phone number. Only the newest code is ever valid.
	Put(ctx context.Context, rec Record) error

	// Get returns the record for the phone number. The boolean is false
	// when no record exists; expiry is the caller's concern (records may
	// be returned past ExpiresAt until swept).
	Get(ctx context.Context, phoneNumber string) (Record, bool, error)

	// IncrementAttempts atomically adds one to the attempt counter and
	// returns the new value. ErrNotFound if no record exists.
	IncrementAttempts(ctx context.Context, phoneNumber string) (int, error)

	// Delete removes the record. Deleting an absent record is not an error.
	Delete(ctx context.Context, phoneNumber string) error
}
