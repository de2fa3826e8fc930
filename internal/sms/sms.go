// Package sms abstracts SMS delivery behind Transport.
package sms

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnconfigured means no provider credentials are present on either
	// delivery path.
	ErrUnconfigured = errors.New("sms transport not configured")
	// ErrDelivery matches any *DeliveryError via errors.Is.
	ErrDelivery = errors.New("sms delivery failed")
)

// DeliveryError carries the provider's HTTP status and response body for
// server-side logging. Callers surface only a generic delivery failure.
type DeliveryError struct {
	StatusCode int
	Body       string
	cause      error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("sms delivery failed: provider status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("sms delivery failed: %v", e.cause)
}

func (e *DeliveryError) Is(target error) bool { return target == ErrDelivery }

func (e *DeliveryError) Unwrap() error { return e.cause }

// Transport sends a message and returns nil only after the provider has
// acknowledged queueing it. No automatic retries: a duplicate SMS is a
// worse outcome than a single failed send.
type Transport interface {
	Send(ctx context.Context, to, body string) error
}

// VerificationMessage renders the fixed-format OTP body: product name, the
// code, the validity window, and the do-not-share warning.
func VerificationMessage(product, code string, validity time.Duration) string {
	minutes := int(validity.Minutes())
	return fmt.Sprintf(
		"【%s】認証コード: %s（有効期限: %d分）\nこのコードは誰にも教えないでください。%sがコードを尋ねることはありません。",
		product, code, minutes, product,
	)
}
