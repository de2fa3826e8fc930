package service

import (
	"errors"
	"fmt"
)

// Reason is the opaque outcome code surfaced to calling code. The UI layer
// owns translating these into user-facing copy.
type Reason string

const (
	ReasonInvalidFormat     Reason = "INVALID_FORMAT"
	ReasonPhoneLimit        Reason = "PHONE_LIMIT_EXCEEDED"
	ReasonIPLimit           Reason = "IP_LIMIT_EXCEEDED"
	ReasonGlobalLimit       Reason = "GLOBAL_LIMIT_EXCEEDED"
	ReasonFanout            Reason = "SUSPICIOUS_FANOUT"
	ReasonUnconfigured      Reason = "UNCONFIGURED"
	ReasonDelivery          Reason = "DELIVERY_FAILED"
	ReasonNoPending         Reason = "NO_PENDING_CODE"
	ReasonExpired           Reason = "CODE_EXPIRED"
	ReasonOriginMismatch    Reason = "ORIGIN_MISMATCH"
	ReasonAttemptsExhausted Reason = "ATTEMPTS_EXHAUSTED"
	ReasonCodeMismatch      Reason = "CODE_MISMATCH"
	ReasonStoreUnavailable  Reason = "STORE_UNAVAILABLE"
)

// Failure is an expected, user-facing outcome. Rate-limit and validation
// failures are returned as Failures, never panics; infrastructure causes
// are wrapped so server-side logs keep the detail while callers see only
// the Reason.
type Failure struct {
	Reason Reason
	cause  error
}

func (f *Failure) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("%s: %v", f.Reason, f.cause)
	}
	return string(f.Reason)
}

func (f *Failure) Unwrap() error { return f.cause }

func fail(reason Reason, cause error) error {
	return &Failure{Reason: reason, cause: cause}
}

// FailureReason extracts the Reason from an error returned by the service.
func FailureReason(err error) (Reason, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason, true
	}
	return "", false
}
