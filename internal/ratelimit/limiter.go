// Package ratelimit gates OTP issuance across four axes: per-phone, per-IP,
// global, and fan-out (one IP spraying many phone numbers). Counter state
// lives behind CounterStore so single-instance deployments can run in
// process while multi-instance deployments share a Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrPhoneLimit  = errors.New("phone number rate limit exceeded")
	ErrIPLimit     = errors.New("ip rate limit exceeded")
	ErrGlobalLimit = errors.New("global rate limit exceeded")
	ErrFanout      = errors.New("suspicious fan-out from ip")
	// ErrUnavailable wraps counter-store failures. Admission fails closed:
	// the caller must reject the request, never fall through to issuance.
	ErrUnavailable = errors.New("rate limit store unavailable")
)

// CounterStore holds fixed-window counters (windowStart + count), created
// lazily per key and aging out with the window. All operations are atomic
// per key.
type CounterStore interface {
	// IncrWindow adds one event to the key's current window and returns
	// the post-increment count. The first event of a window arms the
	// window; later events inside it share its expiry.
	IncrWindow(ctx context.Context, key string, window time.Duration) (int, error)

	// AddDistinct adds member to the key's distinct set for the current
	// window and returns the set's cardinality.
	AddDistinct(ctx context.Context, key, member string, window time.Duration) (int, error)

	// Block rejects the key outright for the given duration.
	Block(ctx context.Context, key string, d time.Duration) error

	// Blocked reports whether the key is under an active block.
	Blocked(ctx context.Context, key string) (bool, error)

	// WindowRemaining returns how long the key's current window has left,
	// or zero if no window is armed.
	WindowRemaining(ctx context.Context, key string) (time.Duration, error)
}

type Config struct {
	PhoneMax     int
	IPMax        int
	GlobalMax    int
	Window       time.Duration
	FanoutMax    int
	FanoutWindow time.Duration
}

type Limiter struct {
	counters CounterStore
	cfg      Config
	logger   *logrus.Logger
}

func New(counters CounterStore, cfg Config, logger *logrus.Logger) *Limiter {
	return &Limiter{
		counters: counters,
		cfg:      cfg,
		logger:   logger,
	}
}

// Admit decides whether a new OTP may be issued for the phone number from
// the given IP. Returns nil on admission; otherwise one of the sentinel
// errors above. Any counter-store failure is logged and returned as
// ErrUnavailable — the request is rejected.
func (l *Limiter) Admit(ctx context.Context, phoneNumber, ip string) error {
	blocked, err := l.counters.Blocked(ctx, blockKey(ip))
	if err != nil {
		return l.unavailable("check ip block", err)
	}
	if blocked {
		return ErrIPLimit
	}

	count, err := l.counters.IncrWindow(ctx, phoneKey(phoneNumber), l.cfg.Window)
	if err != nil {
		return l.unavailable("count phone issuances", err)
	}
	if count > l.cfg.PhoneMax {
		return ErrPhoneLimit
	}

	count, err = l.counters.IncrWindow(ctx, ipKey(ip), l.cfg.Window)
	if err != nil {
		return l.unavailable("count ip issuances", err)
	}
	if count > l.cfg.IPMax {
		l.block(ctx, ip)
		return ErrIPLimit
	}

	count, err = l.counters.IncrWindow(ctx, globalKey, l.cfg.Window)
	if err != nil {
		return l.unavailable("count global issuances", err)
	}
	if count > l.cfg.GlobalMax {
		return ErrGlobalLimit
	}

	distinct, err := l.counters.AddDistinct(ctx, fanoutKey(ip), phoneNumber, l.cfg.FanoutWindow)
	if err != nil {
		return l.unavailable("count distinct destinations", err)
	}
	if distinct > l.cfg.FanoutMax {
		l.logger.WithFields(logrus.Fields{
			"ip":       ip,
			"distinct": distinct,
		}).Warn("Fan-out anomaly detected")
		return ErrFanout
	}

	return nil
}

// block arms an explicit block for the remainder of the IP's window, so the
// IP is rejected cheaply until the window rolls over.
func (l *Limiter) block(ctx context.Context, ip string) {
	remaining, err := l.counters.WindowRemaining(ctx, ipKey(ip))
	if err != nil || remaining <= 0 {
		remaining = l.cfg.Window
	}
	if err := l.counters.Block(ctx, blockKey(ip), remaining); err != nil {
		l.logger.WithError(err).WithField("ip", ip).Error("Failed to arm ip block")
	}
}

func (l *Limiter) unavailable(op string, err error) error {
	l.logger.WithError(err).WithField("op", op).Error("Rate limit evaluation failed, rejecting")
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

const globalKey = "rl:global"

func phoneKey(phoneNumber string) string {
	return "rl:phone:" + phoneNumber
}

func ipKey(ip string) string {
	return "rl:ip:" + ip
}

func blockKey(ip string) string {
	return "rl:block:" + ip
}

func fanoutKey(ip string) string {
	return "rl:fan:" + ip
}
