// Package service orchestrates OTP issuance and verification. It is the
// single implementation both deployment topologies share; behavior never
// depends on which RecordStore or Transport backing is wired in.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/phonegate/phonegate/internal/config"
	"github.com/phonegate/phonegate/internal/otp"
	"github.com/phonegate/phonegate/internal/phone"
	"github.com/phonegate/phonegate/internal/ratelimit"
	"github.com/phonegate/phonegate/internal/sms"
	"github.com/phonegate/phonegate/internal/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// Admitter is the admission gate consulted before every issuance.
type Admitter interface {
	Admit(ctx context.Context, phoneNumber, ip string) error
}

type Service struct {
	store     store.RecordStore
	limiter   Admitter
	transport sms.Transport
	cfg       *config.OTPConfig
	product   string
	logger    *logrus.Logger

	now func() time.Time
}

func New(rs store.RecordStore, limiter Admitter, transport sms.Transport, cfg *config.OTPConfig, product string, logger *logrus.Logger) *Service {
	return &Service{
		store:     rs,
		limiter:   limiter,
		transport: transport,
		cfg:       cfg,
		product:   product,
		logger:    logger,
		now:       time.Now,
	}
}

// RequestCode issues a new code for the phone number and dispatches it by
// SMS. A prior pending code for the same number is overwritten: only the
// newest code is ever valid. A delivery failure leaves the stored record in
// place — the SMS may still arrive late, and verification against it stays
// meaningful.
func (s *Service) RequestCode(ctx context.Context, rawPhone, ip string) error {
	phoneNumber, err := phone.Normalize(rawPhone)
	if err != nil {
		return fail(ReasonInvalidFormat, err)
	}

	if err := s.limiter.Admit(ctx, phoneNumber, ip); err != nil {
		return fail(admitReason(err), err)
	}

	code, err := otp.Generate(s.cfg.CodeLength)
	if err != nil {
		s.logger.WithError(err).Error("Failed to generate code")
		return fail(ReasonDelivery, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		s.logger.WithError(err).Error("Failed to hash code")
		return fail(ReasonDelivery, err)
	}

	now := s.now()
	rec := store.Record{
		PhoneNumber: phoneNumber,
		CodeHash:    string(hash),
		IssuingIP:   ip,
		Attempts:    0,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.Expiry),
	}

	if err := s.store.Put(ctx, rec); err != nil {
		s.logger.WithError(err).WithField("phone", phoneNumber).Error("Failed to store verification record")
		return fail(ReasonStoreUnavailable, err)
	}

	body := sms.VerificationMessage(s.product, code, s.cfg.Expiry)
	if err := s.transport.Send(ctx, phoneNumber, body); err != nil {
		s.logger.WithError(err).WithField("phone", phoneNumber).Error("Failed to dispatch SMS")
		if errors.Is(err, sms.ErrUnconfigured) {
			return fail(ReasonUnconfigured, err)
		}
		return fail(ReasonDelivery, err)
	}

	s.logger.WithFields(logrus.Fields{
		"phone":      phoneNumber,
		"expires_at": rec.ExpiresAt,
	}).Info("Verification code issued")

	return nil
}

// VerifyCode checks the submitted code against the pending record. On
// success the record is consumed and the normalized phone number is
// returned as the verified identity; a code is accepted exactly once.
func (s *Service) VerifyCode(ctx context.Context, rawPhone, code, ip string) (string, error) {
	phoneNumber, err := phone.Normalize(rawPhone)
	if err != nil {
		return "", fail(ReasonInvalidFormat, err)
	}

	rec, ok, err := s.store.Get(ctx, phoneNumber)
	if err != nil {
		s.logger.WithError(err).WithField("phone", phoneNumber).Error("Failed to read verification record")
		return "", fail(ReasonStoreUnavailable, err)
	}
	if !ok {
		return "", fail(ReasonNoPending, nil)
	}

	if rec.Expired(s.now()) {
		s.discard(ctx, phoneNumber)
		return "", fail(ReasonExpired, nil)
	}

	// Strict origin binding: the code must be verified from the network
	// origin that requested it.
	if rec.IssuingIP != ip {
		s.logger.WithFields(logrus.Fields{
			"phone":      phoneNumber,
			"issuing_ip": rec.IssuingIP,
			"ip":         ip,
		}).Warn("Verification origin mismatch")
		return "", fail(ReasonOriginMismatch, nil)
	}

	attempts, err := s.store.IncrementAttempts(ctx, phoneNumber)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// record consumed or swept between Get and the increment
			return "", fail(ReasonNoPending, err)
		}
		s.logger.WithError(err).WithField("phone", phoneNumber).Error("Failed to count verification attempt")
		return "", fail(ReasonStoreUnavailable, err)
	}
	if attempts > s.cfg.MaxAttempts {
		s.discard(ctx, phoneNumber)
		return "", fail(ReasonAttemptsExhausted, nil)
	}

	if bcrypt.CompareHashAndPassword([]byte(rec.CodeHash), []byte(code)) != nil {
		return "", fail(ReasonCodeMismatch, nil)
	}

	// The record must be gone before success is reported, otherwise the
	// code would be accepted twice.
	if err := s.store.Delete(ctx, phoneNumber); err != nil {
		s.logger.WithError(err).WithField("phone", phoneNumber).Error("Failed to consume verification record")
		return "", fail(ReasonStoreUnavailable, err)
	}

	s.logger.WithField("phone", phoneNumber).Info("Phone number verified")
	return phoneNumber, nil
}

func (s *Service) discard(ctx context.Context, phoneNumber string) {
	if err := s.store.Delete(ctx, phoneNumber); err != nil {
		s.logger.WithError(err).WithField("phone", phoneNumber).Error("Failed to discard verification record")
	}
}

func admitReason(err error) Reason {
	switch {
	case errors.Is(err, ratelimit.ErrPhoneLimit):
		return ReasonPhoneLimit
	case errors.Is(err, ratelimit.ErrIPLimit):
		return ReasonIPLimit
	case errors.Is(err, ratelimit.ErrGlobalLimit):
		return ReasonGlobalLimit
	case errors.Is(err, ratelimit.ErrFanout):
		return ReasonFanout
	default:
		// admission errors fail closed
		return ReasonStoreUnavailable
	}
}
