package handlers

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/phonegate/phonegate/internal/middleware"
	"github.com/phonegate/phonegate/internal/service"
	"github.com/phonegate/phonegate/internal/token"
	"github.com/sirupsen/logrus"
)

type AuthHandlers struct {
	otpService *service.Service
	issuer     *token.Issuer
	logger     *logrus.Logger
}

func NewAuthHandlers(otpService *service.Service, issuer *token.Issuer, logger *logrus.Logger) *AuthHandlers {
	return &AuthHandlers{
		otpService: otpService,
		issuer:     issuer,
		logger:     logger,
	}
}

type RequestCodeRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type RequestCodeResponse struct {
	OK bool `json:"ok"`
}

type VerifyCodeRequest struct {
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"code"`
}

type VerifyCodeResponse struct {
	OK               bool   `json:"ok"`
	VerifiedIdentity string `json:"verified_identity"`
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
}

type FailureResponse struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason"`
}

func (h *AuthHandlers) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req RequestCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondFailure(w, http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	ip := clientIP(r)
	if err := h.otpService.RequestCode(r.Context(), req.PhoneNumber, ip); err != nil {
		h.respondServiceFailure(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, RequestCodeResponse{OK: true})
}

func (h *AuthHandlers) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondFailure(w, http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	ip := clientIP(r)
	identity, err := h.otpService.VerifyCode(r.Context(), req.PhoneNumber, strings.TrimSpace(req.Code), ip)
	if err != nil {
		h.respondServiceFailure(w, err)
		return
	}

	accessToken, expiresIn, err := h.issuer.Issue(identity)
	if err != nil {
		h.logger.WithError(err).Error("Failed to issue verification token")
		h.respondFailure(w, http.StatusInternalServerError, "TOKEN_ISSUE_FAILED")
		return
	}

	h.respondWithJSON(w, http.StatusOK, VerifyCodeResponse{
		OK:               true,
		VerifiedIdentity: identity,
		AccessToken:      accessToken,
		TokenType:        "Bearer",
		ExpiresIn:        expiresIn,
	})
}

func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	phone, ok := middleware.VerifiedPhone(r.Context())
	if !ok {
		h.respondFailure(w, http.StatusUnauthorized, "UNAUTHORIZED")
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]string{"phone": phone})
}

func (h *AuthHandlers) respondServiceFailure(w http.ResponseWriter, err error) {
	reason, ok := service.FailureReason(err)
	if !ok {
		h.logger.WithError(err).Error("Unclassified service error")
		h.respondFailure(w, http.StatusInternalServerError, string(service.ReasonStoreUnavailable))
		return
	}

	h.respondFailure(w, statusFor(reason), string(reason))
}

func statusFor(reason service.Reason) int {
	switch reason {
	case service.ReasonInvalidFormat:
		return http.StatusBadRequest
	case service.ReasonPhoneLimit, service.ReasonIPLimit, service.ReasonGlobalLimit, service.ReasonFanout:
		return http.StatusTooManyRequests
	case service.ReasonNoPending:
		return http.StatusNotFound
	case service.ReasonExpired:
		return http.StatusGone
	case service.ReasonOriginMismatch, service.ReasonCodeMismatch:
		return http.StatusUnauthorized
	case service.ReasonAttemptsExhausted:
		return http.StatusTooManyRequests
	case service.ReasonUnconfigured, service.ReasonDelivery:
		return http.StatusBadGateway
	case service.ReasonStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *AuthHandlers) respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (h *AuthHandlers) respondFailure(w http.ResponseWriter, status int, reason string) {
	h.respondWithJSON(w, status, FailureResponse{OK: false, Reason: reason})
}
