// Package token mints and verifies the signed proof that a phone number
// has been verified. This is the only session artifact the service issues;
// anything richer belongs to the calling application.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/phonegate/phonegate/internal/config"
	"github.com/sirupsen/logrus"
)

type Issuer struct {
	secretKey []byte
	expiry    time.Duration
	logger    *logrus.Logger
}

func NewIssuer(cfg *config.JWTConfig, logger *logrus.Logger) (*Issuer, error) {
	secretKey := []byte(cfg.SecretKey)
	if len(secretKey) < 32 {
		return nil, fmt.Errorf("secret key must be at least 32 bytes")
	}

	return &Issuer{
		secretKey: secretKey,
		expiry:    cfg.Expiry,
		logger:    logger,
	}, nil
}

type Claims struct {
	Phone string `json:"phone"`
	jwt.RegisteredClaims
}

// Issue returns a signed token for the verified phone number and the
// token's lifetime in seconds.
func (i *Issuer) Issue(phoneNumber string) (string, int64, error) {
	now := time.Now()
	claims := &Claims{
		Phone: phoneNumber,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   phoneNumber,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.expiry)),
			ID:        uuid.New().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secretKey)
	if err != nil {
		i.logger.WithError(err).Error("Failed to sign verification token")
		return "", 0, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, int64(i.expiry.Seconds()), nil
}

func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}
