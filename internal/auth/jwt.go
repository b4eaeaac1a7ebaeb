package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenAudience = "fund-ledger-api"

// JWTManager signs and verifies operator access tokens
type JWTManager struct {
	secret              []byte
	issuer              string
	accessTokenDuration time.Duration
}

// Claims represents the JWT claims
type Claims struct {
	OperatorClaims
	jwt.RegisteredClaims
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(cfg Config) *JWTManager {
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultConfig().Issuer
	}
	if cfg.AccessTokenDuration <= 0 {
		cfg.AccessTokenDuration = DefaultConfig().AccessTokenDuration
	}
	return &JWTManager{
		secret:              []byte(cfg.JWTSecret),
		issuer:              cfg.Issuer,
		accessTokenDuration: cfg.AccessTokenDuration,
	}
}

// GenerateAccessToken signs a token for claims. Tokens are normally issued
// by the identity service; this is used by the admin CLI and tests.
func (m *JWTManager) GenerateAccessToken(claims OperatorClaims) (string, error) {
	now := time.Now()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		OperatorClaims: claims,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(claims.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTokenDuration)),
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
		},
	}).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateAccessToken verifies signature, issuer, audience and expiry
func (m *JWTManager) ValidateAccessToken(tokenString string) (*OperatorClaims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(tokenAudience),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil:
		return nil, ErrInvalidToken
	}
	return &claims.OperatorClaims, nil
}

// GetAccessTokenDuration returns the access token duration in seconds
func (m *JWTManager) GetAccessTokenDuration() int64 {
	return int64(m.accessTokenDuration.Seconds())
}
