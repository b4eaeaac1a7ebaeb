package auth

import (
	"time"
)

// OperatorClaims identifies the caller of the operator API
type OperatorClaims struct {
	UserID    int64  `json:"user_id"`
	ProfileID int64  `json:"profile_id"`
	Name      string `json:"name"`
	IsAdmin   bool   `json:"is_admin"`
}

// Config holds token verification settings
type Config struct {
	JWTSecret           string        `json:"jwt_secret"`
	Issuer              string        `json:"issuer"`
	AccessTokenDuration time.Duration `json:"access_token_duration"`
}

// DefaultConfig returns default authentication configuration
func DefaultConfig() Config {
	return Config{
		JWTSecret:           "", // Must be set
		Issuer:              "fund-ledger",
		AccessTokenDuration: 15 * time.Minute,
	}
}

// Error types for authentication
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e AuthError) Error() string {
	return e.Message
}

// Common authentication errors
var (
	ErrInvalidToken = AuthError{Code: "INVALID_TOKEN", Message: "invalid or expired token"}
	ErrTokenExpired = AuthError{Code: "TOKEN_EXPIRED", Message: "token has expired"}
	ErrUnauthorized = AuthError{Code: "UNAUTHORIZED", Message: "unauthorized access"}
	ErrForbidden    = AuthError{Code: "FORBIDDEN", Message: "access forbidden"}
)
