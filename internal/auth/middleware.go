package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// Context keys for operator data
	ContextKeyUserID  = "user_id"
	ContextKeyIsAdmin = "user_is_admin"
	ContextKeyClaims  = "user_claims"
)

// bearerToken returns the token of an "Authorization: Bearer <token>" header
func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", AuthError{Code: ErrUnauthorized.Code, Message: "missing authorization header"}
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", AuthError{Code: ErrUnauthorized.Code, Message: "invalid authorization header format"}
	}
	return token, nil
}

func abort(c *gin.Context, status int, err error) {
	var authErr AuthError
	if !errors.As(err, &authErr) {
		authErr = ErrInvalidToken
	}
	c.AbortWithStatusJSON(status, gin.H{"error": authErr.Code, "message": authErr.Message})
}

// Middleware rejects requests without a valid operator token
func Middleware(jwtManager *JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err == nil {
			var claims *OperatorClaims
			if claims, err = jwtManager.ValidateAccessToken(token); err == nil {
				setClaims(c, claims)
				c.Next()
				return
			}
		}
		abort(c, http.StatusUnauthorized, err)
	}
}

// Anonymous marks every request as an admin operator. It stands in for
// Middleware when authentication is disabled.
func Anonymous() gin.HandlerFunc {
	return func(c *gin.Context) {
		setClaims(c, &OperatorClaims{Name: "anonymous", IsAdmin: true})
		c.Next()
	}
}

func setClaims(c *gin.Context, claims *OperatorClaims) {
	c.Set(ContextKeyUserID, claims.UserID)
	c.Set(ContextKeyIsAdmin, claims.IsAdmin)
	c.Set(ContextKeyClaims, claims)
}

// RequireAdmin middleware ensures the user is an admin
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c) {
			abort(c, http.StatusForbidden, AuthError{Code: ErrForbidden.Code, Message: "admin access required"})
			return
		}
		c.Next()
	}
}

// GetUserID returns the caller's user ID, zero when unauthenticated
func GetUserID(c *gin.Context) int64 {
	return c.GetInt64(ContextKeyUserID)
}

// GetClaims returns the caller's claims, nil when unauthenticated
func GetClaims(c *gin.Context) *OperatorClaims {
	oc, _ := c.Value(ContextKeyClaims).(*OperatorClaims)
	return oc
}

// IsAdmin reports whether the caller may use the write routes
func IsAdmin(c *gin.Context) bool {
	return c.GetBool(ContextKeyIsAdmin)
}
