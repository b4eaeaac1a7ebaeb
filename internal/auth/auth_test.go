package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newManager() *JWTManager {
	return NewJWTManager(Config{JWTSecret: "test-secret", Issuer: "fund-ledger", AccessTokenDuration: time.Minute})
}

func TestTokenRoundTrip(t *testing.T) {
	m := newManager()
	token, err := m.GenerateAccessToken(OperatorClaims{UserID: 7, ProfileID: 1, Name: "ops", IsAdmin: true})
	require.NoError(t, err)

	claims, err := m.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.True(t, claims.IsAdmin)
	assert.Equal(t, int64(60), m.GetAccessTokenDuration())
}

func TestValidateAccessTokenRejects(t *testing.T) {
	m := newManager()
	otherIssuer, err := NewJWTManager(Config{JWTSecret: "test-secret", Issuer: "someone-else"}).GenerateAccessToken(OperatorClaims{UserID: 1})
	require.NoError(t, err)
	otherSecret, err := NewJWTManager(Config{JWTSecret: "other"}).GenerateAccessToken(OperatorClaims{UserID: 1})
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": 1}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr AuthError
	}{
		{"garbage", "not-a-token", ErrInvalidToken},
		{"wrong issuer", otherIssuer, ErrInvalidToken},
		{"wrong secret", otherSecret, ErrInvalidToken},
		{"unsigned", none, ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.ValidateAccessToken(tt.token)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	past := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		OperatorClaims: OperatorClaims{UserID: 1},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			Issuer:    "fund-ledger",
			Audience:  []string{"fund-ledger-api"},
		},
	})
	signed, err := past.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = m.ValidateAccessToken(signed)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestMiddleware(t *testing.T) {
	m := newManager()
	admin, err := m.GenerateAccessToken(OperatorClaims{UserID: 7, IsAdmin: true})
	require.NoError(t, err)
	viewer, err := m.GenerateAccessToken(OperatorClaims{UserID: 8})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/admin", Middleware(m), RequireAdmin(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c), "name": GetClaims(c).Name})
	})
	r.GET("/open", Anonymous(), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"admin token", "/admin", "Bearer " + admin, http.StatusOK},
		{"non admin token", "/admin", "Bearer " + viewer, http.StatusForbidden},
		{"missing header", "/admin", "", http.StatusUnauthorized},
		{"wrong scheme", "/admin", "Basic " + admin, http.StatusUnauthorized},
		{"bad token", "/admin", "Bearer nope", http.StatusUnauthorized},
		{"auth disabled", "/open", "", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
