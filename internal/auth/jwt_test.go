package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/chatty/internal/models"
)

const sessionKey = "session-key-for-auth-tests"

func sessionUser() *models.User {
	return &models.User{ID: uuid.New(), FullName: "Alice", Email: "alice@example.com", IsVerified: true}
}

func TestSessionTokenRoundTrip(t *testing.T) {
	InitJWTKey([]byte(sessionKey))
	user := sessionUser()

	token, expiry, err := GenerateToken(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(TokenTTL()), expiry, 5*time.Second)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, user.ID.String(), claims.Subject)

	id, err := GetUserIDFromToken(claims)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)
}

func TestGenerateTokenNeedsAnIdentity(t *testing.T) {
	InitJWTKey([]byte(sessionKey))

	for name, user := range map[string]*models.User{
		"nil user":   nil,
		"nil id":     {Email: "ghost@example.com"},
		"zero value": {},
	} {
		t.Run(name, func(t *testing.T) {
			token, _, err := GenerateToken(user)
			assert.ErrorIs(t, err, ErrNoIdentity)
			assert.Empty(t, token)
		})
	}
}

func TestValidateTokenRejects(t *testing.T) {
	InitJWTKey([]byte(sessionKey))
	good, _, err := GenerateToken(sessionUser())
	require.NoError(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &JWTClaims{
		UserID: uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte(sessionKey))
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &JWTClaims{UserID: uuid.NewString()}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.valid.jwt.token"},
		{"tampered signature", good + "x"},
		{"expired session", expired},
		{"alg none", unsigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ValidateToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}

func TestGetUserIDFromBadClaims(t *testing.T) {
	_, err := GetUserIDFromToken(nil)
	assert.Error(t, err)

	id, err := GetUserIDFromToken(&JWTClaims{UserID: "AI_BOT"})
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Equal(t, uuid.Nil, id)
}

func TestSessionTTL(t *testing.T) {
	InitJWTKey([]byte(sessionKey))
	original := TokenTTL()
	defer SetTokenTTL(original)

	SetTokenTTL(time.Hour)
	_, expiry, err := GenerateToken(sessionUser())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiry, 5*time.Second)

	// non-positive values are ignored
	SetTokenTTL(0)
	assert.Equal(t, time.Hour, TokenTTL())
}

func TestRotatedKeyInvalidatesSessions(t *testing.T) {
	InitJWTKey([]byte("first-key"))
	token, _, err := GenerateToken(sessionUser())
	require.NoError(t, err)

	InitJWTKey([]byte("second-key"))
	claims, err := ValidateToken(token)
	assert.Error(t, err)
	assert.Nil(t, claims)
}
