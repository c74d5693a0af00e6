package auth

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/ammar1510/chatty/internal/logger"
	"github.com/ammar1510/chatty/internal/models"
)

// CookieName is the session cookie set on login
const CookieName = "jwt"

var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrNoIdentity   = errors.New("session needs a user with an id")

	// JWT_SECRET is read at import so tests and tools work without config;
	// the server overrides it with InitJWTKey once config is loaded.
	jwtKey   = []byte(os.Getenv("JWT_SECRET"))
	tokenTTL = 7 * 24 * time.Hour
	log      = logger.New("auth")
)

// InitJWTKey sets the HMAC secret. Sessions signed with a previous key stop
// validating.
func InitJWTKey(key []byte) {
	jwtKey = key
}

// SetTokenTTL changes the lifetime of sessions issued from now on.
// Non-positive values are ignored.
func SetTokenTTL(ttl time.Duration) {
	if ttl > 0 {
		tokenTTL = ttl
	}
}

func TokenTTL() time.Duration {
	return tokenTTL
}

// JWTClaims is the payload of a session cookie
type JWTClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// GenerateToken signs a session for user and returns it with its expiry, which
// the caller also uses as the cookie's Expires.
func GenerateToken(user *models.User) (string, time.Time, error) {
	if user == nil || user.ID == uuid.Nil {
		return "", time.Time{}, ErrNoIdentity
	}

	now := time.Now()
	expires := now.Add(tokenTTL)
	session := jwt.NewWithClaims(jwt.SigningMethodHS256, &JWTClaims{
		UserID: user.ID.String(),
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := session.SignedString(jwtKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, expires, nil
}

// ValidateToken checks the signature and expiry of a session cookie value.
// Only HMAC-signed sessions are accepted.
func ValidateToken(cookie string) (*JWTClaims, error) {
	if cookie == "" {
		return nil, ErrInvalidToken
	}

	claims := &JWTClaims{}
	parsed, err := jwt.ParseWithClaims(cookie, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			log.Warn("Rejecting session signed with %v", t.Header["alg"])
			return nil, fmt.Errorf("session signed with %v", t.Header["alg"])
		}
		return jwtKey, nil
	})
	if err != nil {
		log.Debug("Session rejected: %v", err)
		return nil, ErrInvalidToken
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GetUserIDFromToken returns the account id a session belongs to
func GetUserIDFromToken(claims *JWTClaims) (uuid.UUID, error) {
	if claims == nil {
		return uuid.Nil, ErrInvalidToken
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return id, nil
}
