package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CustomClaims are the JWT claims understood by the Authorization Gate.
// SessionID is only present on tokens issued by Login.
type CustomClaims struct {
	jwt.RegisteredClaims
	IsStaff   bool   `json:"is_staff"`
	IsAdmin   bool   `json:"is_admin"`
	SessionID string `json:"sid,omitempty"`
}

// Identity converts validated claims into the caller identity.
func (c *CustomClaims) Identity() Identity {
	return Identity{ID: c.Subject, IsStaff: c.IsStaff, IsAdmin: c.IsAdmin}
}

// GenerateAccessToken signs an HS256 token for user bound to sessionID.
func GenerateAccessToken(user *User, sessionID, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		IsStaff:   user.IsStaff,
		IsAdmin:   user.IsAdmin,
		SessionID: sessionID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// ParseToken validates signature, algorithm and expiry and returns the claims.
// Every failure wraps ErrTokenInvalid.
func ParseToken(tokenString, secret string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims, nil
}
