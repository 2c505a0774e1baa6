package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndParseAccessToken(t *testing.T) {
	user := &User{ID: "usr-001", IsStaff: true}

	token, err := GenerateAccessToken(user, "ses-1", testSecret, 15*time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "usr-001" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "usr-001")
	}
	if claims.SessionID != "ses-1" {
		t.Errorf("SessionID = %q, want ses-1", claims.SessionID)
	}

	id := claims.Identity()
	if id != (Identity{ID: "usr-001", IsStaff: true}) {
		t.Errorf("Identity() = %+v", id)
	}
}

// signRaw mints a token with arbitrary claims, standing in for an external issuer.
func signRaw(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return s
}

func TestParseToken_Rejections(t *testing.T) {
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))
	past := jwt.NewNumericDate(time.Now().Add(-time.Hour))

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-valid-jwt"},
		{"wrong secret", signRaw(t, jwt.SigningMethodHS256, []byte("another-secret-that-is-32-chars!!"),
			CustomClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u", ExpiresAt: future}})},
		{"expired", signRaw(t, jwt.SigningMethodHS256, []byte(testSecret),
			CustomClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u", ExpiresAt: past}})},
		{"no expiry", signRaw(t, jwt.SigningMethodHS256, []byte(testSecret),
			CustomClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u"}})},
		{"missing subject", signRaw(t, jwt.SigningMethodHS256, []byte(testSecret),
			CustomClaims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future}})},
		{"wrong algorithm", signRaw(t, jwt.SigningMethodHS512, []byte(testSecret),
			CustomClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u", ExpiresAt: future}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.token, testSecret)
			if !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}

func TestParseToken_ExternalIssuerFlags(t *testing.T) {
	token := signRaw(t, jwt.SigningMethodHS256, []byte(testSecret), CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ext-42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
		IsAdmin: true,
	})

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if got := claims.Identity(); got != (Identity{ID: "ext-42", IsAdmin: true}) {
		t.Errorf("Identity() = %+v", got)
	}
	if claims.SessionID != "" {
		t.Errorf("SessionID = %q, want empty", claims.SessionID)
	}
}
