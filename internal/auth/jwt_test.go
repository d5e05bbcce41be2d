package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-unit-tests"

func TestGenerateAccessToken(t *testing.T) {
	svc := NewJWTService(testSecret)

	token, err := svc.GenerateAccessToken(42, RoleOperator)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Type != TokenTypeAccess {
		t.Errorf("expected typ %q, got %q", TokenTypeAccess, claims.Type)
	}
	if claims.Role != RoleOperator {
		t.Errorf("expected role %q, got %q", RoleOperator, claims.Role)
	}
	userID, err := claims.UserID()
	if err != nil {
		t.Fatalf("UserID failed: %v", err)
	}
	if userID != 42 {
		t.Errorf("expected user id 42, got %d", userID)
	}
}

func TestGenerateAccessToken_InvalidUserID(t *testing.T) {
	svc := NewJWTService(testSecret)

	for _, id := range []int64{0, -1} {
		if _, err := svc.GenerateAccessToken(id, RoleUser); !errors.Is(err, ErrInvalidUserID) {
			t.Errorf("user id %d: expected ErrInvalidUserID, got %v", id, err)
		}
	}
}

func TestGenerateRefreshToken(t *testing.T) {
	svc := NewJWTService(testSecret)

	token, err := svc.GenerateRefreshToken(7)
	if err != nil {
		t.Fatalf("GenerateRefreshToken failed: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Type != TokenTypeRefresh {
		t.Errorf("expected typ %q, got %q", TokenTypeRefresh, claims.Type)
	}
	if claims.Role != "" {
		t.Errorf("refresh tokens must not carry a role, got %q", claims.Role)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	svc := NewJWTService(testSecret)
	other := NewJWTService("completely-different-secret")

	token, err := svc.GenerateAccessToken(1, RoleUser)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := other.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateToken_Expired(t *testing.T) {
	// Zero leeway so an already-expired token fails immediately.
	svc := NewJWTServiceWithRotationAndLeeway(testSecret, "", 0)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-30 * time.Minute)),
		},
		Type: TokenTypeAccess,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := svc.ValidateToken(signed); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestValidateToken_WrongSigningMethod(t *testing.T) {
	svc := NewJWTService(testSecret)

	// Tokens signed with a different HMAC variant must be rejected even
	// though the secret matches.
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Type: TokenTypeAccess,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := svc.ValidateToken(signed); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateToken_SecretRotation(t *testing.T) {
	oldSvc := NewJWTService("old-secret")
	oldToken, err := oldSvc.GenerateAccessToken(5, RoleAdmin)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	// After rotation, tokens signed with the previous secret still validate.
	rotated := NewJWTServiceWithRotation("new-secret", "old-secret")
	claims, err := rotated.ValidateToken(oldToken)
	if err != nil {
		t.Fatalf("expected old token to validate during rotation, got %v", err)
	}
	if claims.Role != RoleAdmin {
		t.Errorf("expected role %q, got %q", RoleAdmin, claims.Role)
	}

	// New tokens are signed with the current secret.
	newToken, err := rotated.GenerateAccessToken(5, RoleAdmin)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}
	if _, err := rotated.ValidateToken(newToken); err != nil {
		t.Fatalf("new token failed to validate: %v", err)
	}

	// Once rotation completes the old secret is dropped and old tokens fail.
	completed := NewJWTServiceWithRotation("new-secret", "")
	if _, err := completed.ValidateToken(oldToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken after rotation completed, got %v", err)
	}
}

func TestClaimsUserID_Malformed(t *testing.T) {
	for _, subject := range []string{"", "abc", "-3", "0"} {
		c := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: subject}}
		if _, err := c.UserID(); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("subject %q: expected ErrInvalidToken, got %v", subject, err)
		}
	}
}
