package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func TestIssueAndVerify(t *testing.T) {
	svc := NewService("secret", time.Hour)
	userID := uuid.NewString()

	tok, err := svc.Issue(userID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tok.ExpiresIn != 3600 {
		t.Fatalf("unexpected expiry %d", tok.ExpiresIn)
	}
	got, err := svc.Verify(tok.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got != userID {
		t.Fatalf("expected %s got %s", userID, got)
	}
}

func TestVerifyRejectsWrongSecretAndExpired(t *testing.T) {
	issuer := NewService("secret", time.Hour)
	tok, err := issuer.Issue(uuid.NewString())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := NewService("other", time.Hour).Verify(tok.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}

	later := NewService("secret", time.Hour)
	later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := later.Verify(tok.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}

func TestVerifyAcceptsUserIDClaim(t *testing.T) {
	userID := uuid.NewString()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	got, err := NewService("secret", time.Hour).Verify(signed)
	if err != nil || got != userID {
		t.Fatalf("expected %s, got %s (%v)", userID, got, err)
	}
}
