package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTokenIssuer_IssueAndParse(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret"), "storefront")
	now := time.Now()

	token, err := issuer.Issue("sess-1", "user-1", "a@example.com", map[string]any{"full_name": "Ada"}, now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "user-1" || claims.ID != "sess-1" || claims.Email != "a@example.com" {
		t.Errorf("claims = %+v", claims)
	}
	if claims.UserMetadata["full_name"] != "Ada" {
		t.Errorf("metadata = %v", claims.UserMetadata)
	}
}

func TestTokenIssuer_RejectsExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret"), "storefront")
	past := time.Now().Add(-2 * time.Hour)

	token, err := issuer.Issue("sess-1", "user-1", "", nil, past, past.Add(time.Hour))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := issuer.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestTokenIssuer_RejectsOtherSecretAndIssuer(t *testing.T) {
	now := time.Now()
	token, err := NewTokenIssuer([]byte("secret-a"), "storefront").Issue("sess-1", "user-1", "", nil, now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := NewTokenIssuer([]byte("secret-b"), "storefront").Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("other secret: err = %v, want ErrInvalidToken", err)
	}
	if _, err := NewTokenIssuer([]byte("secret-a"), "someone-else").Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("other issuer: err = %v, want ErrInvalidToken", err)
	}
}

func TestPassword_HashAndVerify(t *testing.T) {
	hash, err := HashPassword("p4ssword")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := VerifyPassword(hash, "p4ssword"); err != nil {
		t.Errorf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "other"); err == nil {
		t.Error("expected mismatch error")
	}
	if err := VerifyPassword("", "p4ssword"); err == nil {
		t.Error("expected error for empty hash")
	}
}
