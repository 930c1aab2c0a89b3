package auth

import (
	"errors"
	"testing"
	"time"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == "correct horse battery staple" {
		t.Fatal("password stored in the clear")
	}

	if err := CheckPassword(hash, "correct horse battery staple"); err != nil {
		t.Errorf("valid password rejected: %v", err)
	}
	if err := CheckPassword(hash, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	token, err := issuer.Issue(42)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	userID, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if userID != 42 {
		t.Errorf("user id = %d, want 42", userID)
	}
}

func TestTokenRejection(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{
			name:  "garbage",
			token: func(t *testing.T) string { return "not.a.token" },
		},
		{
			name: "wrong secret",
			token: func(t *testing.T) string {
				other := NewTokenIssuer("different-secret", time.Hour)
				tok, err := other.Issue(42)
				if err != nil {
					t.Fatal(err)
				}
				return tok
			},
		},
		{
			name: "expired",
			token: func(t *testing.T) string {
				expired := NewTokenIssuer("test-secret", -time.Minute)
				tok, err := expired.Issue(42)
				if err != nil {
					t.Fatal(err)
				}
				return tok
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := issuer.Verify(tt.token(t)); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}
