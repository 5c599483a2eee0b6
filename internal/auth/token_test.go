package auth

import (
	"errors"
	"testing"
	"time"
)

func TestSignAndParse(t *testing.T) {
	p := Principal{UserID: "user-1", DisplayName: "Ada", Capabilities: []string{CapCardsManage}}
	token, err := Sign("secret", "bizbank", p, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	got, err := NewVerifier("secret", "bizbank").Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.UserID != "user-1" || got.DisplayName != "Ada" || !got.Has(CapCardsManage) {
		t.Fatalf("unexpected principal %+v", got)
	}
	if got.Has(CapUsersManage) {
		t.Fatalf("unexpected capability")
	}
}

func TestParseRejectsWrongSecretAndExpired(t *testing.T) {
	p := Principal{UserID: "user-1"}
	token, _ := Sign("secret", "", p, time.Minute)
	if _, err := NewVerifier("other", "").Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for wrong secret, got %v", err)
	}

	expired, _ := Sign("secret", "", p, -time.Minute)
	if _, err := NewVerifier("secret", "").Parse(expired); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for expired token, got %v", err)
	}
}
