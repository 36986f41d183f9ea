package auth_test

import (
	"testing"
	"time"

	"github.com/komorebi-pos/engine/internal/auth"
)

func TestGenerateAndValidateToken(t *testing.T) {
	token, err := auth.GenerateToken("secret", "term-1", "CASHIER", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	claims, err := auth.ValidateToken("secret", token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.TerminalID != "term-1" || claims.Role != "CASHIER" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, err := auth.GenerateToken("secret", "term-1", "CASHIER", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := auth.ValidateToken("other", token); err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestValidateTokenExpired(t *testing.T) {
	token, err := auth.GenerateToken("secret", "term-1", "CASHIER", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := auth.ValidateToken("secret", token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestValidateTokenGarbage(t *testing.T) {
	if _, err := auth.ValidateToken("secret", "not-a-token"); err == nil {
		t.Error("expected error for malformed token")
	}
}
