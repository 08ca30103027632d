package auth

import "testing"

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err := GenerateToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if a == b {
		t.Fatal("tokens should be unique")
	}
	if err := ValidateToken(a); err != nil {
		t.Fatalf("generated token should validate: %v", err)
	}
}

func TestHashAndVerifyToken(t *testing.T) {
	token := "sweep-admin-token-123"
	hash, err := HashToken(token)
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	if !VerifyToken(hash, token) {
		t.Fatal("expected token to verify")
	}
	if VerifyToken(hash, "wrong") {
		t.Fatal("expected wrong token to fail")
	}
	if VerifyToken("", token) {
		t.Fatal("empty hash must never verify")
	}
}

func TestHashTokenRejectsShortTokens(t *testing.T) {
	if _, err := HashToken("short"); err == nil {
		t.Fatal("expected error for short token")
	}
}
