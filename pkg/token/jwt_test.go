package token

import (
	"testing"
)

func TestGenerateAndVerify(t *testing.T) {
	m := NewJWTManager("secret", 1, 1)
	access, err := m.GenerateToken("admin", "ADMIN")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := m.VerifyToken(access)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.Username != "admin" || claims.Role != "ADMIN" || claims.Kind != KindAccess {
		t.Errorf("claims = %+v", claims)
	}

	refresh, _ := m.GenerateRefreshToken("admin", "ADMIN")
	rc, err := m.VerifyToken(refresh)
	if err != nil || rc.Kind != KindRefresh {
		t.Errorf("refresh claims = %+v, err = %v", rc, err)
	}
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	tok, _ := NewJWTManager("one", 1, 1).GenerateToken("admin", "ADMIN")
	if _, err := NewJWTManager("two", 1, 1).VerifyToken(tok); err == nil {
		t.Error("expected signature mismatch")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := NewJWTManager("secret", 0, 0)
	tok, _ := m.GenerateToken("admin", "ADMIN")
	if _, err := m.VerifyToken(tok); err == nil {
		t.Error("expected expired token to be rejected")
	}
}

func TestGenerateRandomString(t *testing.T) {
	a, b := GenerateRandomString(16), GenerateRandomString(16)
	if len(a) != 32 || a == b {
		t.Errorf("got %q and %q", a, b)
	}
}
