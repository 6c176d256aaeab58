package hash

import "testing"

func TestHashAndCheck(t *testing.T) {
	h, err := HashPassword("s3cret!")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPasswordHash("s3cret!", h) {
		t.Error("expected password to match")
	}
	if CheckPasswordHash("wrong", h) {
		t.Error("expected mismatch")
	}
	if CheckPasswordHash("s3cret!", "") {
		t.Error("empty hash must not match")
	}
}
