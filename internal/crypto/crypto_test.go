package crypto

import (
	"errors"
	"strings"
	"testing"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if hash == "correct horse" {
		t.Fatal("hash must not equal the password")
	}
	if err := CheckPassword(hash, "correct horse"); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if err := CheckPassword(hash, "wrong horse"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}
}

func TestHashPasswordLength(t *testing.T) {
	if _, err := HashPassword("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	if _, err := HashPassword(strings.Repeat("x", 73)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
}

func TestNewTokenUnique(t *testing.T) {
	a, err := NewToken()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := NewToken()
	if a == b {
		t.Fatal("tokens should differ")
	}
	if len(a) != 43 {
		t.Fatalf("expected 43 chars, got %d", len(a))
	}
	if strings.ContainsAny(a, "+/=") {
		t.Fatalf("token %q is not URL-safe", a)
	}
}

func TestHashTokenStable(t *testing.T) {
	if HashToken("abc") != HashToken("abc") {
		t.Fatal("digest should be deterministic")
	}
	if HashToken("abc") == HashToken("abd") {
		t.Fatal("different tokens should have different digests")
	}
	if len(HashToken("abc")) != 64 {
		t.Fatal("expected hex sha256 digest")
	}
}

func TestNewAccountIDOrdered(t *testing.T) {
	a := NewAccountID()
	b := NewAccountID()
	if a.Version() != 7 {
		t.Fatalf("expected version 7, got %d", a.Version())
	}
	if a.String() >= b.String() {
		t.Fatalf("expected %s < %s", a, b)
	}
}
