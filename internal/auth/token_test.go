package auth

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateAndValidateToken(t *testing.T) {
	sec := "secret123"
	sid := "abc"
	exp := time.Now().Add(5 * time.Minute).Unix()

	tok := GenerateListenerToken(sec, sid, exp)

	gotSID, gotExp, err := ValidateListenerToken(sec, tok, sid, time.Now(), 60)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if gotSID != sid || gotExp != exp {
		t.Fatalf("mismatch: %s/%d", gotSID, gotExp)
	}
}

func TestBadSignature(t *testing.T) {
	sec := "secret123"
	sid := "abc"
	exp := time.Now().Add(5 * time.Minute).Unix()
	tok := GenerateListenerToken(sec, sid, exp)

	// flip a char
	if tok[0] == 'A' {
		tok = "B" + tok[1:]
	} else {
		tok = "A" + tok[1:]
	}

	if _, _, err := ValidateListenerToken(sec, tok, sid, time.Now(), 60); err == nil {
		t.Fatalf("expected error for bad token")
	}
}

func TestSessionMismatch(t *testing.T) {
	tok := GenerateListenerToken("s", "abc", time.Now().Add(time.Minute).Unix())
	if _, _, err := ValidateListenerToken("s", tok, "other", time.Now(), 60); !errors.Is(err, ErrTokenSID) {
		t.Fatalf("err = %v, want ErrTokenSID", err)
	}
}

func TestExpiredToken(t *testing.T) {
	tok := GenerateListenerToken("s", "abc", time.Now().Add(-10*time.Minute).Unix())
	if _, _, err := ValidateListenerToken("s", tok, "abc", time.Now(), 60); !errors.Is(err, ErrTokenExp) {
		t.Fatalf("err = %v, want ErrTokenExp", err)
	}
}
