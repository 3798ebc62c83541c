package auth

import (
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue("u-42", []string{"teacher", "cc"}, "rollcall", "test-key", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := Parse(pair.AccessToken, "test-key", "rollcall")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "u-42" {
		t.Errorf("subject = %q, want u-42", claims.Subject)
	}
	if len(claims.Roles) != 2 || claims.Roles[0] != "teacher" || claims.Roles[1] != "cc" {
		t.Errorf("roles = %v, want [teacher cc]", claims.Roles)
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	pair, err := Issue("u-1", []string{"student"}, "rollcall", "key-a", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "key-b", "rollcall"); err == nil {
		t.Fatal("expected error for wrong signing key")
	}
}

func TestParseRejectsIssuerMismatch(t *testing.T) {
	pair, err := Issue("u-1", []string{"student"}, "other-issuer", "key", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "key", "rollcall"); err == nil {
		t.Fatal("expected issuer mismatch error")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	pair, err := Issue("u-1", []string{"student"}, "rollcall", "key", -time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "key", "rollcall"); err == nil {
		t.Fatal("expected expiry error")
	}
}
