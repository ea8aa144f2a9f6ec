package auth

import (
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	token, exp, err := Issue("admin", "admin", "smartattend", "key", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatal("expiry should be in the future")
	}

	claims, err := Parse(token, "key", "smartattend")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims.Username != "admin" || claims.Role != "admin" {
		t.Fatalf("claims = %+v", claims)
	}

	if _, err := Parse(token, "wrong-key", "smartattend"); err == nil {
		t.Fatal("Parse() with wrong key should fail")
	}
	if _, err := Parse(token, "key", "someone-else"); err == nil {
		t.Fatal("Parse() with wrong issuer should fail")
	}
}

func TestParseExpiredToken(t *testing.T) {
	token, _, err := Issue("t1", "teacher", "smartattend", "key", -time.Minute)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := Parse(token, "key", "smartattend"); err == nil {
		t.Fatal("Parse() of expired token should fail")
	}
}
