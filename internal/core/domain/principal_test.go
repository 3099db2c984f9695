//go:build unit

package domain

import (
	"encoding/json"
	"testing"
	"time"
)

// TestAttributes_FirstWriteWins verifies repeated equal writes are no-ops.
func TestAttributes_FirstWriteWins(t *testing.T) {
	a := NewAttributes()
	if err := a.Set("displayName", "Ada Lovelace"); err != nil {
		t.Fatalf("first write should succeed, got %v", err)
	}
	if err := a.Set("displayName", "Ada Lovelace"); err != nil {
		t.Errorf("equal repeat write should succeed, got %v", err)
	}
	if a.Len() != 1 {
		t.Errorf("expected 1 attribute, got %d", a.Len())
	}
}

// TestAttributes_ConflictFails verifies a differing second write fails.
func TestAttributes_ConflictFails(t *testing.T) {
	a := NewAttributes()
	if err := a.Set("mail", "ada@example.edu"); err != nil {
		t.Fatalf("first write should succeed, got %v", err)
	}
	if err := a.Set("mail", "imposter@example.edu"); err == nil {
		t.Error("conflicting write should fail")
	}
	v, _ := a.Get("mail")
	if v != "ada@example.edu" {
		t.Errorf("original value should survive conflict, got %q", v)
	}
}

// TestAttributes_OrderPreserved verifies insertion order survives a JSON round trip.
func TestAttributes_OrderPreserved(t *testing.T) {
	a := NewAttributes()
	for _, name := range []string{"eduPersonPrincipalName", "displayName", "mail"} {
		if err := a.Set(name, name+"-value"); err != nil {
			t.Fatalf("Set(%q): %v", name, err)
		}
	}

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded := NewAttributes()
	if err := json.Unmarshal(data, decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := []string{"eduPersonPrincipalName", "displayName", "mail"}
	got := decoded.Names()
	if len(got) != len(want) {
		t.Fatalf("expected %d names, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("name[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// TestPrincipal_Verify verifies realm and expiry checks.
func TestPrincipal_Verify(t *testing.T) {
	now := time.Now()
	p := &Principal{
		Realm:   "https://sp.example.edu/saml",
		Name:    "ada@example.edu",
		Expires: now.Add(time.Hour),
	}

	if err := p.Verify("https://sp.example.edu/saml", now); err != nil {
		t.Errorf("valid principal should verify, got %v", err)
	}
	if err := p.Verify("https://other.example.edu/saml", now); err == nil {
		t.Error("wrong realm should fail verification")
	}
	if err := p.Verify("https://sp.example.edu/saml", now.Add(2*time.Hour)); err == nil {
		t.Error("expired principal should fail verification")
	}
}

// TestAssertion_HasAuthnStatement verifies zero AuthnInstant means no statement.
func TestAssertion_HasAuthnStatement(t *testing.T) {
	a := Assertion{}
	if a.HasAuthnStatement() {
		t.Error("zero AuthnInstant should mean no authn statement")
	}
	a.AuthnInstant = time.Now()
	if !a.HasAuthnStatement() {
		t.Error("set AuthnInstant should mean an authn statement is present")
	}
}
