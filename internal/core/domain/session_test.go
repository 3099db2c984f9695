//go:build unit

package domain

import (
	"strings"
	"testing"
	"time"
)

// TestNewSessionID verifies the generated ID is a valid XML ID and unique.
func TestNewSessionID(t *testing.T) {
	id := NewSessionID()
	if !strings.HasPrefix(id, "_") {
		t.Errorf("session ID should start with underscore, got %q", id)
	}
	if len(id) != 33 {
		t.Errorf("session ID should be 33 characters, got %d", len(id))
	}
	if NewSessionID() == id {
		t.Error("session IDs should be unique")
	}
}

// TestLoginDetails_Expired verifies the pending-attempt timeout.
func TestLoginDetails_Expired(t *testing.T) {
	created := time.Now()
	d := &LoginDetails{SessionID: NewSessionID(), CreatedAt: created}

	if d.Expired(created.Add(5*time.Minute), 15*time.Minute) {
		t.Error("attempt within timeout should not be expired")
	}
	if !d.Expired(created.Add(16*time.Minute), 15*time.Minute) {
		t.Error("attempt past timeout should be expired")
	}
}
