package domain

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// LoginDetails is the state recorded when a login begins and consumed
// exactly once when the IdP response arrives. It never outlives a single
// authentication attempt.
type LoginDetails struct {
	// SessionID is the AuthnRequest ID the IdP must echo in
	// InResponseTo. XML IDs cannot start with a digit, hence the
	// underscore prefix applied at generation.
	SessionID string `json:"session_id"`

	// RelayState is the opaque value round-tripped through the IdP. The
	// returned value must match exactly.
	RelayState string `json:"relay_state"`

	// ReturnURI is where the user agent is sent after the attempt
	// completes, successfully or not.
	ReturnURI string `json:"return_uri"`

	// CreatedAt bounds how long the pending attempt stays usable.
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the pending attempt is older than timeout.
func (d *LoginDetails) Expired(now time.Time, timeout time.Duration) bool {
	return now.After(d.CreatedAt.Add(timeout))
}

// AuthDetails is the state of an established session. Once marked
// invalid it can never become valid again.
type AuthDetails struct {
	Principal *Principal `json:"principal,omitempty"`

	// Invalid is set when verification fails after establishment. The
	// flag is sticky.
	Invalid bool `json:"invalid,omitempty"`
}

// NewSessionID generates a 128-bit random ID usable as an XML ID value.
func NewSessionID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(err)
	}
	return "_" + hex.EncodeToString(buf[:])
}
