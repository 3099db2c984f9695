package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Attributes is an ordered-insertion map from attribute name (or friendly
// name) to string value. The first writer wins per name; a conflicting
// second write for the same name fails loudly rather than silently
// overwriting, because two assertions disagreeing about the same
// attribute is an integrity problem, not a merge.
type Attributes struct {
	names  []string
	values map[string]string
}

// NewAttributes creates an empty attribute map.
func NewAttributes() *Attributes {
	return &Attributes{values: make(map[string]string)}
}

// Set records a value under name. Setting the same value twice is a
// no-op; a differing value for an existing name is an error.
func (a *Attributes) Set(name, value string) error {
	if existing, ok := a.values[name]; ok {
		if existing != value {
			return fmt.Errorf("conflicting values for attribute %q", name)
		}
		return nil
	}
	a.names = append(a.names, name)
	a.values[name] = value
	return nil
}

// Get returns the value for name and whether it was present.
func (a *Attributes) Get(name string) (string, bool) {
	v, ok := a.values[name]
	return v, ok
}

// Names returns the attribute names in insertion order.
func (a *Attributes) Names() []string {
	out := make([]string, len(a.names))
	copy(out, a.names)
	return out
}

// Len returns the number of attributes.
func (a *Attributes) Len() int {
	return len(a.names)
}

// attributePair is the serialized form; an array of pairs preserves
// insertion order across a round trip, which a JSON object would not.
type attributePair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MarshalJSON implements json.Marshaler.
func (a *Attributes) MarshalJSON() ([]byte, error) {
	pairs := make([]attributePair, 0, len(a.names))
	for _, name := range a.names {
		pairs = append(pairs, attributePair{Name: name, Value: a.values[name]})
	}
	return json.Marshal(pairs)
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	var pairs []attributePair
	if err := json.Unmarshal(data, &pairs); err != nil {
		return err
	}
	a.names = nil
	a.values = make(map[string]string, len(pairs))
	for _, p := range pairs {
		if err := a.Set(p.Name, p.Value); err != nil {
			return err
		}
	}
	return nil
}

// Assertion holds the validated, decoded content of one SAML assertion:
// condition window, authentication statement values, and attributes.
type Assertion struct {
	NotBefore      time.Time   `json:"nbf,omitempty"`
	NotOnOrAfter   time.Time   `json:"exp,omitempty"`
	AuthnInstant   time.Time   `json:"authn_instant,omitempty"`
	AuthnAuthority string      `json:"authn_authority,omitempty"`
	Attributes     *Attributes `json:"attribute_statement"`
}

// HasAuthnStatement reports whether the assertion carried an
// authentication statement.
func (a *Assertion) HasAuthnStatement() bool {
	return !a.AuthnInstant.IsZero()
}

// Principal is a verified SAML identity. It is created only by successful
// response validation and is immutable thereafter.
type Principal struct {
	// Realm is the authentication realm the principal was verified for.
	Realm string `json:"aud"`

	// Name is the subject name drawn from the principal-name attribute.
	Name string `json:"sub"`

	// Issuer is the asserting IdP's entity ID.
	Issuer string `json:"iss"`

	// IssueInstant is when the IdP issued the response.
	IssueInstant time.Time `json:"iat"`

	// AuthnInstant is when the subject authenticated at the IdP.
	AuthnInstant time.Time `json:"auth_time"`

	// AuthnAuthority identifies the authenticating authority, when the
	// IdP proxied authentication to another system.
	AuthnAuthority string `json:"authn_authority,omitempty"`

	// Expires is always derived as AuthnInstant plus the configured
	// session lifetime, never supplied externally.
	Expires time.Time `json:"exp"`

	// Assertions are the validated assertions backing this principal,
	// in response order.
	Assertions []Assertion `json:"urn:oasis:names:tc:SAML:2.0:assertion,omitempty"`
}

// Verify checks that the principal belongs to the given realm and has
// not expired.
func (p *Principal) Verify(realm string, now time.Time) error {
	if p.Realm != realm {
		return AuthError("principal realm mismatch", fmt.Errorf("principal issued for realm %q", p.Realm))
	}
	if now.After(p.Expires) {
		return AuthError("authenticated session expired", fmt.Errorf("expired at %s", p.Expires.Format(time.RFC3339)))
	}
	return nil
}
