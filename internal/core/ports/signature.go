package ports

import "crypto/x509"

// TrustEngine verifies XML signatures on SAML responses.
// This is a port interface - implementations are adapters.
//
// Validate returns the validated bytes (not just error) following goxmldsig
// best practices to prevent signature wrapping attacks. All further
// processing must use the returned bytes, never the input.
type TrustEngine interface {
	// Validate checks the enveloped signature on doc against the trusted
	// certificates and returns the serialized validated element. Returns
	// error if the signature is missing, broken, or signed by an
	// untrusted key.
	Validate(doc []byte, trusted []*x509.Certificate) ([]byte, error)
}
