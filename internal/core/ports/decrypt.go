package ports

import "github.com/trustgrid/samlsp/internal/saml"

// AssertionDecrypter decrypts EncryptedAssertion elements addressed to
// the service provider.
// This is a port interface - implementations are adapters.
type AssertionDecrypter interface {
	// Decrypt returns the plaintext assertion XML.
	Decrypt(ea *saml.EncryptedAssertion) ([]byte, error)
}
