// Package decrypt unwraps EncryptedAssertion elements using the service
// provider's key pair via gosaml2's XML-ENC support.
package decrypt

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"

	"github.com/trustgrid/samlsp/internal/core/domain"
	"github.com/trustgrid/samlsp/internal/core/ports"
	"github.com/trustgrid/samlsp/internal/saml"
)

// KeyDecrypter decrypts assertions encrypted to the SP certificate.
type KeyDecrypter struct {
	cert tls.Certificate
}

// NewKeyDecrypter creates a decrypter from the SP private key and
// certificate.
func NewKeyDecrypter(key crypto.PrivateKey, cert *x509.Certificate) *KeyDecrypter {
	return &KeyDecrypter{
		cert: tls.Certificate{
			Certificate: [][]byte{cert.Raw},
			PrivateKey:  key,
			Leaf:        cert,
		},
	}
}

// Decrypt returns the plaintext assertion XML.
func (d *KeyDecrypter) Decrypt(ea *saml.EncryptedAssertion) ([]byte, error) {
	plaintext, err := ea.DecryptBytes(&d.cert)
	if err != nil {
		return nil, domain.ProtocolError("failed to decrypt assertion", err)
	}
	return plaintext, nil
}

// Ensure KeyDecrypter implements ports.AssertionDecrypter
var _ ports.AssertionDecrypter = (*KeyDecrypter)(nil)
