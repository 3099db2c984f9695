// Package trust verifies XML signatures on SAML responses using
// goxmldsig against the certificates published in IdP metadata.
package trust

import (
	"crypto/x509"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
	"go.uber.org/zap"

	"github.com/trustgrid/samlsp/internal/core/domain"
	"github.com/trustgrid/samlsp/internal/core/ports"
)

// XMLDsigEngine validates enveloped signatures with goxmldsig. The
// trusted certificates arrive per call because they depend on which IdP
// issued the response being checked.
type XMLDsigEngine struct {
	logger *zap.Logger
}

// NewXMLDsigEngine creates a trust engine.
func NewXMLDsigEngine(logger *zap.Logger) *XMLDsigEngine {
	return &XMLDsigEngine{logger: logger}
}

// Validate checks the enveloped signature on doc and returns the
// serialized validated element. The returned bytes, not the input, must
// drive all further processing; re-serializing the element goxmldsig
// validated defeats signature wrapping attacks.
func (e *XMLDsigEngine) Validate(doc []byte, trusted []*x509.Certificate) ([]byte, error) {
	parsed := etree.NewDocument()
	if err := parsed.ReadFromBytes(doc); err != nil {
		return nil, domain.ProtocolError("response is not well-formed XML", err)
	}

	root := parsed.Root()
	if root == nil {
		return nil, domain.ProtocolError("response document is empty", nil)
	}

	certStore := &dsig.MemoryX509CertificateStore{Roots: trusted}
	ctx := dsig.NewDefaultValidationContext(certStore)

	validated, err := ctx.Validate(root)
	if err != nil {
		return nil, domain.ProtocolError("response signature verification failed", err)
	}

	if e.logger != nil && len(trusted) > 0 {
		e.logger.Debug("response signature verified",
			zap.String("cert_subject", trusted[0].Subject.String()),
			zap.Time("cert_expiry", trusted[0].NotAfter))
	}

	validatedDoc := etree.NewDocument()
	validatedDoc.SetRoot(validated)
	result, err := validatedDoc.WriteToBytes()
	if err != nil {
		return nil, domain.ProtocolError("failed to serialize validated response", err)
	}
	return result, nil
}

// Ensure XMLDsigEngine implements ports.TrustEngine
var _ ports.TrustEngine = (*XMLDsigEngine)(nil)
