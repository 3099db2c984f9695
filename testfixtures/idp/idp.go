// Package idp provides a minimal SAML Identity Provider fixture for
// tests: a generated key pair, metadata for it, and signed Response
// documents shaped like what a real IdP posts to an ACS endpoint.
package idp

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
)

const (
	samlpNS = "urn:oasis:names:tc:SAML:2.0:protocol"
	samlNS  = "urn:oasis:names:tc:SAML:2.0:assertion"
	mdNS    = "urn:oasis:names:tc:SAML:2.0:metadata"
)

// TestIdP is an in-memory identity provider fixture.
type TestIdP struct {
	t        testing.TB
	EntityID string
	SSOURL   string
	Key      *rsa.PrivateKey
	Cert     *x509.Certificate
}

// New creates a fixture IdP with a fresh self-signed key pair.
func New(t testing.TB) *TestIdP {
	t.Helper()
	key, cert, err := generateSelfSignedCert("Test IdP")
	if err != nil {
		t.Fatalf("generate IdP certificate: %v", err)
	}
	return &TestIdP{
		t:        t,
		EntityID: "https://idp.example.edu/saml",
		SSOURL:   "https://idp.example.edu/saml/sso",
		Key:      key,
		Cert:     cert,
	}
}

// NewKeyPair generates an unrelated key pair, for SP-side key material
// or for signing with an untrusted key in negative tests.
func NewKeyPair(t testing.TB, commonName string) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()
	key, cert, err := generateSelfSignedCert(commonName)
	if err != nil {
		t.Fatalf("generate certificate: %v", err)
	}
	return key, cert
}

// Metadata returns an EntityDescriptor document for this IdP.
func (idp *TestIdP) Metadata() []byte {
	doc := etree.NewDocument()
	ed := doc.CreateElement("md:EntityDescriptor")
	ed.CreateAttr("xmlns:md", mdNS)
	ed.CreateAttr("entityID", idp.EntityID)

	sso := ed.CreateElement("md:IDPSSODescriptor")
	sso.CreateAttr("protocolSupportEnumeration", samlpNS)

	kd := sso.CreateElement("md:KeyDescriptor")
	kd.CreateAttr("use", "signing")
	ki := kd.CreateElement("ds:KeyInfo")
	ki.CreateAttr("xmlns:ds", "http://www.w3.org/2000/09/xmldsig#")
	x509Data := ki.CreateElement("ds:X509Data")
	certEl := x509Data.CreateElement("ds:X509Certificate")
	certEl.SetText(base64.StdEncoding.EncodeToString(idp.Cert.Raw))

	endpoint := sso.CreateElement("md:SingleSignOnService")
	endpoint.CreateAttr("Binding", "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect")
	endpoint.CreateAttr("Location", idp.SSOURL)

	out, err := doc.WriteToBytes()
	if err != nil {
		idp.t.Fatalf("serialize metadata: %v", err)
	}
	return out
}

// ServeMetadata starts an httptest server publishing the IdP metadata.
// The caller owns the returned server.
func (idp *TestIdP) ServeMetadata() *httptest.Server {
	body := idp.Metadata()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/samlmetadata+xml")
		w.Write(body)
	}))
}

// ResponseOptions shape a fixture Response document.
type ResponseOptions struct {
	// InResponseTo echoes the AuthnRequest ID.
	InResponseTo string

	// Destination and Recipient are the SP's ACS URL.
	Destination string

	// Audience is the SP entity ID.
	Audience string

	// Subject is the NameID value.
	Subject string

	// Address is the SubjectConfirmationData Address; empty omits it.
	Address string

	// Status overrides the Success status code.
	Status string

	// IssueInstant defaults to now.
	IssueInstant time.Time

	// AuthnInstant defaults to IssueInstant.
	AuthnInstant time.Time

	// NotOnOrAfter defaults to IssueInstant plus five minutes, applied
	// to both the confirmation data and the conditions.
	NotOnOrAfter time.Time

	// Attributes are emitted as a single AttributeStatement, in order.
	Attributes [][2]string

	// WithEncryptedAssertion appends an EncryptedAssertion element after
	// the plaintext assertion. The ciphertext is opaque filler; tests
	// pair it with a stub decrypter.
	WithEncryptedAssertion bool

	// OmitAuthnStatement drops the AuthnStatement element.
	OmitAuthnStatement bool

	// OmitSubjectConfirmation drops the bearer confirmation entirely.
	OmitSubjectConfirmation bool

	// Unsigned skips the enveloped signature.
	Unsigned bool

	// SigningKey overrides the IdP key pair, for wrong-key tests.
	SigningKey *rsa.PrivateKey

	// SigningCert pairs with SigningKey.
	SigningCert *x509.Certificate
}

// Response builds a Response document per opts, signed with the IdP key
// unless configured otherwise.
func (idp *TestIdP) Response(opts ResponseOptions) []byte {
	idp.t.Helper()

	if opts.IssueInstant.IsZero() {
		opts.IssueInstant = time.Now().UTC()
	}
	if opts.AuthnInstant.IsZero() {
		opts.AuthnInstant = opts.IssueInstant
	}
	if opts.NotOnOrAfter.IsZero() {
		opts.NotOnOrAfter = opts.IssueInstant.Add(5 * time.Minute)
	}
	if opts.Status == "" {
		opts.Status = "urn:oasis:names:tc:SAML:2.0:status:Success"
	}

	doc := etree.NewDocument()
	resp := doc.CreateElement("samlp:Response")
	resp.CreateAttr("xmlns:samlp", samlpNS)
	resp.CreateAttr("xmlns:saml", samlNS)
	resp.CreateAttr("ID", newID())
	resp.CreateAttr("Version", "2.0")
	resp.CreateAttr("IssueInstant", opts.IssueInstant.Format(time.RFC3339))
	if opts.InResponseTo != "" {
		resp.CreateAttr("InResponseTo", opts.InResponseTo)
	}
	if opts.Destination != "" {
		resp.CreateAttr("Destination", opts.Destination)
	}

	issuer := resp.CreateElement("saml:Issuer")
	issuer.SetText(idp.EntityID)

	status := resp.CreateElement("samlp:Status")
	statusCode := status.CreateElement("samlp:StatusCode")
	statusCode.CreateAttr("Value", opts.Status)

	assertion := resp.CreateElement("saml:Assertion")
	assertion.CreateAttr("ID", newID())
	assertion.CreateAttr("Version", "2.0")
	assertion.CreateAttr("IssueInstant", opts.IssueInstant.Format(time.RFC3339))
	assertionIssuer := assertion.CreateElement("saml:Issuer")
	assertionIssuer.SetText(idp.EntityID)

	subject := assertion.CreateElement("saml:Subject")
	nameID := subject.CreateElement("saml:NameID")
	nameID.SetText(opts.Subject)
	if !opts.OmitSubjectConfirmation {
		sc := subject.CreateElement("saml:SubjectConfirmation")
		sc.CreateAttr("Method", "urn:oasis:names:tc:SAML:2.0:cm:bearer")
		scd := sc.CreateElement("saml:SubjectConfirmationData")
		if opts.InResponseTo != "" {
			scd.CreateAttr("InResponseTo", opts.InResponseTo)
		}
		if opts.Destination != "" {
			scd.CreateAttr("Recipient", opts.Destination)
		}
		scd.CreateAttr("NotOnOrAfter", opts.NotOnOrAfter.Format(time.RFC3339))
		if opts.Address != "" {
			scd.CreateAttr("Address", opts.Address)
		}
	}

	conditions := assertion.CreateElement("saml:Conditions")
	conditions.CreateAttr("NotBefore", opts.IssueInstant.Add(-time.Minute).Format(time.RFC3339))
	conditions.CreateAttr("NotOnOrAfter", opts.NotOnOrAfter.Format(time.RFC3339))
	if opts.Audience != "" {
		ar := conditions.CreateElement("saml:AudienceRestriction")
		audience := ar.CreateElement("saml:Audience")
		audience.SetText(opts.Audience)
	}

	if !opts.OmitAuthnStatement {
		authn := assertion.CreateElement("saml:AuthnStatement")
		authn.CreateAttr("AuthnInstant", opts.AuthnInstant.Format(time.RFC3339))
		ctx := authn.CreateElement("saml:AuthnContext")
		classRef := ctx.CreateElement("saml:AuthnContextClassRef")
		classRef.SetText("urn:oasis:names:tc:SAML:2.0:ac:classes:PasswordProtectedTransport")
	}

	if len(opts.Attributes) > 0 {
		stmt := assertion.CreateElement("saml:AttributeStatement")
		for _, pair := range opts.Attributes {
			attr := stmt.CreateElement("saml:Attribute")
			attr.CreateAttr("Name", pair[0])
			value := attr.CreateElement("saml:AttributeValue")
			value.SetText(pair[1])
		}
	}

	if opts.WithEncryptedAssertion {
		enc := resp.CreateElement("saml:EncryptedAssertion")
		data := enc.CreateElement("xenc:EncryptedData")
		data.CreateAttr("xmlns:xenc", "http://www.w3.org/2001/04/xmlenc#")
		cipherData := data.CreateElement("xenc:CipherData")
		cipherValue := cipherData.CreateElement("xenc:CipherValue")
		cipherValue.SetText("b3BhcXVlLWNpcGhlcnRleHQ=")
	}

	if !opts.Unsigned {
		key, cert := idp.Key, idp.Cert
		if opts.SigningKey != nil {
			key, cert = opts.SigningKey, opts.SigningCert
		}
		signed, err := signEnveloped(resp, key, cert)
		if err != nil {
			idp.t.Fatalf("sign response: %v", err)
		}
		doc.SetRoot(signed)
	}

	out, err := doc.WriteToBytes()
	if err != nil {
		idp.t.Fatalf("serialize response: %v", err)
	}
	return out
}

func signEnveloped(el *etree.Element, key *rsa.PrivateKey, cert *x509.Certificate) (*etree.Element, error) {
	keyStore := dsig.TLSCertKeyStore(tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
	})
	ctx := dsig.NewDefaultSigningContext(keyStore)
	ctx.Canonicalizer = dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")
	return ctx.SignEnveloped(el)
}

func newID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(err)
	}
	return fmt.Sprintf("_%x", buf)
}

func generateSelfSignedCert(commonName string) (*rsa.PrivateKey, *x509.Certificate, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, fmt.Errorf("generate key: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName:   commonName,
			Organization: []string{"Test"},
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("create certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, nil, fmt.Errorf("parse certificate: %w", err)
	}

	return key, cert, nil
}
