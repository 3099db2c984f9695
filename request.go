package samlsp

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"net/url"
	"time"

	"github.com/beevik/etree"

	"github.com/trustgrid/samlsp/internal/core/domain"
	"github.com/trustgrid/samlsp/internal/saml"
)

// buildAuthnRequest constructs the AuthnRequest document for the
// HTTP-Redirect binding. The returned bytes omit the XML declaration,
// which the binding's deflate encoding does not carry.
func buildAuthnRequest(requestID, entityID, acsURL, destination string, now time.Time) ([]byte, error) {
	doc := etree.NewDocument()
	req := doc.CreateElement("samlp:AuthnRequest")
	req.CreateAttr("xmlns:samlp", saml.NamespaceProtocol)
	req.CreateAttr("xmlns:saml", saml.NamespaceAssertion)
	req.CreateAttr("ID", requestID)
	req.CreateAttr("Version", saml.Version)
	req.CreateAttr("IssueInstant", now.UTC().Format(time.RFC3339))
	req.CreateAttr("Destination", destination)
	req.CreateAttr("AssertionConsumerServiceURL", acsURL)
	req.CreateAttr("ProtocolBinding", saml.BindingHTTPPost)

	issuer := req.CreateElement("saml:Issuer")
	issuer.SetText(entityID)

	nameIDPolicy := req.CreateElement("samlp:NameIDPolicy")
	nameIDPolicy.CreateAttr("AllowCreate", "true")

	return doc.WriteToBytes()
}

// encodeRedirectPayload applies the HTTP-Redirect binding encoding: raw
// DEFLATE (no zlib wrapper) then standard base64.
func encodeRedirectPayload(request []byte) (string, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return "", err
	}
	if _, err := w.Write(request); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// BuildRedirect produces the IdP redirect URL carrying the encoded
// AuthnRequest and relay state.
func BuildRedirect(idp *domain.IdPInfo, requestID, entityID, acsURL, relayState string, now time.Time) (*url.URL, error) {
	if idp.SSORedirectURL == "" {
		return nil, domain.ConfigError("identity provider offers no HTTP-Redirect endpoint", nil)
	}

	request, err := buildAuthnRequest(requestID, entityID, acsURL, idp.SSORedirectURL, now)
	if err != nil {
		return nil, domain.ConfigError("failed to build authentication request", err)
	}

	encoded, err := encodeRedirectPayload(request)
	if err != nil {
		return nil, domain.ConfigError("failed to encode authentication request", err)
	}

	redirect, err := url.Parse(idp.SSORedirectURL)
	if err != nil {
		return nil, domain.ConfigError("identity provider SSO URL is malformed", err)
	}

	query := redirect.Query()
	query.Set("SAMLRequest", encoded)
	query.Set("RelayState", relayState)
	redirect.RawQuery = query.Encode()
	return redirect, nil
}

// decodeRedirectPayload reverses encodeRedirectPayload. Used by tests
// and diagnostics to inspect outbound requests.
func decodeRedirectPayload(encoded string) ([]byte, error) {
	compressed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
