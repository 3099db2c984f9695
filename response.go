package samlsp

import (
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/trustgrid/samlsp/internal/core/domain"
	"github.com/trustgrid/samlsp/internal/core/ports"
	"github.com/trustgrid/samlsp/internal/saml"
)

// ResponseValidator checks a posted Response document in fixed stages:
// envelope, signature, decryption, assertion conditions, subject
// confirmation, principal extraction. A failure at any stage stops the
// pipeline; no principal exists until every stage has passed.
type ResponseValidator struct {
	// EntityID is the SP entity ID: the expected audience and the realm
	// stamped on extracted principals.
	EntityID string

	// ACSURLs is the recipient allow-list.
	ACSURLs map[string]bool

	// IdP is the resolved descriptor of the issuer being validated
	// against.
	IdP *domain.IdPInfo

	// Trust verifies the response signature.
	Trust ports.TrustEngine

	// Decrypter unwraps encrypted assertions. Nil rejects responses
	// carrying them.
	Decrypter ports.AssertionDecrypter

	// Addresses applies the confirmation address policy.
	Addresses *domain.AddressMatcher

	// SessionTimeout derives principal expiry from the authentication
	// instant.
	SessionTimeout time.Duration

	// ClockSkew widens NotBefore/NotOnOrAfter windows to tolerate clock
	// drift between the IdP and this host.
	ClockSkew time.Duration

	// PrincipalNameAttributes are tried in order to name the principal;
	// the subject NameID is the fallback.
	PrincipalNameAttributes []string

	Logger *zap.Logger

	// Now is injected for tests. Defaults to time.Now.
	Now func() time.Time
}

func (v *ResponseValidator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Validate runs the full pipeline and returns the extracted principal.
func (v *ResponseValidator) Validate(doc []byte, expectedRequestID string, clientIP net.IP) (*domain.Principal, error) {
	if err := v.checkEnvelope(doc, expectedRequestID); err != nil {
		return nil, err
	}

	validated, err := v.Trust.Validate(doc, v.IdP.SigningCertificates)
	if err != nil {
		return nil, err
	}

	resp, err := saml.ParseResponse(validated)
	if err != nil {
		return nil, domain.ProtocolError("validated response failed to parse", err)
	}

	assertions, err := v.collectAssertions(resp)
	if err != nil {
		return nil, err
	}

	if err := v.validateAssertions(assertions); err != nil {
		return nil, err
	}

	if err := v.confirmSubject(assertions, expectedRequestID, clientIP); err != nil {
		return nil, err
	}

	return v.extractPrincipal(resp, assertions)
}

// checkEnvelope verifies the outer response fields before any signature
// work. The unvalidated parse is used only for these checks; everything
// after the signature stage re-parses the validated bytes.
func (v *ResponseValidator) checkEnvelope(doc []byte, expectedRequestID string) error {
	resp, err := saml.ParseResponse(doc)
	if err != nil {
		return domain.ProtocolError("response is not a valid SAML document", err)
	}

	if resp.Version != saml.Version {
		return domain.ProtocolError("unsupported SAML version", fmt.Errorf("version %q", resp.Version))
	}
	if resp.Issuer == nil || resp.Issuer.Value != v.IdP.EntityID {
		return domain.ProtocolError("response issuer does not match identity provider", nil)
	}
	if resp.InResponseTo != expectedRequestID {
		return domain.ProtocolError("response does not answer the pending request", fmt.Errorf("InResponseTo %q", resp.InResponseTo))
	}
	if resp.Destination != "" && !v.ACSURLs[resp.Destination] {
		return domain.ProtocolError("response destination is not an allowed ACS endpoint", fmt.Errorf("destination %q", resp.Destination))
	}
	if resp.Status == nil || resp.Status.StatusCode.Value != saml.StatusSuccess {
		code := ""
		if resp.Status != nil {
			code = resp.Status.StatusCode.Value
		}
		return domain.AuthError("authentication was not successful at the identity provider", fmt.Errorf("status %q", code))
	}
	return nil
}

// collectAssertions gathers plaintext assertions and decrypts encrypted
// ones. A response with no assertion at all is malformed.
func (v *ResponseValidator) collectAssertions(resp *saml.Response) ([]saml.Assertion, error) {
	assertions := make([]saml.Assertion, 0, len(resp.Assertions)+len(resp.EncryptedAssertions))
	assertions = append(assertions, resp.Assertions...)

	for i := range resp.EncryptedAssertions {
		if v.Decrypter == nil {
			return nil, domain.ConfigError("response carries encrypted assertions but no decryption key is configured", nil)
		}
		plaintext, err := v.Decrypter.Decrypt(&resp.EncryptedAssertions[i])
		if err != nil {
			return nil, err
		}
		assertion, err := saml.ParseAssertion(plaintext)
		if err != nil {
			return nil, domain.ProtocolError("decrypted assertion failed to parse", err)
		}
		assertions = append(assertions, *assertion)
	}

	if len(assertions) == 0 {
		return nil, domain.ProtocolError("response carries no assertions", nil)
	}
	return assertions, nil
}

// validateAssertions checks issuer, condition windows, and audience
// restrictions on every assertion.
func (v *ResponseValidator) validateAssertions(assertions []saml.Assertion) error {
	now := v.now()
	for i := range assertions {
		a := &assertions[i]
		if a.Issuer == nil || a.Issuer.Value != v.IdP.EntityID {
			return domain.ProtocolError("assertion issuer does not match identity provider", nil)
		}
		if a.Conditions == nil {
			continue
		}

		notBefore, err := saml.ParseInstant(a.Conditions.NotBefore)
		if err != nil {
			return domain.ProtocolError("assertion NotBefore is malformed", err)
		}
		if !notBefore.IsZero() && now.Add(v.ClockSkew).Before(notBefore) {
			return domain.AuthError("assertion is not yet valid", fmt.Errorf("NotBefore %s", a.Conditions.NotBefore))
		}

		notOnOrAfter, err := saml.ParseInstant(a.Conditions.NotOnOrAfter)
		if err != nil {
			return domain.ProtocolError("assertion NotOnOrAfter is malformed", err)
		}
		if !notOnOrAfter.IsZero() && !now.Add(-v.ClockSkew).Before(notOnOrAfter) {
			return domain.AuthError("assertion has expired", fmt.Errorf("NotOnOrAfter %s", a.Conditions.NotOnOrAfter))
		}

		for _, restriction := range a.Conditions.AudienceRestrictions {
			if !audienceContains(restriction, v.EntityID) {
				return domain.AuthError("assertion is not addressed to this service provider", nil)
			}
		}
	}
	return nil
}

func audienceContains(restriction saml.AudienceRestriction, entityID string) bool {
	for _, audience := range restriction.Audiences {
		if audience.Value == entityID {
			return true
		}
	}
	return false
}

// confirmSubject requires at least one bearer subject confirmation whose
// data binds the assertion to the pending request, an allowed recipient,
// an unexpired window, and an acceptable address.
func (v *ResponseValidator) confirmSubject(assertions []saml.Assertion, expectedRequestID string, clientIP net.IP) error {
	now := v.now()
	var lastErr error

	for i := range assertions {
		subject := assertions[i].Subject
		if subject == nil {
			continue
		}
		for _, sc := range subject.SubjectConfirmations {
			if sc.Method != saml.MethodBearer {
				continue
			}
			if err := v.checkConfirmationData(sc.SubjectConfirmationData, expectedRequestID, clientIP, now); err != nil {
				lastErr = err
				continue
			}
			return nil
		}
	}

	if lastErr != nil {
		return lastErr
	}
	return domain.ProtocolError("no bearer subject confirmation present", nil)
}

func (v *ResponseValidator) checkConfirmationData(data *saml.SubjectConfirmationData, expectedRequestID string, clientIP net.IP, now time.Time) error {
	if data == nil {
		return domain.ProtocolError("bearer confirmation carries no data", nil)
	}
	if data.InResponseTo != "" && data.InResponseTo != expectedRequestID {
		return domain.ProtocolError("bearer confirmation does not answer the pending request", nil)
	}
	if data.Recipient != "" && !v.ACSURLs[data.Recipient] {
		return domain.ProtocolError("bearer confirmation recipient is not an allowed ACS endpoint", fmt.Errorf("recipient %q", data.Recipient))
	}

	notOnOrAfter, err := saml.ParseInstant(data.NotOnOrAfter)
	if err != nil {
		return domain.ProtocolError("bearer confirmation NotOnOrAfter is malformed", err)
	}
	if !notOnOrAfter.IsZero() && !now.Add(-v.ClockSkew).Before(notOnOrAfter) {
		return domain.AuthError("bearer confirmation has expired", nil)
	}

	result, err := v.Addresses.Match(data.Address, clientIP)
	if err != nil {
		return err
	}
	if result != domain.MatchAccepted && v.Logger != nil {
		v.Logger.Warn("accepting subject confirmation despite address check",
			zap.String("result", result.String()),
			zap.String("asserted_address", data.Address),
			zap.String("client_address", clientIP.String()))
	}
	return nil
}

// extractPrincipal merges assertion content into a principal. Attribute
// names collide across assertions on first-write-wins terms; a
// conflicting repeat value fails the whole response.
func (v *ResponseValidator) extractPrincipal(resp *saml.Response, assertions []saml.Assertion) (*domain.Principal, error) {
	attributes := domain.NewAttributes()
	var subjectName string
	var decoded []domain.Assertion
	var authnInstant time.Time
	var authority string

	for i := range assertions {
		a := &assertions[i]

		if subjectName == "" && a.Subject != nil && a.Subject.NameID != nil {
			subjectName = a.Subject.NameID.Value
		}

		record := domain.Assertion{Attributes: domain.NewAttributes()}
		if a.Conditions != nil {
			record.NotBefore, _ = saml.ParseInstant(a.Conditions.NotBefore)
			record.NotOnOrAfter, _ = saml.ParseInstant(a.Conditions.NotOnOrAfter)
		}

		for _, stmt := range a.AuthnStatements {
			if authnInstant.IsZero() {
				authnInstant = stmt.AuthnInstant
			}
			record.AuthnInstant = stmt.AuthnInstant
			if stmt.AuthnContext != nil && len(stmt.AuthnContext.AuthenticatingAuthorities) > 0 {
				record.AuthnAuthority = stmt.AuthnContext.AuthenticatingAuthorities[0]
				if authority == "" {
					authority = record.AuthnAuthority
				}
			}
		}

		for _, stmt := range a.AttributeStatements {
			for _, attr := range stmt.Attributes {
				if len(attr.Values) == 0 {
					continue
				}
				name := attr.FriendlyName
				if name == "" {
					name = attr.Name
				}
				value := attr.Values[0].Value
				if err := attributes.Set(name, value); err != nil {
					return nil, domain.ProtocolError("assertions disagree on an attribute value", err)
				}
				if err := record.Attributes.Set(name, value); err != nil {
					return nil, domain.ProtocolError("assertions disagree on an attribute value", err)
				}
			}
		}

		decoded = append(decoded, record)
	}

	if authnInstant.IsZero() {
		return nil, domain.AuthError("response carries no authentication statement", nil)
	}

	name := subjectName
	for _, attrName := range v.PrincipalNameAttributes {
		if value, ok := attributes.Get(attrName); ok {
			name = value
			break
		}
	}
	if name == "" {
		return nil, domain.AuthError("response does not identify a principal", nil)
	}

	return &domain.Principal{
		Realm:          v.EntityID,
		Name:           name,
		Issuer:         v.IdP.EntityID,
		IssueInstant:   resp.IssueInstant,
		AuthnInstant:   authnInstant,
		AuthnAuthority: authority,
		Expires:        authnInstant.Add(v.SessionTimeout),
		Assertions:     decoded,
	}, nil
}
