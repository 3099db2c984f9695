//go:build unit

package saml

import (
	"testing"
)

const sampleResponse = `<samlp:Response xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion" ID="_r1" Version="2.0" IssueInstant="2026-08-28T12:00:00Z" InResponseTo="_q1" Destination="https://sp.example.edu/saml/acs">
  <saml:Issuer>https://idp.example.edu/saml</saml:Issuer>
  <samlp:Status><samlp:StatusCode Value="urn:oasis:names:tc:SAML:2.0:status:Success"/></samlp:Status>
  <saml:Assertion ID="_a1" Version="2.0" IssueInstant="2026-08-28T12:00:00Z">
    <saml:Issuer>https://idp.example.edu/saml</saml:Issuer>
    <saml:Subject>
      <saml:NameID>ada</saml:NameID>
      <saml:SubjectConfirmation Method="urn:oasis:names:tc:SAML:2.0:cm:bearer">
        <saml:SubjectConfirmationData InResponseTo="_q1" Recipient="https://sp.example.edu/saml/acs" NotOnOrAfter="2026-08-28T12:05:00Z" Address="203.0.113.7"/>
      </saml:SubjectConfirmation>
    </saml:Subject>
    <saml:Conditions NotBefore="2026-08-28T11:59:00Z" NotOnOrAfter="2026-08-28T12:05:00Z">
      <saml:AudienceRestriction><saml:Audience>https://sp.example.edu/saml</saml:Audience></saml:AudienceRestriction>
    </saml:Conditions>
    <saml:AuthnStatement AuthnInstant="2026-08-28T12:00:00Z">
      <saml:AuthnContext>
        <saml:AuthnContextClassRef>urn:oasis:names:tc:SAML:2.0:ac:classes:PasswordProtectedTransport</saml:AuthnContextClassRef>
        <saml:AuthenticatingAuthority>https://upstream.example.edu/idp</saml:AuthenticatingAuthority>
      </saml:AuthnContext>
    </saml:AuthnStatement>
    <saml:AttributeStatement>
      <saml:Attribute FriendlyName="mail" Name="urn:oid:0.9.2342.19200300.100.1.3">
        <saml:AttributeValue>ada@example.edu</saml:AttributeValue>
      </saml:Attribute>
    </saml:AttributeStatement>
  </saml:Assertion>
</samlp:Response>`

// TestParseResponse verifies the fields the validator depends on unmarshal.
func TestParseResponse(t *testing.T) {
	resp, err := ParseResponse([]byte(sampleResponse))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if resp.InResponseTo != "_q1" {
		t.Errorf("InResponseTo = %q", resp.InResponseTo)
	}
	if resp.Status == nil || resp.Status.StatusCode.Value != StatusSuccess {
		t.Error("status should parse as success")
	}
	if len(resp.Assertions) != 1 {
		t.Fatalf("expected 1 assertion, got %d", len(resp.Assertions))
	}

	a := resp.Assertions[0]
	if a.Subject.NameID.Value != "ada" {
		t.Errorf("NameID = %q", a.Subject.NameID.Value)
	}

	sc := a.Subject.SubjectConfirmations[0]
	if sc.Method != MethodBearer {
		t.Errorf("method = %q", sc.Method)
	}
	data := sc.SubjectConfirmationData
	if data.Address != "203.0.113.7" || data.InResponseTo != "_q1" || data.NotOnOrAfter != "2026-08-28T12:05:00Z" {
		t.Errorf("confirmation data = %+v", data)
	}

	if a.Conditions.AudienceRestrictions[0].Audiences[0].Value != "https://sp.example.edu/saml" {
		t.Error("audience should parse")
	}
	if got := a.AuthnStatements[0].AuthnContext.AuthenticatingAuthorities[0]; got != "https://upstream.example.edu/idp" {
		t.Errorf("authenticating authority = %q", got)
	}
	if a.AttributeStatements[0].Attributes[0].FriendlyName != "mail" {
		t.Error("attribute friendly name should parse")
	}
}

// TestParseInstant verifies empty and malformed timestamp handling.
func TestParseInstant(t *testing.T) {
	if ts, err := ParseInstant(""); err != nil || !ts.IsZero() {
		t.Errorf("empty instant should be zero without error, got %v %v", ts, err)
	}
	if _, err := ParseInstant("yesterday"); err == nil {
		t.Error("malformed instant should fail")
	}
	if _, err := ParseInstant("2026-08-28T12:00:00Z"); err != nil {
		t.Errorf("RFC3339 instant should parse, got %v", err)
	}
}
