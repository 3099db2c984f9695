// Package saml defines the SAML 2.0 wire schema used by the service
// provider: the AuthnRequest sent over the HTTP-Redirect binding, the
// Response posted back from the IdP, and the metadata documents that
// describe the IdP. Only the elements this module consumes are modeled.
//
// See http://docs.oasis-open.org/security/saml/v2.0/saml-core-2.0-os.pdf
package saml

import (
	"encoding/xml"
	"time"

	"github.com/russellhaering/gosaml2/types"
)

// Protocol constants.
const (
	NamespaceProtocol  = "urn:oasis:names:tc:SAML:2.0:protocol"
	NamespaceAssertion = "urn:oasis:names:tc:SAML:2.0:assertion"
	NamespaceMetadata  = "urn:oasis:names:tc:SAML:2.0:metadata"

	BindingHTTPRedirect = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect"
	BindingHTTPPost     = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST"

	MethodBearer = "urn:oasis:names:tc:SAML:2.0:cm:bearer"

	StatusSuccess = "urn:oasis:names:tc:SAML:2.0:status:Success"

	Version = "2.0"
)

// EncryptedAssertion is an assertion encrypted to the SP's public key.
// The gosaml2 representation carries the XML-ENC decryption logic.
type EncryptedAssertion = types.EncryptedAssertion

// Response represents a samlp:Response document.
type Response struct {
	XMLName             xml.Name             `xml:"urn:oasis:names:tc:SAML:2.0:protocol Response"`
	ID                  string               `xml:"ID,attr"`
	InResponseTo        string               `xml:"InResponseTo,attr"`
	Destination         string               `xml:"Destination,attr"`
	IssueInstant        time.Time            `xml:"IssueInstant,attr"`
	Version             string               `xml:"Version,attr"`
	Issuer              *Issuer              `xml:"urn:oasis:names:tc:SAML:2.0:assertion Issuer"`
	Status              *Status              `xml:"urn:oasis:names:tc:SAML:2.0:protocol Status"`
	Assertions          []Assertion          `xml:"urn:oasis:names:tc:SAML:2.0:assertion Assertion"`
	EncryptedAssertions []EncryptedAssertion `xml:"urn:oasis:names:tc:SAML:2.0:assertion EncryptedAssertion"`
}

// Issuer represents the SAML object of the same name.
type Issuer struct {
	XMLName xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:assertion Issuer"`
	Format  string   `xml:"Format,attr,omitempty"`
	Value   string   `xml:",chardata"`
}

// Status represents the SAML object of the same name.
type Status struct {
	XMLName    xml.Name   `xml:"urn:oasis:names:tc:SAML:2.0:protocol Status"`
	StatusCode StatusCode `xml:"urn:oasis:names:tc:SAML:2.0:protocol StatusCode"`
}

// StatusCode represents the SAML object of the same name.
type StatusCode struct {
	Value string `xml:"Value,attr"`
}

// Assertion represents a saml:Assertion element, plaintext or decrypted.
type Assertion struct {
	XMLName             xml.Name             `xml:"urn:oasis:names:tc:SAML:2.0:assertion Assertion"`
	ID                  string               `xml:"ID,attr"`
	IssueInstant        time.Time            `xml:"IssueInstant,attr"`
	Version             string               `xml:"Version,attr"`
	Issuer              *Issuer              `xml:"urn:oasis:names:tc:SAML:2.0:assertion Issuer"`
	Subject             *Subject             `xml:"urn:oasis:names:tc:SAML:2.0:assertion Subject"`
	Conditions          *Conditions          `xml:"urn:oasis:names:tc:SAML:2.0:assertion Conditions"`
	AuthnStatements     []AuthnStatement     `xml:"urn:oasis:names:tc:SAML:2.0:assertion AuthnStatement"`
	AttributeStatements []AttributeStatement `xml:"urn:oasis:names:tc:SAML:2.0:assertion AttributeStatement"`
}

// Subject represents the SAML object of the same name.
type Subject struct {
	XMLName              xml.Name              `xml:"urn:oasis:names:tc:SAML:2.0:assertion Subject"`
	NameID               *NameID               `xml:"urn:oasis:names:tc:SAML:2.0:assertion NameID"`
	SubjectConfirmations []SubjectConfirmation `xml:"urn:oasis:names:tc:SAML:2.0:assertion SubjectConfirmation"`
}

// NameID represents the SAML object of the same name.
type NameID struct {
	Format          string `xml:"Format,attr,omitempty"`
	NameQualifier   string `xml:"NameQualifier,attr,omitempty"`
	SPNameQualifier string `xml:"SPNameQualifier,attr,omitempty"`
	Value           string `xml:",chardata"`
}

// SubjectConfirmation represents the SAML object of the same name.
type SubjectConfirmation struct {
	Method                  string                   `xml:"Method,attr"`
	SubjectConfirmationData *SubjectConfirmationData `xml:"urn:oasis:names:tc:SAML:2.0:assertion SubjectConfirmationData"`
}

// SubjectConfirmationData represents the SAML object of the same name.
// NotOnOrAfter is kept as the raw attribute text because the element and
// all of its attributes are optional.
type SubjectConfirmationData struct {
	Address      string `xml:"Address,attr,omitempty"`
	InResponseTo string `xml:"InResponseTo,attr,omitempty"`
	NotOnOrAfter string `xml:"NotOnOrAfter,attr,omitempty"`
	NotBefore    string `xml:"NotBefore,attr,omitempty"`
	Recipient    string `xml:"Recipient,attr,omitempty"`
}

// Conditions represents the SAML object of the same name.
type Conditions struct {
	NotBefore            string                `xml:"NotBefore,attr,omitempty"`
	NotOnOrAfter         string                `xml:"NotOnOrAfter,attr,omitempty"`
	AudienceRestrictions []AudienceRestriction `xml:"urn:oasis:names:tc:SAML:2.0:assertion AudienceRestriction"`
}

// AudienceRestriction represents the SAML object of the same name.
type AudienceRestriction struct {
	Audiences []Audience `xml:"urn:oasis:names:tc:SAML:2.0:assertion Audience"`
}

// Audience represents the SAML object of the same name.
type Audience struct {
	Value string `xml:",chardata"`
}

// AuthnStatement represents the SAML object of the same name.
type AuthnStatement struct {
	AuthnInstant time.Time     `xml:"AuthnInstant,attr"`
	SessionIndex string        `xml:"SessionIndex,attr,omitempty"`
	AuthnContext *AuthnContext `xml:"urn:oasis:names:tc:SAML:2.0:assertion AuthnContext"`
}

// AuthnContext represents the SAML object of the same name.
type AuthnContext struct {
	AuthnContextClassRef      string   `xml:"urn:oasis:names:tc:SAML:2.0:assertion AuthnContextClassRef"`
	AuthenticatingAuthorities []string `xml:"urn:oasis:names:tc:SAML:2.0:assertion AuthenticatingAuthority"`
}

// AttributeStatement represents the SAML object of the same name.
type AttributeStatement struct {
	Attributes []Attribute `xml:"urn:oasis:names:tc:SAML:2.0:assertion Attribute"`
}

// Attribute represents the SAML object of the same name.
type Attribute struct {
	FriendlyName string           `xml:"FriendlyName,attr,omitempty"`
	Name         string           `xml:"Name,attr"`
	NameFormat   string           `xml:"NameFormat,attr,omitempty"`
	Values       []AttributeValue `xml:"urn:oasis:names:tc:SAML:2.0:assertion AttributeValue"`
}

// AttributeValue represents the SAML object of the same name.
type AttributeValue struct {
	Type  string `xml:"http://www.w3.org/2001/XMLSchema-instance type,attr,omitempty"`
	Value string `xml:",chardata"`
}

// ParseResponse unmarshals a samlp:Response document.
func ParseResponse(data []byte) (*Response, error) {
	var resp Response
	if err := xml.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ParseAssertion unmarshals a single saml:Assertion element, as produced
// by decrypting an EncryptedAssertion.
func ParseAssertion(data []byte) (*Assertion, error) {
	var a Assertion
	if err := xml.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
