package saml

import (
	"encoding/xml"
	"fmt"
	"time"
)

// EntitiesDescriptor is a federation aggregate of entity descriptors.
type EntitiesDescriptor struct {
	XMLName           xml.Name           `xml:"urn:oasis:names:tc:SAML:2.0:metadata EntitiesDescriptor"`
	EntityDescriptors []EntityDescriptor `xml:"urn:oasis:names:tc:SAML:2.0:metadata EntityDescriptor"`
}

// EntityDescriptor describes a single SAML entity.
type EntityDescriptor struct {
	XMLName          xml.Name          `xml:"urn:oasis:names:tc:SAML:2.0:metadata EntityDescriptor"`
	EntityID         string            `xml:"entityID,attr"`
	ValidUntil       string            `xml:"validUntil,attr,omitempty"`
	IDPSSODescriptor *IDPSSODescriptor `xml:"urn:oasis:names:tc:SAML:2.0:metadata IDPSSODescriptor"`
}

// IDPSSODescriptor describes an IdP role within an entity descriptor.
type IDPSSODescriptor struct {
	ProtocolSupportEnumeration string          `xml:"protocolSupportEnumeration,attr"`
	KeyDescriptors             []KeyDescriptor `xml:"urn:oasis:names:tc:SAML:2.0:metadata KeyDescriptor"`
	SingleSignOnServices       []Endpoint      `xml:"urn:oasis:names:tc:SAML:2.0:metadata SingleSignOnService"`
}

// KeyDescriptor binds key material to a role. An empty Use means the key
// serves both signing and encryption.
type KeyDescriptor struct {
	Use     string  `xml:"use,attr,omitempty"`
	KeyInfo KeyInfo `xml:"http://www.w3.org/2000/09/xmldsig# KeyInfo"`
}

// KeyInfo carries base64 DER certificates. Multiple certificates appear
// during rollover windows.
type KeyInfo struct {
	Certificates []string `xml:"X509Data>X509Certificate"`
}

// Endpoint is a binding/location pair.
type Endpoint struct {
	Binding  string `xml:"Binding,attr"`
	Location string `xml:"Location,attr"`
}

// ParseMetadata unmarshals a metadata document that is either a single
// EntityDescriptor or an EntitiesDescriptor aggregate, returning the flat
// list of entity descriptors.
func ParseMetadata(data []byte) ([]EntityDescriptor, error) {
	var aggregate EntitiesDescriptor
	if err := xml.Unmarshal(data, &aggregate); err == nil {
		return aggregate.EntityDescriptors, nil
	}

	var single EntityDescriptor
	if err := xml.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return []EntityDescriptor{single}, nil
}

// ParseInstant parses a SAML timestamp attribute value. Empty input
// returns the zero time without error.
func ParseInstant(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
