// Package metadata resolves IdP descriptors from federation metadata
// documents fetched over HTTP or read from local files, with TTL-based
// caching and stale serving on refresh failure.
package metadata

import (
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/trustgrid/samlsp/internal/core/domain"
	"github.com/trustgrid/samlsp/internal/saml"
)

// Parse converts a metadata document into resolved IdP descriptors.
// Entities without an IdP role are skipped. An entity whose certificates
// are all unparseable is skipped rather than failing the whole document.
func Parse(data []byte, fetchedAt time.Time) ([]domain.IdPInfo, error) {
	entities, err := saml.ParseMetadata(data)
	if err != nil {
		return nil, err
	}

	var idps []domain.IdPInfo
	for _, entity := range entities {
		if entity.IDPSSODescriptor == nil {
			continue
		}

		validUntil, err := saml.ParseInstant(entity.ValidUntil)
		if err != nil {
			return nil, fmt.Errorf("entity %s: bad validUntil: %w", entity.EntityID, err)
		}

		info := domain.IdPInfo{
			EntityID:   entity.EntityID,
			ValidUntil: validUntil,
			FetchedAt:  fetchedAt,
		}

		for _, sso := range entity.IDPSSODescriptor.SingleSignOnServices {
			switch sso.Binding {
			case saml.BindingHTTPRedirect:
				info.SSORedirectURL = sso.Location
			case saml.BindingHTTPPost:
				info.SSOPostURL = sso.Location
			}
		}

		for _, kd := range entity.IDPSSODescriptor.KeyDescriptors {
			// Encryption-only keys never verify signatures.
			if kd.Use == "encryption" {
				continue
			}
			for _, raw := range kd.KeyInfo.Certificates {
				cert, err := parseCertificate(raw)
				if err != nil {
					continue
				}
				info.SigningCertificates = append(info.SigningCertificates, cert)
			}
		}

		idps = append(idps, info)
	}

	return idps, nil
}

// parseCertificate decodes a base64 DER certificate from metadata.
// Whitespace inside the element is common and stripped first.
func parseCertificate(raw string) (*x509.Certificate, error) {
	compact := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
			return -1
		}
		return r
	}, raw)

	der, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil, fmt.Errorf("decode certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	return cert, nil
}
