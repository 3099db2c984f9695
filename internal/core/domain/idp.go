package domain

import (
	"crypto/x509"
	"time"
)

// IdPInfo is the resolved view of one identity provider, distilled from
// its metadata. Instances are immutable once published by the resolver.
type IdPInfo struct {
	// EntityID uniquely identifies the IdP.
	EntityID string

	// SSORedirectURL is the single sign-on endpoint for the
	// HTTP-Redirect binding, empty when the IdP does not offer one.
	SSORedirectURL string

	// SSOPostURL is the single sign-on endpoint for the HTTP-POST
	// binding, empty when the IdP does not offer one.
	SSOPostURL string

	// SigningCertificates are the certificates trusted for response
	// signatures. More than one appears during key rollover.
	SigningCertificates []*x509.Certificate

	// ValidUntil caps how long this descriptor may be trusted. Zero
	// means the metadata declared no expiry.
	ValidUntil time.Time

	// FetchedAt records when the descriptor was loaded from its source.
	FetchedAt time.Time

	// Source identifies the metadata source the descriptor came from.
	Source string
}

// MetadataHealth summarizes the state of the metadata resolver for
// logging and operational endpoints.
type MetadataHealth struct {
	// Sources is the number of configured metadata sources.
	Sources int

	// HealthySources is how many sources succeeded on the last refresh.
	HealthySources int

	// IdPCount is the number of usable IdPs currently cached.
	IdPCount int

	// LastRefresh is when a refresh last succeeded for any source.
	LastRefresh time.Time

	// Stale is set when every source failed on the most recent refresh
	// and the cache is serving previously fetched descriptors.
	Stale bool
}

// Usable reports whether the descriptor can drive an authentication
// attempt at the given time.
func (i *IdPInfo) Usable(now time.Time) bool {
	if i.SSORedirectURL == "" && i.SSOPostURL == "" {
		return false
	}
	if len(i.SigningCertificates) == 0 {
		return false
	}
	return i.ValidUntil.IsZero() || now.Before(i.ValidUntil)
}
