// Package samlsp implements the service-provider side of SAML 2.0 Web
// Browser SSO: building AuthnRequests for the HTTP-Redirect binding,
// validating posted Responses through a fixed pipeline of signature,
// condition, and subject-confirmation checks, and carrying the resulting
// principal in signed, encrypted browser tokens.
//
// Provider assembles the pieces from configuration; Middleware exposes
// them over net/http. The validation pipeline and session lifecycle are
// usable directly through SessionController for hosts with their own
// HTTP layer.
package samlsp

import (
	"github.com/trustgrid/samlsp/internal/core/domain"
)

// Re-exported domain types, so callers rarely need the internal
// packages.
type (
	// Principal is a verified SAML identity.
	Principal = domain.Principal

	// Assertion is the decoded content of one validated assertion.
	Assertion = domain.Assertion

	// Attributes is the ordered first-write-wins attribute map.
	Attributes = domain.Attributes

	// LoginDetails is the state of a pending login attempt.
	LoginDetails = domain.LoginDetails

	// AuthDetails is the state of an established session.
	AuthDetails = domain.AuthDetails

	// IdPInfo is a resolved identity provider descriptor.
	IdPInfo = domain.IdPInfo

	// AppError is the structured error carried by every failure.
	AppError = domain.AppError

	// ErrorCode categorizes failures.
	ErrorCode = domain.ErrorCode
)

// Re-exported error codes.
const (
	ErrCodeConfig            = domain.ErrCodeConfig
	ErrCodeAuthFailed        = domain.ErrCodeAuthFailed
	ErrCodeProtocolViolation = domain.ErrCodeProtocolViolation
	ErrCodeTransient         = domain.ErrCodeTransient
	ErrCodeInvalidToken      = domain.ErrCodeInvalidToken
)

// ErrInvalidToken is the only error surfaced by session token decoding.
var ErrInvalidToken = domain.ErrInvalidToken

// CodeOf extracts the ErrorCode from an error chain.
func CodeOf(err error) ErrorCode { return domain.CodeOf(err) }
