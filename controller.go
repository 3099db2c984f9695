package samlsp

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trustgrid/samlsp/internal/core/domain"
	"github.com/trustgrid/samlsp/internal/core/ports"
	"github.com/trustgrid/samlsp/internal/saml"
)

// SessionController drives the login lifecycle: starting an attempt,
// completing it from the posted response, and verifying established
// sessions. All browser-held state travels through the token codec;
// only the single-use request IDs live server-side.
type SessionController struct {
	config    *Config
	entryURL  *url.URL
	acsURLs   map[string]bool
	acsURL    string
	resolver  ports.MetadataResolver
	trust     ports.TrustEngine
	decrypter ports.AssertionDecrypter
	requests  ports.RequestStore
	codec     *SessionTokenCodec
	addresses *domain.AddressMatcher
	metrics   ports.MetricsRecorder
	logger    *zap.Logger
	now       func() time.Time
}

// BeginLogin starts an authentication attempt. It returns the IdP
// redirect URL and the token holding the pending login details. The
// returnURI is where the user agent lands after the attempt resolves.
func (c *SessionController) BeginLogin(ctx context.Context, returnURI string) (*url.URL, string, error) {
	if err := c.checkReturnURI(returnURI); err != nil {
		return nil, "", err
	}

	idp, err := c.resolver.Resolve(ctx, c.config.IdPEntityID)
	if err != nil {
		return nil, "", err
	}

	now := c.now()
	details := &domain.LoginDetails{
		SessionID:  domain.NewSessionID(),
		RelayState: uuid.NewString(),
		ReturnURI:  returnURI,
		CreatedAt:  now,
	}

	if err := c.requests.Store(ctx, details.SessionID, now.Add(c.config.LoginTimeout)); err != nil {
		return nil, "", err
	}

	redirect, err := BuildRedirect(idp, details.SessionID, c.config.EntityID, c.acsURL, details.RelayState, now)
	if err != nil {
		return nil, "", err
	}

	token, err := c.codec.Encode(SessionState{Login: details}, now.Add(c.config.LoginTimeout))
	if err != nil {
		return nil, "", err
	}

	c.metrics.RecordLoginStarted(idp.EntityID)
	c.logger.Info("login started",
		zap.String("idp", idp.EntityID),
		zap.String("request_id", details.SessionID))

	return redirect, token, nil
}

// CompleteLogin consumes the pending attempt and validates the posted
// response. On success it returns the new session token and the return
// URI. On failure the error carries a redirect hint back to the entry
// point, and any error already marks the attempt unusable: the pending
// request ID is consumed before validation begins, so a replayed
// response fails regardless of its own validity.
func (c *SessionController) CompleteLogin(ctx context.Context, token, samlResponse, relayState string, clientIP net.IP) (string, string, error) {
	newToken, returnURI, err := c.completeLogin(ctx, token, samlResponse, relayState, clientIP)
	if err != nil {
		c.metrics.RecordAuthAttempt(c.config.IdPEntityID, false)
		failure := domain.AsAuthFailure(err, c.failureLocation(returnURI))
		if failure.Code == domain.ErrCodeProtocolViolation {
			c.logger.Error("rejected SAML response", zap.Error(failure.Cause), zap.String("reason", failure.Message))
		} else {
			c.logger.Warn("authentication failed", zap.Error(failure.Cause), zap.String("reason", failure.Message))
		}
		return "", returnURI, failure
	}
	c.metrics.RecordAuthAttempt(c.config.IdPEntityID, true)
	return newToken, returnURI, nil
}

func (c *SessionController) completeLogin(ctx context.Context, token, samlResponse, relayState string, clientIP net.IP) (string, string, error) {
	state, err := c.codec.Decode(token)
	if err != nil {
		return "", "", err
	}
	details := state.Login
	if details == nil {
		return "", "", domain.AuthError("no login attempt is pending", nil)
	}
	returnURI := details.ReturnURI

	// Consume the attempt before looking at the response. This is what
	// makes every attempt single-use.
	taken, err := c.requests.Take(ctx, details.SessionID)
	if err != nil {
		return "", returnURI, err
	}
	if !taken {
		return "", returnURI, domain.AuthError("login attempt already used or unknown", nil)
	}

	now := c.now()
	if details.Expired(now, c.config.LoginTimeout) {
		return "", returnURI, domain.AuthError("login attempt expired", nil)
	}
	if relayState != details.RelayState {
		return "", returnURI, domain.AuthError("relay state does not match the pending attempt", nil)
	}

	doc, err := base64.StdEncoding.DecodeString(samlResponse)
	if err != nil {
		return "", returnURI, domain.ProtocolError("response is not valid base64", err)
	}

	idp, err := c.resolver.Resolve(ctx, c.config.IdPEntityID)
	if err != nil {
		return "", returnURI, err
	}

	validator := &ResponseValidator{
		EntityID:                c.config.EntityID,
		ACSURLs:                 c.acsURLs,
		IdP:                     idp,
		Trust:                   c.trust,
		Decrypter:               c.decrypter,
		Addresses:               c.addresses,
		SessionTimeout:          c.config.SessionTimeout,
		ClockSkew:               c.config.ClockSkew,
		PrincipalNameAttributes: c.config.PrincipalNameAttributes,
		Logger:                  c.logger,
		Now:                     c.now,
	}

	principal, err := validator.Validate(doc, details.SessionID, clientIP)
	if err != nil {
		return "", returnURI, err
	}

	newToken, err := c.codec.Encode(SessionState{Auth: &domain.AuthDetails{Principal: principal}}, principal.Expires)
	if err != nil {
		return "", returnURI, err
	}

	c.logger.Info("login completed",
		zap.String("idp", idp.EntityID),
		zap.String("principal", principal.Name),
		zap.Time("expires", principal.Expires))

	return newToken, returnURI, nil
}

// Principal verifies an established session token and returns its
// principal. Every failure carries the entry-point redirect hint so
// callers can send the user agent back through login.
func (c *SessionController) Principal(token string) (*domain.Principal, error) {
	principal, err := c.principal(token)
	if err != nil {
		c.metrics.RecordTokenDecode(false)
		return nil, domain.AsAuthFailure(err, c.failureLocation(""))
	}
	c.metrics.RecordTokenDecode(true)
	return principal, nil
}

func (c *SessionController) principal(token string) (*domain.Principal, error) {
	state, err := c.codec.Decode(token)
	if err != nil {
		return nil, err
	}
	if state.Auth == nil || state.Auth.Principal == nil {
		return nil, domain.ErrInvalidToken
	}
	if state.Auth.Invalid {
		return nil, domain.AuthError("session has been invalidated", nil)
	}
	if err := state.Auth.Principal.Verify(c.config.EntityID, c.now()); err != nil {
		return nil, err
	}
	return state.Auth.Principal, nil
}

// Invalidate returns a replacement token whose session can never verify
// again. The flag is sticky: re-encoding an invalidated session keeps
// it invalid.
func (c *SessionController) Invalidate(token string) (string, error) {
	state, err := c.codec.Decode(token)
	if err != nil {
		return "", err
	}
	if state.Auth == nil {
		return "", domain.ErrInvalidToken
	}
	state.Auth.Invalid = true
	state.Login = nil
	return c.codec.Encode(state, c.now().Add(time.Minute))
}

// checkReturnURI accepts relative URIs and absolute URLs on an allowed
// ACS host. Anything else is an open-redirect vector.
func (c *SessionController) checkReturnURI(returnURI string) error {
	if returnURI == "" {
		return nil
	}
	u, err := url.Parse(returnURI)
	if err != nil {
		return domain.ProtocolError("return URI is malformed", err)
	}
	if !u.IsAbs() {
		if !strings.HasPrefix(returnURI, "/") || strings.HasPrefix(returnURI, "//") {
			return domain.ProtocolError("return URI must be an absolute path", fmt.Errorf("got %q", returnURI))
		}
		return nil
	}
	for acs := range c.acsURLs {
		if acsURL, err := url.Parse(acs); err == nil && acsURL.Host == u.Host && acsURL.Scheme == u.Scheme {
			return nil
		}
	}
	return domain.ProtocolError("return URI host is not served by this provider", fmt.Errorf("got %q", returnURI))
}

// failureLocation picks where a failed attempt redirects: the entry
// point if configured, otherwise the attempt's return URI.
func (c *SessionController) failureLocation(returnURI string) *url.URL {
	if c.entryURL != nil {
		return c.entryURL
	}
	if returnURI != "" {
		if u, err := url.Parse(returnURI); err == nil {
			return u
		}
	}
	return nil
}

// preParseInResponseTo reads the InResponseTo of a base64 response
// without validating anything. Used for diagnostics only; CompleteLogin
// trusts the token's session ID, never the response's claim.
func preParseInResponseTo(samlResponse string) (string, error) {
	doc, err := base64.StdEncoding.DecodeString(samlResponse)
	if err != nil {
		return "", err
	}
	resp, err := saml.ParseResponse(doc)
	if err != nil {
		return "", err
	}
	return resp.InResponseTo, nil
}
