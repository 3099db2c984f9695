package samlsp

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/trustgrid/samlsp/internal/core/domain"
)

// Default HTTP surface.
const (
	DefaultCookieName   = "samlsp_session"
	DefaultLoginPath    = "/saml/login"
	DefaultACSPath      = "/saml/acs"
	DefaultMetadataPath = "/saml/metadata"
	DefaultLogoutPath   = "/saml/logout"
)

type contextKey struct{}

// principalKey carries the verified principal in the request context.
var principalKey contextKey

// PrincipalFromContext returns the principal attached by the middleware,
// or nil outside a protected request.
func PrincipalFromContext(ctx context.Context) *domain.Principal {
	p, _ := ctx.Value(principalKey).(*domain.Principal)
	return p
}

// Middleware serves the SAML endpoints and gates every other request on
// a verified session.
type Middleware struct {
	provider *Provider

	// CookieName overrides the session cookie name.
	CookieName string

	// CookieSecure marks the session cookie Secure. On by default; only
	// disable for plain-HTTP development.
	CookieSecure bool
}

// NewMiddleware wraps a provider with the default HTTP surface.
func NewMiddleware(provider *Provider) *Middleware {
	return &Middleware{
		provider:     provider,
		CookieName:   DefaultCookieName,
		CookieSecure: true,
	}
}

// Wrap protects next: unauthenticated requests are redirected through
// the IdP, authenticated ones proceed with the principal in context.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == DefaultLoginPath:
			m.handleLogin(w, r)
		case r.URL.Path == DefaultACSPath:
			m.handleACS(w, r)
		case r.URL.Path == DefaultMetadataPath:
			m.handleMetadata(w, r)
		case r.URL.Path == DefaultLogoutPath:
			m.handleLogout(w, r)
		default:
			m.requirePrincipal(next, w, r)
		}
	})
}

func (m *Middleware) handleLogin(w http.ResponseWriter, r *http.Request) {
	returnURI := r.URL.Query().Get("return")
	redirect, token, err := m.provider.Controller().BeginLogin(r.Context(), returnURI)
	if err != nil {
		m.fail(w, r, err)
		return
	}
	m.setCookie(w, token, 0)
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func (m *Middleware) handleACS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		m.fail(w, r, domain.ProtocolError("malformed form body", err))
		return
	}

	samlResponse := r.PostFormValue("SAMLResponse")
	relayState := r.PostFormValue("RelayState")
	if samlResponse == "" {
		m.fail(w, r, domain.ProtocolError("missing SAMLResponse", nil))
		return
	}
	if id, err := preParseInResponseTo(samlResponse); err == nil {
		m.provider.logger.Debug("received SAML response", zap.String("in_response_to", id))
	}

	cookie, err := r.Cookie(m.cookieName())
	if err != nil {
		m.fail(w, r, domain.AuthError("no login attempt is pending", err))
		return
	}

	token, returnURI, err := m.provider.Controller().CompleteLogin(
		r.Context(), cookie.Value, samlResponse, relayState, clientIPFromAddr(r.RemoteAddr))
	if err != nil {
		m.clearCookie(w)
		m.fail(w, r, err)
		return
	}

	m.setCookie(w, token, 0)
	if returnURI == "" {
		returnURI = "/"
	}
	http.Redirect(w, r, returnURI, http.StatusFound)
}

func (m *Middleware) handleMetadata(w http.ResponseWriter, r *http.Request) {
	metadata, err := m.provider.SPMetadata()
	if err != nil {
		http.Error(w, "failed to render metadata", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/samlmetadata+xml")
	w.Write(metadata)
}

func (m *Middleware) handleLogout(w http.ResponseWriter, r *http.Request) {
	m.clearCookie(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (m *Middleware) requirePrincipal(next http.Handler, w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(m.cookieName())
	if err != nil {
		m.redirectToLogin(w, r)
		return
	}

	principal, err := m.provider.Controller().Principal(cookie.Value)
	if err != nil {
		m.clearCookie(w)
		m.redirectToLogin(w, r)
		return
	}

	r = r.WithContext(context.WithValue(r.Context(), principalKey, principal))
	r.Header.Set("Remote-User", principal.Name)
	next.ServeHTTP(w, r)
}

func (m *Middleware) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	returnURI := r.URL.RequestURI()
	if strings.HasPrefix(returnURI, DefaultLoginPath) {
		returnURI = "/"
	}
	login := DefaultLoginPath + "?return=" + url.QueryEscape(returnURI)
	http.Redirect(w, r, login, http.StatusFound)
}

// fail routes an error to its redirect hint when one exists, otherwise
// renders the status for its code.
func (m *Middleware) fail(w http.ResponseWriter, r *http.Request, err error) {
	if location := domain.LocationOf(err); location != nil {
		http.Redirect(w, r, location.String(), http.StatusFound)
		return
	}
	code := domain.CodeOf(err)
	if code == "" {
		code = domain.ErrCodeConfig
	}
	http.Error(w, err.Error(), code.HTTPStatus())
}

func (m *Middleware) cookieName() string {
	if m.CookieName != "" {
		return m.CookieName
	}
	return DefaultCookieName
}

func (m *Middleware) setCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName(),
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Middleware) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
