//go:build unit

package samlsp

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func newTestMiddleware(t *testing.T) (*testEnv, *Middleware, http.Handler) {
	t.Helper()
	env := newTestEnv(t)
	m := NewMiddleware(env.provider)
	m.CookieSecure = false
	handler := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := PrincipalFromContext(r.Context())
		if p == nil {
			t.Error("protected handler should see a principal")
			return
		}
		w.Write([]byte("hello " + p.Name))
	}))
	return env, m, handler
}

func cookieValue(t *testing.T, rec *httptest.ResponseRecorder, name string) string {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// TestMiddleware_ProtectedRedirectsToLogin verifies unauthenticated requests bounce to the login path.
func TestMiddleware_ProtectedRedirectsToLogin(t *testing.T) {
	_, _, handler := newTestMiddleware(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports?week=35", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	location := rec.Header().Get("Location")
	if !strings.HasPrefix(location, DefaultLoginPath+"?return=") {
		t.Errorf("location = %q", location)
	}
	if !strings.Contains(location, url.QueryEscape("/reports?week=35")) {
		t.Errorf("return URI should round-trip, got %q", location)
	}
}

// TestMiddleware_LoginRedirectsToIdP verifies the login path issues the IdP redirect and the attempt cookie.
func TestMiddleware_LoginRedirectsToIdP(t *testing.T) {
	_, _, handler := newTestMiddleware(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, DefaultLoginPath+"?return=%2Fdashboard", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if location.Host != "idp.example.edu" {
		t.Errorf("redirect host = %q", location.Host)
	}
	if location.Query().Get("SAMLRequest") == "" {
		t.Error("redirect should carry a SAMLRequest")
	}
	if cookieValue(t, rec, DefaultCookieName) == "" {
		t.Error("login should set the attempt cookie")
	}
}

// TestMiddleware_FullFlow verifies login, ACS post, and an authenticated request.
func TestMiddleware_FullFlow(t *testing.T) {
	env, _, handler := newTestMiddleware(t)

	// Start the attempt.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, DefaultLoginPath+"?return=%2Fdashboard", nil))
	loginCookie := cookieValue(t, rec, DefaultCookieName)
	details := env.loginDetails(t, loginCookie)

	// Post the IdP response to the ACS.
	form := url.Values{}
	form.Set("SAMLResponse", env.postableResponse(t, details.SessionID))
	form.Set("RelayState", details.RelayState)
	req := httptest.NewRequest(http.MethodPost, DefaultACSPath, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: loginCookie})

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusFound {
		t.Fatalf("ACS status = %d, body %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Location") != "/dashboard" {
		t.Errorf("ACS should redirect to the return URI, got %q", rec.Header().Get("Location"))
	}
	sessionCookie := cookieValue(t, rec, DefaultCookieName)
	if sessionCookie == "" || sessionCookie == loginCookie {
		t.Fatal("ACS should replace the attempt cookie with a session cookie")
	}

	// Use the session.
	req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: sessionCookie})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated request status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ada@example.edu") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

// TestMiddleware_ACSFailureRedirectsToEntry verifies a bad response bounces to the entry point.
func TestMiddleware_ACSFailureRedirectsToEntry(t *testing.T) {
	env, _, handler := newTestMiddleware(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, DefaultLoginPath, nil))
	loginCookie := cookieValue(t, rec, DefaultCookieName)
	details := env.loginDetails(t, loginCookie)

	form := url.Values{}
	form.Set("SAMLResponse", env.postableResponse(t, details.SessionID))
	form.Set("RelayState", "forged")
	req := httptest.NewRequest(http.MethodPost, DefaultACSPath, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: loginCookie})

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want redirect", rec.Code)
	}
	if rec.Header().Get("Location") != testEntry {
		t.Errorf("failure should redirect to the entry point, got %q", rec.Header().Get("Location"))
	}
}

// TestMiddleware_ACSRejectsGet verifies the ACS only accepts POST.
func TestMiddleware_ACSRejectsGet(t *testing.T) {
	_, _, handler := newTestMiddleware(t)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, DefaultACSPath, nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

// TestMiddleware_Metadata verifies the metadata endpoint serves the SP descriptor.
func TestMiddleware_Metadata(t *testing.T) {
	_, _, handler := newTestMiddleware(t)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, DefaultMetadataPath, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{testEntityID, testACSURL, "SPSSODescriptor", "eduPersonPrincipalName"} {
		if !strings.Contains(body, want) {
			t.Errorf("metadata should contain %s", want)
		}
	}
}

// TestMiddleware_Logout verifies logout clears the session.
func TestMiddleware_Logout(t *testing.T) {
	env, _, handler := newTestMiddleware(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, DefaultLoginPath, nil))
	loginCookie := cookieValue(t, rec, DefaultCookieName)
	details := env.loginDetails(t, loginCookie)

	form := url.Values{}
	form.Set("SAMLResponse", env.postableResponse(t, details.SessionID))
	form.Set("RelayState", details.RelayState)
	req := httptest.NewRequest(http.MethodPost, DefaultACSPath, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: loginCookie})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	sessionCookie := cookieValue(t, rec, DefaultCookieName)

	req = httptest.NewRequest(http.MethodGet, DefaultLogoutPath, nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: sessionCookie})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusFound {
		t.Fatalf("logout status = %d", rec.Code)
	}

	// A protected request after logout goes back through login.
	req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusFound {
		t.Errorf("post-logout request should redirect, got %d", rec.Code)
	}
}
