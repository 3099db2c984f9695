//go:build unit

package samlsp

import (
	"testing"
	"time"

	"github.com/trustgrid/samlsp/internal/adapters/driven/metadata"
	"github.com/trustgrid/samlsp/internal/core/domain"
	"github.com/trustgrid/samlsp/testfixtures/idp"
)

const (
	testEntityID = "https://sp.example.edu/saml"
	testACSURL   = "https://sp.example.edu/saml/acs"
	testEntry    = "https://sp.example.edu/login"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// testEnv bundles a provider wired to a fixture IdP.
type testEnv struct {
	provider *Provider
	idp      *idp.TestIdP
	clock    *testClock
}

type testClock struct{ current time.Time }

func (c *testClock) now() time.Time { return c.current }

func testConfig() *Config {
	cfg := &Config{
		EntityID:    testEntityID,
		ACSURLs:     []string{testACSURL},
		EntryPoint:  testEntry,
		IdPEntityID: "https://idp.example.edu/saml",
		// Never fetched: tests inject a static resolver.
		MetadataSources: []string{"https://idp.example.edu/metadata"},
	}
	cfg.SetDefaults()
	return cfg
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fixture := idp.New(t)
	spKey, spCert := idp.NewKeyPair(t, "Test SP")
	clock := &testClock{current: time.Now().UTC().Truncate(time.Second)}

	idps, err := metadata.Parse(fixture.Metadata(), clock.current)
	if err != nil {
		t.Fatalf("parse fixture metadata: %v", err)
	}

	provider, err := New(testConfig(),
		WithKeyPair(spKey, spCert),
		WithTokenSecret(testSecret),
		WithMetadataResolver(metadata.NewStaticResolver(idps...)),
		WithClock(clock.now))
	if err != nil {
		t.Fatalf("build provider: %v", err)
	}

	return &testEnv{provider: provider, idp: fixture, clock: clock}
}

// loginDetails decodes the pending attempt out of a login token.
func (e *testEnv) loginDetails(t *testing.T, token string) *domain.LoginDetails {
	t.Helper()
	state, err := e.provider.controller.codec.Decode(token)
	if err != nil {
		t.Fatalf("decode login token: %v", err)
	}
	if state.Login == nil {
		t.Fatal("token carries no login details")
	}
	return state.Login
}
