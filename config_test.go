//go:build unit

package samlsp

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestConfig_SetDefaults verifies timing defaults.
func TestConfig_SetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	if cfg.SessionTimeout != DefaultSessionTimeout {
		t.Errorf("session timeout = %v", cfg.SessionTimeout)
	}
	if cfg.LoginTimeout != DefaultLoginTimeout {
		t.Errorf("login timeout = %v", cfg.LoginTimeout)
	}
	if cfg.MetadataTTL != DefaultMetadataTTL {
		t.Errorf("metadata TTL = %v", cfg.MetadataTTL)
	}
	if cfg.ClockSkew != DefaultClockSkew {
		t.Errorf("clock skew = %v", cfg.ClockSkew)
	}
	if len(cfg.PrincipalNameAttributes) != 1 || cfg.PrincipalNameAttributes[0] != "eduPersonPrincipalName" {
		t.Errorf("principal name attributes = %v", cfg.PrincipalNameAttributes)
	}
}

// TestConfig_Validate verifies required fields are enforced.
func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			EntityID:        testEntityID,
			ACSURLs:         []string{testACSURL},
			IdPEntityID:     "https://idp.example.edu/saml",
			MetadataSources: []string{"https://idp.example.edu/metadata"},
		}
	}

	if err := valid().Validate(); err != nil {
		t.Errorf("valid config should pass, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing entity ID", func(c *Config) { c.EntityID = "" }},
		{"missing ACS URLs", func(c *Config) { c.ACSURLs = nil }},
		{"relative ACS URL", func(c *Config) { c.ACSURLs = []string{"/saml/acs"} }},
		{"missing IdP entity ID", func(c *Config) { c.IdPEntityID = "" }},
		{"missing metadata sources", func(c *Config) { c.MetadataSources = nil }},
	}
	for _, tc := range cases {
		cfg := valid()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s should fail validation", tc.name)
		}
	}
}

// TestLoadConfig verifies YAML loading applies defaults and validation.
func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
entity_id: https://sp.example.edu/saml
acs_urls:
  - https://sp.example.edu/saml/acs
entry_point: https://sp.example.edu/login
idp_entity_id: https://idp.example.edu/saml
metadata_sources:
  - https://idp.example.edu/metadata
session_timeout: 8h
fail_on_address_mismatch: true
allowed_ranges:
  - 198.51.100.0/24
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.SessionTimeout != 8*time.Hour {
		t.Errorf("session timeout = %v", cfg.SessionTimeout)
	}
	if cfg.LoginTimeout != DefaultLoginTimeout {
		t.Errorf("login timeout should default, got %v", cfg.LoginTimeout)
	}
	if !cfg.FailOnAddressMismatch {
		t.Error("fail_on_address_mismatch should parse")
	}
	if len(cfg.AllowedRanges) != 1 {
		t.Errorf("allowed ranges = %v", cfg.AllowedRanges)
	}
}

// TestLoadConfig_Invalid verifies broken files and configs fail.
func TestLoadConfig_Invalid(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("entity_id: only-this"), 0o600)
	if _, err := LoadConfig(path); err == nil {
		t.Error("incomplete config should fail")
	}
}
