package samlsp

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/trustgrid/samlsp/internal/core/domain"
)

// Default timing parameters.
const (
	DefaultSessionTimeout = 12 * time.Hour
	DefaultLoginTimeout   = 15 * time.Minute
	DefaultMetadataTTL    = 5 * time.Minute
	DefaultClockSkew      = 3 * time.Minute
)

// Config holds the service provider configuration.
type Config struct {
	// EntityID is the SP entity ID and the audience assertions must be
	// addressed to.
	EntityID string `yaml:"entity_id"`

	// ACSURLs is the allow-list of assertion consumer service URLs.
	// The first entry is the default used in AuthnRequests. The list is
	// fixed at construction; responses naming any other recipient fail.
	ACSURLs []string `yaml:"acs_urls"`

	// EntryPoint is where failed attempts send the user agent to start
	// over.
	EntryPoint string `yaml:"entry_point"`

	// IdPEntityID selects the identity provider from metadata.
	IdPEntityID string `yaml:"idp_entity_id"`

	// MetadataSources are http(s) URLs or local file paths.
	MetadataSources []string `yaml:"metadata_sources"`

	// MetadataTTL bounds how long resolved metadata is cached.
	MetadataTTL time.Duration `yaml:"metadata_ttl"`

	// SessionTimeout bounds principal lifetime from the authentication
	// instant, not from token issuance.
	SessionTimeout time.Duration `yaml:"session_timeout"`

	// LoginTimeout bounds how long a pending login attempt stays
	// consumable.
	LoginTimeout time.Duration `yaml:"login_timeout"`

	// ClockSkew widens every assertion validity window to tolerate
	// clock drift between the IdP and this host.
	ClockSkew time.Duration `yaml:"clock_skew"`

	// PrincipalNameAttributes are tried in order against assertion
	// attributes to name the principal; the subject NameID is the
	// fallback.
	PrincipalNameAttributes []string `yaml:"principal_name_attributes"`

	// FailOnAddressMismatch makes the confirmation address policy
	// strict. The lenient default logs mismatches and proceeds.
	FailOnAddressMismatch bool `yaml:"fail_on_address_mismatch"`

	// RequireConfirmationAddress rejects bearer confirmations that omit
	// the address.
	RequireConfirmationAddress bool `yaml:"require_confirmation_address"`

	// AllowedRanges are CIDR ranges accepted for confirmation addresses
	// regardless of the observed client address.
	AllowedRanges []string `yaml:"allowed_ranges"`

	// PrivateKeyFile is a PEM RSA key used for token signing and
	// assertion decryption.
	PrivateKeyFile string `yaml:"private_key_file"`

	// CertificateFile is the PEM certificate published in SP metadata.
	CertificateFile string `yaml:"certificate_file"`

	// TokenSecretFile holds the session token encryption key. The key
	// must be 16, 24, or 32 bytes, selecting AES-128, AES-192, or
	// AES-256 GCM.
	TokenSecretFile string `yaml:"token_secret_file"`

	// RedisAddr, when set, stores pending request IDs in Redis so any
	// instance can complete an attempt started by another. Empty keeps
	// them in process memory.
	RedisAddr string `yaml:"redis_addr"`

	// RedisPassword authenticates to Redis when required.
	RedisPassword string `yaml:"redis_password"`

	// Metrics enables the Prometheus recorder on the default registry.
	Metrics bool `yaml:"metrics"`
}

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.ConfigError("failed to read configuration", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, domain.ConfigError("failed to parse configuration", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills unset timing parameters.
func (c *Config) SetDefaults() {
	if c.MetadataTTL == 0 {
		c.MetadataTTL = DefaultMetadataTTL
	}
	if c.SessionTimeout == 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}
	if c.LoginTimeout == 0 {
		c.LoginTimeout = DefaultLoginTimeout
	}
	if c.ClockSkew == 0 {
		c.ClockSkew = DefaultClockSkew
	}
	if len(c.PrincipalNameAttributes) == 0 {
		c.PrincipalNameAttributes = []string{"eduPersonPrincipalName"}
	}
}

// Validate checks the configuration for fatal problems.
func (c *Config) Validate() error {
	if c.EntityID == "" {
		return domain.ConfigError("entity_id is required", nil)
	}
	if len(c.ACSURLs) == 0 {
		return domain.ConfigError("at least one acs_url is required", nil)
	}
	for _, raw := range c.ACSURLs {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() {
			return domain.ConfigError("acs_urls entries must be absolute URLs", fmt.Errorf("bad ACS URL %q", raw))
		}
	}
	if c.IdPEntityID == "" {
		return domain.ConfigError("idp_entity_id is required", nil)
	}
	if len(c.MetadataSources) == 0 {
		return domain.ConfigError("at least one metadata source is required", nil)
	}
	if c.EntryPoint != "" {
		if _, err := url.Parse(c.EntryPoint); err != nil {
			return domain.ConfigError("entry_point must be a URL", err)
		}
	}
	return nil
}

// LoadPrivateKey loads an RSA private key from a PEM file. PKCS8 is
// tried first, then PKCS1.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return rsaKey, nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("key is not RSA")
	}

	return rsaKey, nil
}

// LoadCertificate loads an X.509 certificate from a PEM file.
func LoadCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read certificate file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	return cert, nil
}
