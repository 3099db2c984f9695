package samlsp

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/trustgrid/samlsp/internal/adapters/driven/decrypt"
	"github.com/trustgrid/samlsp/internal/adapters/driven/metadata"
	"github.com/trustgrid/samlsp/internal/adapters/driven/metrics"
	"github.com/trustgrid/samlsp/internal/adapters/driven/request"
	"github.com/trustgrid/samlsp/internal/adapters/driven/trust"
	"github.com/trustgrid/samlsp/internal/core/domain"
	"github.com/trustgrid/samlsp/internal/core/ports"
	"github.com/trustgrid/samlsp/internal/saml"
)

// Provider is the assembled service provider: configuration, key
// material, and the adapters behind each port.
type Provider struct {
	config     *Config
	key        *rsa.PrivateKey
	cert       *x509.Certificate
	resolver   ports.MetadataResolver
	controller *SessionController
	logger     *zap.Logger
	closers    []func() error
}

// Option overrides a default adapter during construction. Tests use
// these to inject fixtures.
type Option func(*providerOptions)

type providerOptions struct {
	logger    *zap.Logger
	resolver  ports.MetadataResolver
	requests  ports.RequestStore
	metrics   ports.MetricsRecorder
	trust     ports.TrustEngine
	decrypter ports.AssertionDecrypter
	key       *rsa.PrivateKey
	cert      *x509.Certificate
	secret    []byte
	now       func() time.Time
}

// WithLogger sets the logger. Defaults to zap.NewNop.
func WithLogger(logger *zap.Logger) Option {
	return func(o *providerOptions) { o.logger = logger }
}

// WithMetadataResolver overrides the metadata resolver.
func WithMetadataResolver(resolver ports.MetadataResolver) Option {
	return func(o *providerOptions) { o.resolver = resolver }
}

// WithRequestStore overrides the pending request store.
func WithRequestStore(store ports.RequestStore) Option {
	return func(o *providerOptions) { o.requests = store }
}

// WithMetricsRecorder overrides the metrics recorder.
func WithMetricsRecorder(recorder ports.MetricsRecorder) Option {
	return func(o *providerOptions) { o.metrics = recorder }
}

// WithTrustEngine overrides the signature trust engine.
func WithTrustEngine(engine ports.TrustEngine) Option {
	return func(o *providerOptions) { o.trust = engine }
}

// WithKeyPair sets the SP key material directly instead of loading it
// from the configured files.
func WithKeyPair(key *rsa.PrivateKey, cert *x509.Certificate) Option {
	return func(o *providerOptions) { o.key = key; o.cert = cert }
}

// WithTokenSecret sets the token encryption key directly.
func WithTokenSecret(secret []byte) Option {
	return func(o *providerOptions) { o.secret = secret }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(o *providerOptions) { o.now = now }
}

// New assembles a provider from configuration.
func New(cfg *Config, opts ...Option) (*Provider, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &providerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	logger := options.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := options.now
	if now == nil {
		now = time.Now
	}

	key, cert := options.key, options.cert
	if key == nil {
		loaded, err := LoadPrivateKey(cfg.PrivateKeyFile)
		if err != nil {
			return nil, domain.ConfigError("failed to load private key", err)
		}
		key = loaded
	}
	if cert == nil && cfg.CertificateFile != "" {
		loaded, err := LoadCertificate(cfg.CertificateFile)
		if err != nil {
			return nil, domain.ConfigError("failed to load certificate", err)
		}
		cert = loaded
	}

	secret := options.secret
	if secret == nil {
		loaded, err := os.ReadFile(cfg.TokenSecretFile)
		if err != nil {
			return nil, domain.ConfigError("failed to read token secret", err)
		}
		secret = loaded
	}
	codec, err := NewSessionTokenCodec(key, secret, cfg.EntityID)
	if err != nil {
		return nil, err
	}
	codec.now = now

	p := &Provider{config: cfg, key: key, cert: cert, logger: logger}

	metricsRecorder := options.metrics
	if metricsRecorder == nil {
		if cfg.Metrics {
			metricsRecorder = metrics.NewPrometheusMetricsRecorder()
		} else {
			metricsRecorder = metrics.NewNoopMetricsRecorder()
		}
	}

	resolver := options.resolver
	if resolver == nil {
		cached := metadata.NewCachedResolver(cfg.MetadataSources, cfg.MetadataTTL,
			metadata.WithLogger(logger),
			metadata.WithMetricsRecorder(metricsRecorder))
		resolver = cached
		p.closers = append(p.closers, cached.Close)
	}
	p.resolver = resolver

	requests := options.requests
	if requests == nil {
		if cfg.RedisAddr != "" {
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
			})
			requests = request.NewRedisRequestStore(client)
			p.closers = append(p.closers, client.Close)
		} else {
			requests = request.NewMemoryRequestStore()
		}
	}

	trustEngine := options.trust
	if trustEngine == nil {
		trustEngine = trust.NewXMLDsigEngine(logger)
	}

	decrypter := options.decrypter
	if decrypter == nil && cert != nil {
		decrypter = decrypt.NewKeyDecrypter(key, cert)
	}

	var entryURL *url.URL
	if cfg.EntryPoint != "" {
		entryURL, _ = url.Parse(cfg.EntryPoint)
	}

	acsURLs := make(map[string]bool, len(cfg.ACSURLs))
	for _, u := range cfg.ACSURLs {
		acsURLs[u] = true
	}

	p.controller = &SessionController{
		config:    cfg,
		entryURL:  entryURL,
		acsURLs:   acsURLs,
		acsURL:    cfg.ACSURLs[0],
		resolver:  resolver,
		trust:     trustEngine,
		decrypter: decrypter,
		requests:  requests,
		codec:     codec,
		addresses: &domain.AddressMatcher{
			AllowedRanges:  cfg.AllowedRanges,
			RequireAddress: cfg.RequireConfirmationAddress,
			FailOnMismatch: cfg.FailOnAddressMismatch,
		},
		metrics: metricsRecorder,
		logger:  logger,
		now:     now,
	}

	return p, nil
}

// Controller exposes the session lifecycle operations.
func (p *Provider) Controller() *SessionController {
	return p.controller
}

// Resolver exposes the metadata resolver, for health endpoints.
func (p *Provider) Resolver() ports.MetadataResolver {
	return p.resolver
}

// Close releases background resources.
func (p *Provider) Close() error {
	var firstErr error
	for _, closeFn := range p.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SPMetadata renders the service provider's own metadata document,
// including the requested attributes relying applications expect.
func (p *Provider) SPMetadata() ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	ed := doc.CreateElement("md:EntityDescriptor")
	ed.CreateAttr("xmlns:md", saml.NamespaceMetadata)
	ed.CreateAttr("entityID", p.config.EntityID)

	sp := ed.CreateElement("md:SPSSODescriptor")
	sp.CreateAttr("protocolSupportEnumeration", saml.NamespaceProtocol)
	sp.CreateAttr("AuthnRequestsSigned", "false")
	sp.CreateAttr("WantAssertionsSigned", "true")

	if p.cert != nil {
		for _, use := range []string{"signing", "encryption"} {
			kd := sp.CreateElement("md:KeyDescriptor")
			kd.CreateAttr("use", use)
			ki := kd.CreateElement("ds:KeyInfo")
			ki.CreateAttr("xmlns:ds", "http://www.w3.org/2000/09/xmldsig#")
			x509Data := ki.CreateElement("ds:X509Data")
			certEl := x509Data.CreateElement("ds:X509Certificate")
			certEl.SetText(base64.StdEncoding.EncodeToString(p.cert.Raw))
		}
	}

	for i, acs := range p.config.ACSURLs {
		endpoint := sp.CreateElement("md:AssertionConsumerService")
		endpoint.CreateAttr("Binding", saml.BindingHTTPPost)
		endpoint.CreateAttr("Location", acs)
		endpoint.CreateAttr("index", strconv.Itoa(i))
		if i == 0 {
			endpoint.CreateAttr("isDefault", "true")
		}
	}

	acs := sp.CreateElement("md:AttributeConsumingService")
	acs.CreateAttr("index", "0")
	name := acs.CreateElement("md:ServiceName")
	name.CreateAttr("xml:lang", "en")
	name.SetText(p.config.EntityID)
	for _, attr := range []struct{ friendly, oid string }{
		{"eduPersonPrincipalName", "urn:oid:1.3.6.1.4.1.5923.1.1.1.6"},
		{"displayName", "urn:oid:2.16.840.1.113730.3.1.241"},
		{"mail", "urn:oid:0.9.2342.19200300.100.1.3"},
	} {
		requested := acs.CreateElement("md:RequestedAttribute")
		requested.CreateAttr("FriendlyName", attr.friendly)
		requested.CreateAttr("Name", attr.oid)
		requested.CreateAttr("NameFormat", "urn:oasis:names:tc:SAML:2.0:attrname-format:uri")
	}

	doc.Indent(2)
	return doc.WriteToBytes()
}

// clientIPFromAddr parses the IP out of a RemoteAddr host:port string.
func clientIPFromAddr(remoteAddr string) net.IP {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	return net.ParseIP(host)
}
