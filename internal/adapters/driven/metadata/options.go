package metadata

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/trustgrid/samlsp/internal/core/ports"
)

// Option is a functional option for configuring the cached resolver.
type Option func(*resolverOptions)

// Clock provides time functionality for testing.
type Clock interface {
	Now() time.Time
}

// RealClock uses the standard time package.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time { return time.Now() }

type resolverOptions struct {
	logger          *zap.Logger
	metricsRecorder ports.MetricsRecorder
	httpClient      *http.Client
	onRefresh       func(error)
	clock           Clock
}

// WithLogger returns an option that sets the logger for the resolver.
// When set, refresh outcomes per source are logged.
func WithLogger(logger *zap.Logger) Option {
	return func(o *resolverOptions) {
		o.logger = logger
	}
}

// WithMetricsRecorder returns an option that records refresh metrics.
func WithMetricsRecorder(recorder ports.MetricsRecorder) Option {
	return func(o *resolverOptions) {
		o.metricsRecorder = recorder
	}
}

// WithHTTPClient returns an option that sets the HTTP client used to
// fetch URL sources. Used by tests to point at httptest servers.
func WithHTTPClient(client *http.Client) Option {
	return func(o *resolverOptions) {
		o.httpClient = client
	}
}

// WithOnRefresh returns an option that sets a callback invoked after each
// background refresh. The callback receives the error (nil on success).
// Used for testing synchronization.
func WithOnRefresh(fn func(error)) Option {
	return func(o *resolverOptions) {
		o.onRefresh = fn
	}
}

// WithClock returns an option that sets a custom clock for time
// operations. Used for testing cache TTL expiration without time.Sleep.
func WithClock(clock Clock) Option {
	return func(o *resolverOptions) {
		o.clock = clock
	}
}
