package metadata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trustgrid/samlsp/internal/core/domain"
	"github.com/trustgrid/samlsp/internal/core/ports"
)

// CachedResolver loads IdP metadata from one or more sources with
// TTL-based caching. A source is an http(s) URL or a local file path.
//
// Refresh semantics: a partial failure keeps the descriptors from the
// sources that succeeded; a total failure preserves the previous cache
// and serves it stale. Only an initial load with no usable source at all
// is fatal.
type CachedResolver struct {
	sources    []string
	ttl        time.Duration
	httpClient *http.Client
	logger     *zap.Logger
	metrics    ports.MetricsRecorder
	onRefresh  func(error)
	clock      Clock

	mu             sync.RWMutex
	idps           map[string]domain.IdPInfo
	lastFetch      time.Time
	lastSuccess    time.Time
	healthySources int
	stale          bool
	conditional    map[string]conditionalHeaders

	stopCh chan struct{}
	closed bool
}

type conditionalHeaders struct {
	etag         string
	lastModified string
}

// NewCachedResolver creates a resolver over the given sources with
// passive refresh. Metadata is fetched when Resolve or Refresh finds the
// cache older than ttl.
func NewCachedResolver(sources []string, ttl time.Duration, opts ...Option) *CachedResolver {
	options := &resolverOptions{}
	for _, opt := range opts {
		opt(options)
	}
	clock := options.clock
	if clock == nil {
		clock = RealClock{}
	}
	httpClient := options.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &CachedResolver{
		sources:     sources,
		ttl:         ttl,
		httpClient:  httpClient,
		logger:      options.logger,
		metrics:     options.metricsRecorder,
		onRefresh:   options.onRefresh,
		clock:       clock,
		idps:        make(map[string]domain.IdPInfo),
		conditional: make(map[string]conditionalHeaders),
	}
}

// NewCachedResolverWithRefresh creates a resolver that also refreshes in
// the background at the given interval. Call Close to stop the goroutine.
func NewCachedResolverWithRefresh(sources []string, interval time.Duration, opts ...Option) *CachedResolver {
	r := NewCachedResolver(sources, interval, opts...)
	r.stopCh = make(chan struct{})
	go r.refreshLoop(interval)
	return r
}

func (r *CachedResolver) refreshLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			err := r.doRefresh(context.Background(), true)
			if r.logger != nil {
				if err != nil {
					r.logger.Warn("background metadata refresh failed", zap.Error(err))
				} else {
					r.logger.Info("background metadata refresh succeeded",
						zap.Int("idp_count", r.Health().IdPCount))
				}
			}
			if r.onRefresh != nil {
				r.onRefresh(err)
			}
		case <-r.stopCh:
			return
		}
	}
}

// Close stops the background refresh goroutine if running. Idempotent.
func (r *CachedResolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopCh != nil && !r.closed {
		close(r.stopCh)
		r.closed = true
	}
	return nil
}

// Load performs the initial fetch. It fails only when no source yields
// usable metadata, leaving nothing to bootstrap the cache from.
func (r *CachedResolver) Load(ctx context.Context) error {
	if err := r.doRefresh(ctx, true); err != nil {
		return err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.idps) == 0 {
		return domain.ConfigError("metadata sources yielded no IdPs", nil)
	}
	return nil
}

// Resolve returns the descriptor for entityID, refreshing the cache
// first if the TTL has elapsed.
func (r *CachedResolver) Resolve(ctx context.Context, entityID string) (*domain.IdPInfo, error) {
	if err := r.Refresh(ctx); err != nil {
		r.mu.RLock()
		empty := len(r.idps) == 0
		r.mu.RUnlock()
		if empty {
			return nil, err
		}
		// Serve stale below.
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.idps[entityID]
	if !ok {
		return nil, domain.ConfigError("unknown identity provider", fmt.Errorf("no metadata for entity %q", entityID))
	}
	if !info.Usable(r.clock.Now()) {
		return nil, domain.TransientError("identity provider metadata expired or incomplete", fmt.Errorf("entity %q not usable", entityID))
	}
	return &info, nil
}

// Refresh fetches all sources if the cache TTL has elapsed. On total
// failure the existing cache is preserved and marked stale.
func (r *CachedResolver) Refresh(ctx context.Context) error {
	return r.doRefresh(ctx, false)
}

// Health returns the health status of the resolver.
func (r *CachedResolver) Health() domain.MetadataHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return domain.MetadataHealth{
		Sources:        len(r.sources),
		HealthySources: r.healthySources,
		IdPCount:       len(r.idps),
		LastRefresh:    r.lastSuccess,
		Stale:          r.stale,
	}
}

func (r *CachedResolver) doRefresh(ctx context.Context, force bool) error {
	r.mu.RLock()
	if !force && !r.lastFetch.IsZero() && r.clock.Now().Sub(r.lastFetch) < r.ttl {
		r.mu.RUnlock()
		return nil
	}
	r.mu.RUnlock()

	now := r.clock.Now()
	merged := make(map[string]domain.IdPInfo)
	healthy := 0
	var firstErr error

	for _, source := range r.sources {
		idps, err := r.fetchSource(ctx, source, now)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if r.logger != nil {
				r.logger.Warn("metadata source failed",
					zap.String("source", source),
					zap.Error(err))
			}
			if r.metrics != nil {
				r.metrics.RecordMetadataRefresh(source, false, 0)
			}
			continue
		}
		healthy++
		for _, idp := range idps {
			// First source to describe an entity wins.
			if _, seen := merged[idp.EntityID]; !seen {
				merged[idp.EntityID] = idp
			}
		}
		if r.metrics != nil {
			r.metrics.RecordMetadataRefresh(source, true, len(idps))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if healthy == 0 {
		// Total failure: keep the previous cache, flag it stale.
		r.healthySources = 0
		r.stale = len(r.idps) > 0
		return domain.TransientError("all metadata sources failed", firstErr)
	}

	r.idps = merged
	r.lastFetch = now
	r.lastSuccess = now
	r.healthySources = healthy
	r.stale = false
	return nil
}

// fetchSource reads one source. A 304 response reuses nothing here since
// sources are merged fresh each round; conditional headers still save
// the transfer when the server honors them by replaying cached entries.
func (r *CachedResolver) fetchSource(ctx context.Context, source string, now time.Time) ([]domain.IdPInfo, error) {
	var data []byte
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		fetched, notModified, err := r.fetchURL(ctx, source)
		if err != nil {
			return nil, err
		}
		if notModified {
			r.mu.RLock()
			cached := r.idpsFromSourceLocked(source)
			r.mu.RUnlock()
			return cached, nil
		}
		data = fetched
	} else {
		read, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("read metadata file: %w", err)
		}
		data = read
	}

	idps, err := Parse(data, now)
	if err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	for i := range idps {
		idps[i].Source = source
	}
	return idps, nil
}

func (r *CachedResolver) fetchURL(ctx context.Context, source string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "samlsp/1.0")

	r.mu.RLock()
	cond := r.conditional[source]
	r.mu.RUnlock()
	if cond.etag != "" {
		req.Header.Set("If-None-Match", cond.etag)
	}
	if cond.lastModified != "" {
		req.Header.Set("If-Modified-Since", cond.lastModified)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("fetch metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, true, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("fetch metadata: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read response: %w", err)
	}

	r.mu.Lock()
	r.conditional[source] = conditionalHeaders{
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
	}
	r.mu.Unlock()

	return data, false, nil
}

func (r *CachedResolver) idpsFromSourceLocked(source string) []domain.IdPInfo {
	var out []domain.IdPInfo
	for _, idp := range r.idps {
		if idp.Source == source {
			out = append(out, idp)
		}
	}
	return out
}

// Ensure CachedResolver implements ports.MetadataResolver
var _ ports.MetadataResolver = (*CachedResolver)(nil)
