// Package resolver maps modules to upstream model configurations through a
// TTL cache over a configuration source.
package resolver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/xiaot623/gogo/medassist/internal/domain"
	"github.com/xiaot623/gogo/medassist/internal/logger"
)

const (
	// DefaultTTL is how long a loaded configuration set stays fresh.
	DefaultTTL = 5 * time.Minute
	// DefaultRefreshTimeout bounds one query against the source.
	DefaultRefreshTimeout = 5 * time.Second
)

// Source loads every stored module configuration.
type Source interface {
	ListModuleConfigs(ctx context.Context) ([]domain.ModuleConfig, error)
}

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Resolution is the outcome of a lookup.
type Resolution struct {
	Config domain.ModuleConfig
	// FromDefault is set when no enabled configuration exists for the module.
	// When RefreshErr is also set the default is returned disabled, so the
	// turn is answered by the degraded generator.
	FromDefault bool
	// RefreshErr is the most recent refresh failure. The previous cache, if
	// any, was used.
	RefreshErr error
}

// Resolver caches module configurations and refreshes them lazily. A stale
// cache is served while the reload runs in the background; lookups only
// wait on a cold or invalidated cache, and then no longer than the refresh
// timeout.
type Resolver struct {
	source         Source
	ttl            time.Duration
	refreshTimeout time.Duration
	clock          Clock
	def            domain.ModuleConfig

	group singleflight.Group

	mu          sync.RWMutex
	configs     map[string]domain.ModuleConfig
	lastRefresh time.Time
	lastErr     error
	loaded      bool
	// gen counts invalidations; applied is the generation of the cache.
	gen     uint64
	applied uint64
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTTL sets the cache lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.ttl = ttl }
}

// WithRefreshTimeout bounds a single source query.
func WithRefreshTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.refreshTimeout = d }
}

// WithClock injects the time source.
func WithClock(c Clock) Option {
	return func(r *Resolver) { r.clock = c }
}

// WithDefault sets the configuration returned for unknown modules.
func WithDefault(cfg domain.ModuleConfig) Option {
	return func(r *Resolver) { r.def = cfg }
}

// New creates a Resolver over source.
func New(source Source, opts ...Option) *Resolver {
	r := &Resolver{
		source:         source,
		ttl:            DefaultTTL,
		refreshTimeout: DefaultRefreshTimeout,
		clock:          SystemClock{},
		configs:        map[string]domain.ModuleConfig{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the configuration for moduleName. It never fails: a
// refresh error keeps the previous cache and a missing module resolves to
// the default configuration.
func (r *Resolver) Resolve(ctx context.Context, moduleName string) Resolution {
	var res Resolution
	switch stale, wait := r.needsRefresh(); {
	case wait:
		res.RefreshErr = r.waitRefresh(ctx)
	case stale:
		res.RefreshErr = r.lastError()
		r.refresh(ctx)
	}

	r.mu.RLock()
	cfg, ok := r.configs[moduleName]
	r.mu.RUnlock()

	if !ok {
		cfg = r.def
		cfg.ModuleName = moduleName
		if res.RefreshErr != nil {
			cfg.Enabled = false
		}
		res.FromDefault = true
	}
	res.Config = cfg
	return res
}

// Invalidate forces the next Resolve to wait for a reload from the source.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.gen++
	r.mu.Unlock()
}

// needsRefresh reports whether the cache is past its TTL and whether the
// caller has to wait for the reload.
func (r *Resolver) needsRefresh() (stale, wait bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.loaded || r.applied != r.gen {
		return true, true
	}
	return r.clock.Now().Sub(r.lastRefresh) > r.ttl, false
}

func (r *Resolver) lastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

func (r *Resolver) waitRefresh(ctx context.Context) error {
	select {
	case res := <-r.refresh(ctx):
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// refresh starts a reload unless one for the current generation is already
// running. Concurrent callers share one source query.
func (r *Resolver) refresh(ctx context.Context) <-chan singleflight.Result {
	r.mu.RLock()
	gen := r.gen
	r.mu.RUnlock()

	return r.group.DoChan(fmt.Sprintf("refresh-%d", gen), func() (interface{}, error) {
		// The source query must not be tied to the first caller's request.
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.refreshTimeout)
		defer cancel()

		configs, err := r.source.ListModuleConfigs(qctx)
		if err != nil {
			r.mu.Lock()
			r.lastErr = err
			r.mu.Unlock()
			logger.Warn("module config refresh failed, keeping cached values", "err", err, "cached", r.size())
			return nil, err
		}

		next := make(map[string]domain.ModuleConfig, len(configs))
		for _, cfg := range configs {
			if !cfg.Enabled {
				continue
			}
			if _, dup := next[cfg.ModuleName]; dup {
				continue
			}
			next[cfg.ModuleName] = cfg
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.loaded && gen < r.applied {
			return nil, nil
		}
		r.configs = next
		r.lastRefresh = r.clock.Now()
		r.lastErr = nil
		r.loaded = true
		r.applied = gen
		logger.Debug("module configs refreshed", "count", len(next))
		return nil, nil
	})
}

func (r *Resolver) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.configs)
}
