package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/hartwellgoods/storefront-backend/pkg/logger"
)

// EngineFactory builds an engine for a session token. The registry bootstraps
// the returned engine before handing it out.
type EngineFactory func(token string) (*Engine, error)

const (
	defaultIdleTTL       = 30 * time.Minute
	defaultSweepInterval = 5 * time.Minute
)

type registryEntry struct {
	engine   *Engine
	lastSeen time.Time
}

// Registry maps cart session tokens to live engines, creating them on demand
// and evicting sessions that have gone quiet. Eviction is safe because all
// durable state lives in the commerce backend and the snapshot cache; a
// returning session simply warm-starts a fresh engine.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
	factory EngineFactory
	idleTTL time.Duration
	logg    *logger.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

type RegistryParams struct {
	Factory       EngineFactory
	IdleTTL       time.Duration
	SweepInterval time.Duration
	Logger        *logger.Logger
}

func NewRegistry(params RegistryParams) (*Registry, error) {
	if params.Factory == nil {
		return nil, errors.New("engine factory required")
	}
	idleTTL := params.IdleTTL
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	sweep := params.SweepInterval
	if sweep <= 0 {
		sweep = defaultSweepInterval
	}

	r := &Registry{
		entries: map[string]*registryEntry{},
		factory: params.Factory,
		idleTTL: idleTTL,
		logg:    params.Logger,
		stop:    make(chan struct{}),
	}
	go r.janitor(sweep)
	return r, nil
}

// Get returns the engine for the session token, creating and bootstrapping
// one on first sight.
func (r *Registry) Get(ctx context.Context, token string) (*Engine, error) {
	r.mu.Lock()
	entry, ok := r.entries[token]
	if ok {
		entry.lastSeen = time.Now()
		r.mu.Unlock()
		return entry.engine, nil
	}
	r.mu.Unlock()

	engine, err := r.factory(token)
	if err != nil {
		return nil, err
	}
	if err := engine.Bootstrap(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another request may have raced the bootstrap; first one in wins so both
	// callers share a single coordinator.
	if existing, ok := r.entries[token]; ok {
		existing.lastSeen = time.Now()
		return existing.engine, nil
	}
	r.entries[token] = &registryEntry{engine: engine, lastSeen: time.Now()}
	return engine, nil
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sweep(time.Now())
		case <-r.stop:
			return
		}
	}
}

// sweep drops sessions idle past the TTL. Engines with unsettled channels are
// kept regardless of age so no in-flight intent is orphaned.
func (r *Registry) sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for token, entry := range r.entries {
		if now.Sub(entry.lastSeen) < r.idleTTL {
			continue
		}
		if len(entry.engine.coord.InFlight()) > 0 {
			continue
		}
		delete(r.entries, token)
	}
}

// Close stops the janitor and drains every engine, waiting for in-flight
// mutations to settle so their confirmed snapshots reach the cache.
func (r *Registry) Close(ctx context.Context) error {
	r.stopOnce.Do(func() { close(r.stop) })

	r.mu.Lock()
	engines := make([]*Engine, 0, len(r.entries))
	for _, entry := range r.entries {
		engines = append(engines, entry.engine)
	}
	r.entries = map[string]*registryEntry{}
	r.mu.Unlock()

	var errs error
	for _, engine := range engines {
		if err := engine.WaitIdle(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}
