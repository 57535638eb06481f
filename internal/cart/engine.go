package cart

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/hartwellgoods/storefront-backend/pkg/errors"
	"github.com/hartwellgoods/storefront-backend/pkg/logger"
	"github.com/hartwellgoods/storefront-backend/pkg/metrics"
)

// SnapshotCache persists confirmed snapshots and the session-token-to-cart-id
// mapping so an engine can warm-start without a remote roundtrip.
type SnapshotCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SnapshotKey(cartID string) string
	SessionKey(token string) string
}

// CartFetcher loads an existing cart from the commerce backend.
type CartFetcher interface {
	GetCart(ctx context.Context, cartID string) (*Snapshot, error)
}

// Engine binds one cart session: snapshot store, channel coordinator, and the
// remote dispatcher. All reads derive from Project; the engine itself keeps no
// view state.
type Engine struct {
	token string
	store *Store
	coord *Coordinator

	fetcher  CartFetcher
	cache    SnapshotCache
	cacheTTL time.Duration
	logg     *logger.Logger
}

// EngineParams configures an engine. Cache, Metrics, Events, and Fetcher may
// be nil; nil Cache disables warm-starting, nil Fetcher disables remote
// bootstrap.
type EngineParams struct {
	Token           string
	Dispatcher      Dispatcher
	Fetcher         CartFetcher
	Cache           SnapshotCache
	CacheTTL        time.Duration
	DispatchTimeout time.Duration
	Metrics         *metrics.CartMetrics
	Events          EventSink
	Logger          *logger.Logger
}

func NewEngine(params EngineParams) (*Engine, error) {
	if params.Dispatcher == nil {
		return nil, errors.New("cart dispatcher required")
	}
	e := &Engine{
		token:    params.Token,
		store:    NewStore(),
		fetcher:  params.Fetcher,
		cache:    params.Cache,
		cacheTTL: params.CacheTTL,
		logg:     params.Logger,
	}
	e.coord = NewCoordinator(CoordinatorParams{
		Store:           e.store,
		Dispatcher:      params.Dispatcher,
		DispatchTimeout: params.DispatchTimeout,
		Metrics:         params.Metrics,
		Events:          &persistingSink{engine: e, next: params.Events},
		Logger:          params.Logger,
	})
	return e, nil
}

// Bootstrap seeds the store for this session: cached snapshot first, then a
// remote fetch when only the cart id mapping survived. A session with no cart
// yet stays empty and materializes on the first confirmed add.
func (e *Engine) Bootstrap(ctx context.Context) error {
	if e.cache == nil {
		return nil
	}

	cartID, err := e.cache.Get(ctx, e.cache.SessionKey(e.token))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart session")
	}

	raw, err := e.cache.Get(ctx, e.cache.SnapshotKey(cartID))
	if err == nil {
		var snap Snapshot
		if jsonErr := json.Unmarshal([]byte(raw), &snap); jsonErr == nil {
			e.store.Replace(&snap)
			return nil
		}
		// Fall through to a remote fetch on a corrupt cache entry.
	} else if !errors.Is(err, redis.Nil) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cached snapshot")
	}

	if e.fetcher == nil {
		return nil
	}
	snap, err := e.fetcher.GetCart(ctx, cartID)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			return nil
		}
		return err
	}
	e.store.Replace(snap)
	return nil
}

// Submit hands the mutation to the coordinator and returns its channel key.
func (e *Engine) Submit(ctx context.Context, m Mutation) (string, error) {
	return e.coord.Submit(ctx, m)
}

// View projects the current user-visible cart.
func (e *Engine) View() View {
	view := Project(e.store.Get(), e.coord.Pending())
	view.InFlight = e.coord.InFlight()
	return view
}

// Snapshot exposes the last confirmed state (nil before first load).
func (e *Engine) Snapshot() *Snapshot {
	return e.store.Get()
}

// Busy reports whether a channel has unsettled work.
func (e *Engine) Busy(channelKey string) bool {
	return e.coord.Busy(channelKey)
}

// WaitSettled blocks until the channel settles and surfaces its final error.
func (e *Engine) WaitSettled(ctx context.Context, channelKey string) error {
	return e.coord.WaitSettled(ctx, channelKey)
}

// WaitIdle blocks until every channel has settled.
func (e *Engine) WaitIdle(ctx context.Context) error {
	return e.coord.WaitIdle(ctx)
}

// persistingSink writes confirmed snapshots through to the cache before
// forwarding events to the configured sink.
type persistingSink struct {
	engine *Engine
	next   EventSink
}

func (s *persistingSink) MutationSettled(cartID string, m Mutation, snap *Snapshot) {
	s.engine.persist(snap)
	if s.next != nil {
		s.next.MutationSettled(cartID, m, snap)
	}
}

func (s *persistingSink) MutationFailed(cartID string, m Mutation, err error) {
	if s.next != nil {
		s.next.MutationFailed(cartID, m, err)
	}
}

func (s *persistingSink) StaleResponseDropped(cartID string, m Mutation) {
	if s.next != nil {
		s.next.StaleResponseDropped(cartID, m)
	}
}

func (e *Engine) persist(snap *Snapshot) {
	if e.cache == nil || snap == nil || snap.ID == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		raw, err := json.Marshal(snap)
		if err != nil {
			if e.logg != nil {
				e.logg.Error(ctx, "marshal snapshot for cache", err)
			}
			return
		}
		if err := e.cache.Set(ctx, e.cache.SnapshotKey(snap.ID), string(raw), e.cacheTTL); err != nil && e.logg != nil {
			e.logg.Warn(ctx, "snapshot cache write failed")
		}
		if err := e.cache.Set(ctx, e.cache.SessionKey(e.token), snap.ID, e.cacheTTL); err != nil && e.logg != nil {
			e.logg.Warn(ctx, "cart session mapping write failed")
		}
	}()
}
