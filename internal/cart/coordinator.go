package cart

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hartwellgoods/storefront-backend/pkg/logger"
	"github.com/hartwellgoods/storefront-backend/pkg/metrics"
)

// Dispatcher executes one mutation against the commerce backend and returns
// the full updated snapshot. Requests cannot be aborted once sent; the
// coordinator "cancels" purely by ignoring stale responses.
type Dispatcher interface {
	Dispatch(ctx context.Context, cartID string, m Mutation) (*Snapshot, error)
}

// EventSink receives engine lifecycle notifications. Implementations must not
// block; the coordinator calls them on its settlement path.
type EventSink interface {
	MutationSettled(cartID string, m Mutation, snap *Snapshot)
	MutationFailed(cartID string, m Mutation, err error)
	StaleResponseDropped(cartID string, m Mutation)
}

const (
	defaultDispatchTimeout  = 15 * time.Second
	defaultFailureRetention = 30 * time.Second
)

// channelState tracks one serialization lane. owner is the newest intent for
// the lane; inflight is the Seq currently on the wire (0 when none). A lane
// with owner set and inflight 0 is queued behind the cart-creating request
// and dispatches as soon as that request settles.
type channelState struct {
	owner    *Mutation
	inflight uint64
	lastErr  error
	errSeq   uint64
}

// Coordinator serializes edits per channel with latest-wins supersession. At
// most one request per channel is on the wire; a superseded request keeps
// running but its response is recognized by sequence comparison and dropped.
type Coordinator struct {
	mu       sync.Mutex
	cond     *sync.Cond
	store    *Store
	dispatch Dispatcher
	channels map[string]*channelState
	seq      uint64

	// createSeq is the Seq of the request currently creating the cart, 0 when
	// none. While it is set, every other dispatch that would also see an empty
	// cart id queues behind it so the session cannot fork into two carts.
	createSeq uint64

	timeout   time.Duration
	retention time.Duration
	metrics   *metrics.CartMetrics
	events    EventSink
	logg      *logger.Logger
}

// CoordinatorParams configures a coordinator. Metrics and Events may be nil.
type CoordinatorParams struct {
	Store           *Store
	Dispatcher      Dispatcher
	DispatchTimeout time.Duration
	// FailureRetention bounds how long a failed channel keeps its settlement
	// error for a late WaitSettled caller before the entry is discarded.
	FailureRetention time.Duration
	Metrics          *metrics.CartMetrics
	Events           EventSink
	Logger           *logger.Logger
}

func NewCoordinator(params CoordinatorParams) *Coordinator {
	timeout := params.DispatchTimeout
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	retention := params.FailureRetention
	if retention <= 0 {
		retention = defaultFailureRetention
	}
	c := &Coordinator{
		store:     params.Store,
		dispatch:  params.Dispatcher,
		channels:  map[string]*channelState{},
		timeout:   timeout,
		retention: retention,
		metrics:   params.Metrics,
		events:    params.Events,
		logg:      params.Logger,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Submit registers a mutation on its channel and returns the channel key the
// UI can watch to disable controls. An idle channel dispatches immediately; a
// pending one applies the latest-wins rule: the new mutation becomes the
// channel owner and is dispatched once the in-flight request settles, while
// the superseded intent's eventual response is discarded.
func (c *Coordinator) Submit(ctx context.Context, m Mutation) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	m.Seq = c.seq
	key := m.ChannelKey()

	ch, ok := c.channels[key]
	if !ok {
		ch = &channelState{}
		c.channels[key] = ch
	}
	ch.lastErr = nil

	if ch.owner != nil {
		c.metrics.IncSuperseded(string(ch.owner.Kind))
	}
	ch.owner = &m

	if ch.inflight == 0 {
		c.dispatchLocked(key, ch)
	}
	return key, nil
}

// dispatchLocked sends the channel owner to the backend on its own goroutine.
// Caller holds c.mu. The request runs detached from the submitting HTTP
// request's context: the submit call returns immediately and the response is
// reconciled on settlement.
func (c *Coordinator) dispatchLocked(key string, ch *channelState) {
	m := *ch.owner

	var cartID string
	if snap := c.store.Get(); snap != nil {
		cartID = snap.ID
	}
	if cartID == "" {
		// Only one request may create the cart. Later lanes queue here and are
		// re-dispatched when the creating request settles, so two first adds
		// cannot each create a cart and drop the other's confirmed line.
		if c.createSeq != 0 {
			ch.inflight = 0
			return
		}
		c.createSeq = m.Seq
	}
	ch.inflight = m.Seq

	c.metrics.IncDispatched(string(m.Kind))
	started := time.Now()

	go func() {
		reqCtx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		snap, err := c.dispatch.Dispatch(reqCtx, cartID, m)
		c.settle(key, m, snap, err, started)
	}()
}

// settle reconciles one finished request. Stale responses (the channel owner
// changed since dispatch) are discarded without touching the snapshot store,
// which is what prevents a slow earlier response from clobbering a newer edit.
func (c *Coordinator) settle(key string, m Mutation, snap *Snapshot, err error, started time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.channels[key]
	if !ok {
		return
	}
	ch.inflight = 0
	if c.createSeq == m.Seq {
		c.createSeq = 0
	}
	c.metrics.ObserveSettle(string(m.Kind), time.Since(started))

	var cartID string
	if current := c.store.Get(); current != nil {
		cartID = current.ID
	}

	stale := ch.owner == nil || ch.owner.Seq != m.Seq
	switch {
	case stale:
		c.metrics.IncStaleDropped(string(m.Kind))
		if c.events != nil {
			c.events.StaleResponseDropped(cartID, m)
		}
	case err != nil:
		c.metrics.IncFailure(string(m.Kind))
		if c.events != nil {
			c.events.MutationFailed(cartID, m, err)
		}
		if c.logg != nil {
			ctx := c.logg.WithChannel(context.Background(), key)
			c.logg.Warn(ctx, "cart mutation failed; optimistic effect rolled back")
		}
		ch.owner = nil
		ch.lastErr = err
		ch.errSeq = m.Seq
		time.AfterFunc(c.retention, func() { c.expireFailure(key, m.Seq) })
	default:
		c.store.Replace(snap)
		if c.events != nil {
			c.events.MutationSettled(snap.ID, m, snap)
		}
		ch.owner = nil
	}

	if ch.owner != nil {
		c.dispatchLocked(key, ch)
	} else if ch.lastErr == nil {
		delete(c.channels, key)
	}

	// Re-dispatch lanes that queued behind the create gate. If the cart still
	// does not exist, the first lane takes the gate and the rest stay queued.
	for qKey, qCh := range c.channels {
		if qCh.owner != nil && qCh.inflight == 0 {
			c.dispatchLocked(qKey, qCh)
		}
	}
	c.cond.Broadcast()
}

// expireFailure drops a parked settlement error nobody claimed. The seq guard
// keeps a stale timer from clearing a newer failure on the same key.
func (c *Coordinator) expireFailure(key string, seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.channels[key]
	if !ok || ch.errSeq != seq || ch.lastErr == nil {
		return
	}
	ch.lastErr = nil
	if ch.owner == nil && ch.inflight == 0 {
		delete(c.channels, key)
	}
}

// Pending returns the current owner of every busy channel in submission order.
// These are exactly the mutations the projector must still apply.
func (c *Coordinator) Pending() []Mutation {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Mutation, 0, len(c.channels))
	for _, ch := range c.channels {
		if ch.owner != nil {
			out = append(out, *ch.owner)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// InFlight lists the busy channel keys, sorted for stable rendering.
func (c *Coordinator) InFlight() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.channels))
	for key, ch := range c.channels {
		if ch.owner != nil {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Busy reports whether the given channel has unsettled work.
func (c *Coordinator) Busy(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.channels[key]
	return ok && ch.owner != nil
}

// WaitSettled blocks until the given channel is idle and returns the error
// its final settlement produced, if any. The recorded error is consumed.
func (c *Coordinator) WaitSettled(ctx context.Context, key string) error {
	if err := c.waitFunc(ctx, func() bool {
		ch, ok := c.channels[key]
		return !ok || ch.owner == nil
	}); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.channels[key]
	if !ok {
		return nil
	}
	err := ch.lastErr
	ch.lastErr = nil
	if ch.owner == nil && ch.inflight == 0 {
		delete(c.channels, key)
	}
	return err
}

// WaitIdle blocks until every channel has settled.
func (c *Coordinator) WaitIdle(ctx context.Context) error {
	return c.waitFunc(ctx, func() bool {
		for _, ch := range c.channels {
			if ch.owner != nil || ch.inflight != 0 {
				return false
			}
		}
		return true
	})
}

// waitFunc waits on the coordinator condition until done (evaluated under the
// lock) holds or ctx expires.
func (c *Coordinator) waitFunc(ctx context.Context, done func() bool) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.cond.Broadcast()
		case <-stop:
		}
	}()

	c.mu.Lock()
	defer c.mu.Unlock()
	for !done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.cond.Wait()
	}
	return nil
}
