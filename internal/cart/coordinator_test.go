package cart

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/hartwellgoods/storefront-backend/pkg/errors"
)

type dispatchCall struct {
	cartID string
	m      Mutation
	reply  chan dispatchResult
}

type dispatchResult struct {
	snap *Snapshot
	err  error
}

// stubDispatcher hands each request to the test and blocks until the test
// scripts a response, which lets tests control settlement order exactly.
type stubDispatcher struct {
	calls chan *dispatchCall
}

func newStubDispatcher() *stubDispatcher {
	return &stubDispatcher{calls: make(chan *dispatchCall, 16)}
}

func (d *stubDispatcher) Dispatch(ctx context.Context, cartID string, m Mutation) (*Snapshot, error) {
	call := &dispatchCall{cartID: cartID, m: m, reply: make(chan dispatchResult)}
	d.calls <- call
	select {
	case r := <-call.reply:
		return r.snap, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *stubDispatcher) next(t *testing.T) *dispatchCall {
	t.Helper()
	select {
	case c := <-d.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a dispatch")
		return nil
	}
}

func (d *stubDispatcher) expectNone(t *testing.T) {
	t.Helper()
	select {
	case c := <-d.calls:
		t.Fatalf("unexpected dispatch of %s on %s", c.m.Kind, c.m.ChannelKey())
	case <-time.After(100 * time.Millisecond):
	}
}

func (c *dispatchCall) succeed(snap *Snapshot) {
	c.reply <- dispatchResult{snap: snap}
}

func (c *dispatchCall) fail(err error) {
	c.reply <- dispatchResult{err: err}
}

func newTestCoordinator(snap *Snapshot) (*Coordinator, *Store, *stubDispatcher) {
	store := NewStore()
	if snap != nil {
		store.Replace(snap)
	}
	d := newStubDispatcher()
	coord := NewCoordinator(CoordinatorParams{Store: store, Dispatcher: d})
	return coord, store, d
}

func waitIdle(t *testing.T, coord *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, coord.WaitIdle(ctx))
}

func TestSubmitDispatchesIdleChannelImmediately(t *testing.T) {
	t.Parallel()

	seed := snapshotWithLines(Line{ID: "L1", Quantity: 3})
	coord, store, d := newTestCoordinator(seed)

	key, err := coord.Submit(context.Background(), NewSetQuantity("L1", 4))
	require.NoError(t, err)
	assert.Equal(t, "line:L1", key)

	call := d.next(t)
	assert.Equal(t, "cart-1", call.cartID)
	assert.Equal(t, 4, call.m.Quantity)

	call.succeed(snapshotWithLines(Line{ID: "L1", Quantity: 4}))
	waitIdle(t, coord)

	assert.Equal(t, 4, store.Get().Lines[0].Quantity)
	assert.Empty(t, coord.Pending())
}

// Two rapid quantity edits on one line: the first goes out, the second waits
// and supersedes. The first response is dropped as stale, exactly one follow-up
// request carries the newest target, and the cart converges on it.
func TestLatestWinsSupersession(t *testing.T) {
	t.Parallel()

	seed := snapshotWithLines(Line{ID: "L1", Quantity: 3})
	coord, store, d := newTestCoordinator(seed)

	_, err := coord.Submit(context.Background(), NewSetQuantity("L1", 4))
	require.NoError(t, err)
	first := d.next(t)

	_, err = coord.Submit(context.Background(), NewSetQuantity("L1", 5))
	require.NoError(t, err)
	d.expectNone(t) // first request still on the wire

	// Only the newest intent is pending; the projection shows 5, not 4.
	pending := coord.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, 5, pending[0].Quantity)
	view := Project(store.Get(), pending)
	assert.Equal(t, 5, view.Lines[0].Quantity)

	first.succeed(snapshotWithLines(Line{ID: "L1", Quantity: 4}))

	second := d.next(t)
	assert.Equal(t, 5, second.m.Quantity)
	second.succeed(snapshotWithLines(Line{ID: "L1", Quantity: 5}))

	waitIdle(t, coord)
	d.expectNone(t)
	assert.Equal(t, 5, store.Get().Lines[0].Quantity, "stale response must not clobber the newer edit")
}

// A superseded request that errors is still just a stale response: the newest
// owner is dispatched and the failure never surfaces.
func TestSupersededFailureIsDiscarded(t *testing.T) {
	t.Parallel()

	seed := snapshotWithLines(Line{ID: "L1", Quantity: 3})
	coord, store, d := newTestCoordinator(seed)

	_, err := coord.Submit(context.Background(), NewSetQuantity("L1", 4))
	require.NoError(t, err)
	first := d.next(t)

	key, err := coord.Submit(context.Background(), NewSetQuantity("L1", 5))
	require.NoError(t, err)

	first.fail(pkgerrors.New(pkgerrors.CodeDependency, "backend timeout"))
	second := d.next(t)
	second.succeed(snapshotWithLines(Line{ID: "L1", Quantity: 5}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, coord.WaitSettled(ctx, key))
	assert.Equal(t, 5, store.Get().Lines[0].Quantity)
}

func TestFailureRollsBackOptimisticEffect(t *testing.T) {
	t.Parallel()

	seed := snapshotWithLines(Line{ID: "L1", Quantity: 3})
	coord, store, d := newTestCoordinator(seed)

	key, err := coord.Submit(context.Background(), NewSetQuantity("L1", 9))
	require.NoError(t, err)
	d.next(t).fail(pkgerrors.New(pkgerrors.CodeDependency, "backend unavailable"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	settleErr := coord.WaitSettled(ctx, key)
	require.Error(t, settleErr)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(settleErr).Code())

	// The snapshot was never touched, so the projection simply stops showing
	// the failed edit.
	assert.Equal(t, 3, store.Get().Lines[0].Quantity)
	assert.Empty(t, coord.Pending())

	// The settlement error is consumed by the first waiter.
	assert.NoError(t, coord.WaitSettled(ctx, key))
}

func TestChannelsDispatchConcurrently(t *testing.T) {
	t.Parallel()

	seed := snapshotWithLines(
		Line{ID: "L1", Quantity: 1},
		Line{ID: "L2", Quantity: 1},
	)
	coord, store, d := newTestCoordinator(seed)

	_, err := coord.Submit(context.Background(), NewSetQuantity("L1", 2))
	require.NoError(t, err)
	_, err = coord.Submit(context.Background(), NewSetQuantity("L2", 3))
	require.NoError(t, err)

	// Both lanes go to the wire without waiting on each other.
	first := d.next(t)
	second := d.next(t)
	assert.NotEqual(t, first.m.LineID, second.m.LineID)
	assert.ElementsMatch(t, []string{"line:L1", "line:L2"}, coord.InFlight())

	first.succeed(snapshotWithLines(Line{ID: "L1", Quantity: 2}, Line{ID: "L2", Quantity: 1}))
	second.succeed(snapshotWithLines(Line{ID: "L1", Quantity: 2}, Line{ID: "L2", Quantity: 3}))

	waitIdle(t, coord)
	assert.Equal(t, 3, store.Get().Lines[1].Quantity)
}

// Removing a line shares its lane with quantity edits for that line, so the
// removal supersedes a pending quantity change instead of racing it.
func TestRemoveSupersedesPendingQuantityEdit(t *testing.T) {
	t.Parallel()

	seed := snapshotWithLines(Line{ID: "L1", Quantity: 1})
	coord, store, d := newTestCoordinator(seed)

	_, err := coord.Submit(context.Background(), NewSetQuantity("L1", 6))
	require.NoError(t, err)
	first := d.next(t)

	key, err := coord.Submit(context.Background(), NewRemove([]string{"L1"}))
	require.NoError(t, err)
	assert.Equal(t, "line:L1", key)

	// The projection drops the line the moment the removal is submitted.
	view := Project(store.Get(), coord.Pending())
	assert.Empty(t, view.Lines)

	first.succeed(snapshotWithLines(Line{ID: "L1", Quantity: 6}))
	second := d.next(t)
	assert.Equal(t, KindRemove, second.m.Kind)
	second.succeed(snapshotWithLines())

	waitIdle(t, coord)
	assert.Empty(t, store.Get().Lines)
}

func TestSubmitRejectsInvalidMutation(t *testing.T) {
	t.Parallel()

	coord, _, d := newTestCoordinator(nil)

	_, err := coord.Submit(context.Background(), NewSetQuantity("L1", 0))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	d.expectNone(t)
}

func TestWaitIdleHonorsContext(t *testing.T) {
	t.Parallel()

	coord, _, d := newTestCoordinator(snapshotWithLines(Line{ID: "L1", Quantity: 1}))
	_, err := coord.Submit(context.Background(), NewSetQuantity("L1", 2))
	require.NoError(t, err)
	call := d.next(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, coord.WaitIdle(ctx), context.DeadlineExceeded)

	call.succeed(snapshotWithLines(Line{ID: "L1", Quantity: 2}))
	waitIdle(t, coord)
}

// Two first mutations on an empty session must not each create a cart. The
// second lane queues behind the creating request and dispatches against the
// cart id it produced, so both confirmed lines survive.
func TestFirstAddsShareOneCartCreation(t *testing.T) {
	t.Parallel()

	coord, store, d := newTestCoordinator(nil)

	_, err := coord.Submit(context.Background(), NewAdd("M1", 1, nil))
	require.NoError(t, err)
	_, err = coord.Submit(context.Background(), NewAdd("M2", 2, nil))
	require.NoError(t, err)

	creating := d.next(t)
	assert.Empty(t, creating.cartID)
	assert.Equal(t, "M1", creating.m.MerchandiseID)
	d.expectNone(t)

	// Both lanes are still pending while the second waits for the cart id.
	assert.ElementsMatch(t, []string{"add:M1", "add:M2"}, coord.InFlight())

	creating.succeed(snapshotWithLines(Line{ID: "L1", MerchandiseID: "M1", Quantity: 1}))

	queued := d.next(t)
	assert.Equal(t, "cart-1", queued.cartID)
	assert.Equal(t, "M2", queued.m.MerchandiseID)
	queued.succeed(snapshotWithLines(
		Line{ID: "L1", MerchandiseID: "M1", Quantity: 1},
		Line{ID: "L2", MerchandiseID: "M2", Quantity: 2},
	))

	waitIdle(t, coord)
	require.Len(t, store.Get().Lines, 2)
}

// When cart creation fails, the next queued lane takes over creating.
func TestFailedCreationHandsGateToQueuedLane(t *testing.T) {
	t.Parallel()

	coord, store, d := newTestCoordinator(nil)

	_, err := coord.Submit(context.Background(), NewAdd("M1", 1, nil))
	require.NoError(t, err)
	_, err = coord.Submit(context.Background(), NewAdd("M2", 2, nil))
	require.NoError(t, err)

	d.next(t).fail(pkgerrors.New(pkgerrors.CodeDependency, "backend down"))

	retry := d.next(t)
	assert.Empty(t, retry.cartID)
	assert.Equal(t, "M2", retry.m.MerchandiseID)
	retry.succeed(snapshotWithLines(Line{ID: "L2", MerchandiseID: "M2", Quantity: 2}))

	waitIdle(t, coord)
	require.Len(t, store.Get().Lines, 1)
	assert.Equal(t, "M2", store.Get().Lines[0].MerchandiseID)
}

// A failure nobody waits on must not pin its channel entry forever.
func TestUnclaimedFailureExpires(t *testing.T) {
	t.Parallel()

	store := NewStore()
	store.Replace(snapshotWithLines(Line{ID: "L1", Quantity: 1}))
	d := newStubDispatcher()
	coord := NewCoordinator(CoordinatorParams{
		Store:            store,
		Dispatcher:       d,
		FailureRetention: 20 * time.Millisecond,
	})

	key, err := coord.Submit(context.Background(), NewSetQuantity("L1", 2))
	require.NoError(t, err)
	d.next(t).fail(pkgerrors.New(pkgerrors.CodeDependency, "backend down"))
	waitIdle(t, coord)

	require.Eventually(t, func() bool {
		coord.mu.Lock()
		defer coord.mu.Unlock()
		_, ok := coord.channels[key]
		return !ok
	}, time.Second, 5*time.Millisecond)

	// A waiter arriving after expiry sees no error.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, coord.WaitSettled(ctx, key))
}
