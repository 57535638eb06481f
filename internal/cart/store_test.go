package cart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreStartsEmpty(t *testing.T) {
	t.Parallel()
	assert.Nil(t, NewStore().Get())
}

func TestStoreReplaceSignalsSubscribers(t *testing.T) {
	t.Parallel()

	store := NewStore()
	sub := store.Subscribe()

	store.Replace(snapshotWithLines(Line{ID: "L1", Quantity: 1}))
	select {
	case <-sub:
	case <-time.After(time.Second):
		t.Fatal("subscriber was not signaled")
	}
	require.NotNil(t, store.Get())
	assert.Equal(t, "cart-1", store.Get().ID)
}

func TestStoreSignalCoalesces(t *testing.T) {
	t.Parallel()

	store := NewStore()
	sub := store.Subscribe()

	// A slow subscriber must never block Replace; back-to-back swaps collapse
	// into a single pending signal.
	store.Replace(snapshotWithLines(Line{ID: "L1", Quantity: 1}))
	store.Replace(snapshotWithLines(Line{ID: "L1", Quantity: 2}))
	store.Replace(snapshotWithLines(Line{ID: "L1", Quantity: 3}))

	<-sub
	select {
	case <-sub:
		t.Fatal("signals should coalesce to at most one pending")
	default:
	}
	assert.Equal(t, 3, store.Get().Lines[0].Quantity)
}
