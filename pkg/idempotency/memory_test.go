package idempotency

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*MemoryStore, *time.Time) {
	t.Helper()
	store := NewMemoryStore(5*time.Minute, time.Minute)
	t.Cleanup(store.Close)

	current := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }
	return store, &current
}

func TestMemoryStoreReplayAfterComplete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	res, err := store.Begin(ctx, "agency-1:key-1")
	require.NoError(t, err)
	require.Equal(t, StateStarted, res.State)

	require.NoError(t, store.Complete(ctx, "agency-1:key-1", Response{
		Status:      http.StatusCreated,
		ContentType: "application/json",
		Body:        []byte(`{"id":"trip-1"}`),
	}))

	res, err = store.Begin(ctx, "agency-1:key-1")
	require.NoError(t, err)
	require.Equal(t, StateReplay, res.State)
	require.NotNil(t, res.Response)
	require.Equal(t, http.StatusCreated, res.Response.Status)
	require.JSONEq(t, `{"id":"trip-1"}`, string(res.Response.Body))
}

func TestMemoryStoreInFlightConflict(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first, err := store.Begin(ctx, "agency-1:key-1")
	require.NoError(t, err)
	require.Equal(t, StateStarted, first.State)

	second, err := store.Begin(ctx, "agency-1:key-1")
	require.NoError(t, err)
	require.Equal(t, StateInFlight, second.State)
}

func TestMemoryStoreAbortFreesKey(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	res, err := store.Begin(ctx, "agency-1:key-1")
	require.NoError(t, err)
	require.Equal(t, StateStarted, res.State)

	require.NoError(t, store.Abort(ctx, "agency-1:key-1"))

	res, err = store.Begin(ctx, "agency-1:key-1")
	require.NoError(t, err)
	require.Equal(t, StateStarted, res.State)
}

func TestMemoryStoreTTLBoundary(t *testing.T) {
	store, current := newTestStore(t)
	ctx := context.Background()

	_, err := store.Begin(ctx, "agency-1:key-1")
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, "agency-1:key-1", Response{Status: http.StatusOK, Body: []byte(`{}`)}))

	*current = current.Add(4 * time.Minute)
	res, err := store.Begin(ctx, "agency-1:key-1")
	require.NoError(t, err)
	require.Equal(t, StateReplay, res.State)

	// Past the TTL the entry is unreachable even before a sweep runs: the
	// key is claimed fresh.
	*current = current.Add(2 * time.Minute)
	res, err = store.Begin(ctx, "agency-1:key-1")
	require.NoError(t, err)
	require.Equal(t, StateStarted, res.State)
}

func TestMemoryStoreSweepRemovesExpired(t *testing.T) {
	store, current := newTestStore(t)
	ctx := context.Background()

	_, err := store.Begin(ctx, "agency-1:old")
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, "agency-1:old", Response{Status: http.StatusOK}))

	*current = current.Add(3 * time.Minute)
	_, err = store.Begin(ctx, "agency-1:fresh")
	require.NoError(t, err)

	store.removeExpired(current.Add(2*time.Minute + time.Second))

	store.mu.Lock()
	_, oldExists := store.entries["agency-1:old"]
	_, freshExists := store.entries["agency-1:fresh"]
	store.mu.Unlock()

	require.False(t, oldExists)
	require.True(t, freshExists)
}

func TestMemoryStoreConcurrentBegin(t *testing.T) {
	store := NewMemoryStore(5*time.Minute, time.Minute)
	defer store.Close()
	ctx := context.Background()

	const racers = 16
	var wg sync.WaitGroup
	states := make([]BeginState, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := store.Begin(ctx, "agency-1:key-1")
			require.NoError(t, err)
			states[i] = res.State
		}(i)
	}
	wg.Wait()

	started := 0
	for _, state := range states {
		switch state {
		case StateStarted:
			started++
		case StateInFlight:
		default:
			t.Fatalf("unexpected state %v", state)
		}
	}
	require.Equal(t, 1, started)
}
