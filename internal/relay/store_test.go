package relay

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestStorePutGetDelete(t *testing.T) {
	store := NewStore(Config{Metrics: NewMetrics(prometheus.NewRegistry())})

	_, ok := store.Get("t1")
	require.False(t, ok)

	require.NoError(t, store.Put("t1", json.RawMessage(`{"access_token":"jwt"}`)))
	msg, ok := store.Get("t1")
	require.True(t, ok)
	require.JSONEq(t, `{"access_token":"jwt"}`, string(msg))

	require.ErrorIs(t, store.Put("t1", json.RawMessage(`{"tx":"0x1"}`)), ErrAlreadyAnswered)

	require.NoError(t, store.Delete("t1"))
	require.ErrorIs(t, store.Delete("t1"), ErrNotFound)
}

func TestStoreRejectsNonObject(t *testing.T) {
	store := NewStore(Config{})
	require.ErrorIs(t, store.Put("t1", json.RawMessage(`"jwt"`)), ErrNotObject)
	require.ErrorIs(t, store.Put("t1", json.RawMessage(`null`)), ErrNotObject)
	require.ErrorIs(t, store.Put("t1", json.RawMessage(`{`)), ErrNotObject)
}

func TestStoreExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	store := NewStore(Config{TTL: time.Minute, Clock: clock})
	require.NoError(t, store.Put("t1", json.RawMessage(`{"tx":"0x1"}`)))

	clock.Advance(30 * time.Second)
	_, ok := store.Get("t1")
	require.True(t, ok)

	clock.Advance(31 * time.Second)
	_, ok = store.Get("t1")
	require.False(t, ok)
	require.NoError(t, store.Put("t1", json.RawMessage(`{"tx":"0x2"}`)), "expired topic may be reused")

	clock.Advance(2 * time.Minute)
	require.Equal(t, 1, store.Sweep())
	require.Empty(t, store.snapshot().Topics)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
