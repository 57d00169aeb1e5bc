package preload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/require"

	"alphadroid.org/devices-web/internal/source"
)

const aggregate = `[
  {"name": "fox.json", "data": {"codename": "fox", "name": "Fox"}},
  null,
  {"name": "owl.json", "data": {"codename": "owl"}}
]`

type failingSite struct{}

func (failingSite) Fetch(context.Context, string) (source.Document, error) {
	return source.Document{}, errors.New("offline")
}

func openMemoryStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(context.Background(), ":memory:", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBootstrapWarmsPagesAndAggregate(t *testing.T) {
	site := source.NewDir(fstest.MapFS{
		DevicesPage:   {Data: []byte(`<div class="devices-container"></div><script>x()</script>`)},
		AggregatePath: {Data: []byte(aggregate)},
	})
	store := openMemoryStore(t)

	c, err := Bootstrap(context.Background(), site, store, nil)
	require.NoError(t, err)

	for _, key := range []string{DevicesPage, "/devices", "/download"} {
		body, ok := c.Page(key)
		require.True(t, ok, key)
		require.Contains(t, body, "devices-container")
		require.NotContains(t, body, "<script")
	}
	raws, ok := c.Aggregate()
	require.True(t, ok)
	require.Len(t, raws, 2)

	cached, ok, err := store.Get(context.Background(), AggregatePath)
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, aggregate, string(cached))
}

func TestBootstrapFallsBackToStore(t *testing.T) {
	store := openMemoryStore(t)
	require.NoError(t, store.Put(context.Background(), AggregatePath, []byte(aggregate)))

	c, err := Bootstrap(context.Background(), failingSite{}, store, nil)
	require.NoError(t, err)
	raws, ok := c.Aggregate()
	require.True(t, ok)
	require.Len(t, raws, 2)
	_, ok = c.Page("/devices")
	require.False(t, ok)
}

func TestBootstrapWithoutAnything(t *testing.T) {
	c, err := Bootstrap(context.Background(), nil, nil, nil)
	require.NoError(t, err)
	_, ok := c.Aggregate()
	require.False(t, ok)
	pages, records := c.Len()
	require.Zero(t, pages)
	require.Zero(t, records)
}

func TestBootstrapReportsUndecodableAggregate(t *testing.T) {
	site := source.NewDir(fstest.MapFS{AggregatePath: {Data: []byte(`{not json`)}})
	c, err := Bootstrap(context.Background(), site, nil, nil)
	require.Error(t, err)
	_, ok := c.Aggregate()
	require.False(t, ok)
}

func TestHolderPublishes(t *testing.T) {
	var h Holder
	_, ok := h.Page("/devices")
	require.False(t, ok)
	_, ok = h.Aggregate()
	require.False(t, ok)

	h.Store(&Cache{pages: map[string]string{"/devices": "x"}})
	body, ok := h.Page("/devices")
	require.True(t, ok)
	require.Equal(t, "x", body)
}

func TestStoreIsNamed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	a, err := OpenStore(context.Background(), path, "a")
	require.NoError(t, err)
	require.NoError(t, a.Put(context.Background(), "k", []byte("one")))
	require.NoError(t, a.Put(context.Background(), "k", []byte("two")))
	require.NoError(t, a.Close())

	b, err := OpenStore(context.Background(), path, "b")
	require.NoError(t, err)
	defer b.Close()
	_, ok, err := b.Get(context.Background(), "k")
	require.NoError(t, err)
	require.False(t, ok)

	a, err = OpenStore(context.Background(), path, "a")
	require.NoError(t, err)
	defer a.Close()
	body, ok, err := a.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "two", string(body))

	var nilStore *Store
	require.NoError(t, nilStore.Put(context.Background(), "k", nil))
	_, ok, err = nilStore.Get(context.Background(), "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pages"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data"), 0o755))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloaded := make(chan struct{}, 4)
	err := Watch(ctx, dir, 10*time.Millisecond, func(context.Context) { reloaded <- struct{}{} }, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "pages", "other.html"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "devices.json"), []byte("[]"), 0o644))

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a reload after the aggregate changed")
	}
}
