package render

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"alphadroid.org/devices-web/internal/catalog"
	"alphadroid.org/devices-web/internal/nav"
	"alphadroid.org/devices-web/internal/observability"
	"alphadroid.org/devices-web/internal/search"
)

// ErrNoContainer is returned when the surface has no grid container.
var ErrNoContainer = errors.New("render: devices container not present")

// DeviceLoader loads catalogs.
type DeviceLoader interface {
	Load(ctx context.Context, limit int) (catalog.Result, error)
}

// Catalog loads devices into a surface's grid container and publishes the
// search index built from what it rendered.
type Catalog struct {
	Devices  DeviceLoader
	Renderer *Renderer
	Logger   *zap.Logger

	snap atomic.Pointer[snapshot]
}

type snapshot struct {
	index   *search.Index
	devices map[string]catalog.Device
}

// NewCatalog constructs a Catalog.
func NewCatalog(devices DeviceLoader, r *Renderer, logger *zap.Logger) *Catalog {
	c := &Catalog{Devices: devices, Renderer: r, Logger: logger}
	c.publish(nil)
	return c
}

// Index returns the index built by the most recent render.
func (c *Catalog) Index() *search.Index {
	if snap := c.snap.Load(); snap != nil {
		return snap.index
	}
	return search.NewIndex(nil)
}

// Lookup returns the rendered devices behind search entries, in entry order.
func (c *Catalog) Lookup(entries []search.Entry) []catalog.Device {
	snap := c.snap.Load()
	if snap == nil {
		return nil
	}
	out := make([]catalog.Device, 0, len(entries))
	for _, e := range entries {
		if d, ok := snap.devices[strings.ToLower(strings.TrimSpace(e.Codename))]; ok {
			out = append(out, d)
		}
	}
	return out
}

func (c *Catalog) publish(devices []catalog.Device) {
	byKey := make(map[string]catalog.Device, len(devices))
	for _, d := range devices {
		byKey[d.Key()] = d
	}
	c.snap.Store(&snapshot{index: search.NewIndex(Entries(devices)), devices: byKey})
}

// LoadDevices implements nav.Loader. Without a grid container it does nothing.
func (c *Catalog) LoadDevices(ctx context.Context, s nav.Surface, limit int) error {
	logger := observability.OrNop(c.Logger)
	if !s.Fill(GridClass, c.Renderer.Loading()) {
		return nil
	}
	devices, err := c.Render(ctx, limit)
	if err != nil {
		logger.Warn("load devices failed", zap.Int("limit", limit), zap.Error(err))
		s.Fill(GridClass, c.Renderer.LoadError())
		return err
	}
	if !s.Fill(GridClass, devices) {
		return ErrNoContainer
	}
	return nil
}

// Render loads the catalog and returns grid markup. Every render replaces the
// search index with the rendered entries.
func (c *Catalog) Render(ctx context.Context, limit int) (string, error) {
	res, err := c.Devices.Load(ctx, limit)
	if err != nil {
		return "", err
	}
	markup, err := c.Renderer.Grid(res.Devices, limit)
	if err != nil {
		return "", err
	}
	c.publish(res.Devices)
	return markup, nil
}

// Entries projects devices into search entries.
func Entries(devices []catalog.Device) []search.Entry {
	out := make([]search.Entry, 0, len(devices))
	for _, d := range devices {
		out = append(out, search.Entry{Codename: d.Codename, OEM: d.OEM, DisplayName: d.DisplayName})
	}
	return out
}
