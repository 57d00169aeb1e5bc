// Package preload warms the devices fragment and the aggregate document once
// at startup and hands them to the content resolver and the catalog chain.
package preload

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"alphadroid.org/devices-web/internal/catalog"
	"alphadroid.org/devices-web/internal/content"
	"alphadroid.org/devices-web/internal/observability"
	"alphadroid.org/devices-web/internal/source"
)

// Primary documents warmed at bootstrap.
const (
	DevicesPage   = "pages/devices.html"
	AggregatePath = catalog.DefaultAggregatePath
)

// devicesAliases are the route paths that also resolve to the warmed page.
var devicesAliases = []string{"/devices", "/download"}

// Cache is an immutable warm cache.
type Cache struct {
	pages     map[string]string
	aggregate []catalog.Raw
	hasAgg    bool
}

// Page implements content.PageProvider.
func (c *Cache) Page(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	body, ok := c.pages[key]
	return body, ok
}

// Aggregate implements catalog.AggregateProvider.
func (c *Cache) Aggregate() ([]catalog.Raw, bool) {
	if c == nil || !c.hasAgg {
		return nil, false
	}
	return c.aggregate, true
}

// Len reports the number of warmed pages and aggregate records.
func (c *Cache) Len() (pages, records int) {
	if c == nil {
		return 0, 0
	}
	return len(c.pages), len(c.aggregate)
}

// Holder publishes the current Cache. The zero value holds nothing.
type Holder struct {
	p atomic.Pointer[Cache]
}

// Store replaces the published cache.
func (h *Holder) Store(c *Cache) { h.p.Store(c) }

// Load returns the published cache, possibly nil.
func (h *Holder) Load() *Cache { return h.p.Load() }

// Page implements content.PageProvider.
func (h *Holder) Page(key string) (string, bool) { return h.Load().Page(key) }

// Aggregate implements catalog.AggregateProvider.
func (h *Holder) Aggregate() ([]catalog.Raw, bool) { return h.Load().Aggregate() }

// Bootstrap fetches the primary documents from site. Bodies fetched are
// written to store; documents that fail to fetch are read back from it.
// A missing document is not an error; the corresponding table stays empty.
func Bootstrap(ctx context.Context, site source.Fetcher, store *Store, logger *zap.Logger) (*Cache, error) {
	logger = observability.OrNop(logger)
	ctx, span := observability.StartSpan(ctx, "preload.Bootstrap")
	c := &Cache{pages: map[string]string{}}

	var errs []error
	if body, ok := warm(ctx, site, store, DevicesPage, logger); ok {
		markup, err := content.Render(DevicesPage, body)
		if err != nil {
			errs = append(errs, err)
		} else {
			c.pages[DevicesPage] = markup
			for _, alias := range devicesAliases {
				c.pages[alias] = markup
			}
		}
	}
	if body, ok := warm(ctx, site, store, AggregatePath, logger); ok {
		raws, err := catalog.DecodeAggregate(body)
		if err != nil {
			errs = append(errs, fmt.Errorf("preload: decode %s: %w", AggregatePath, err))
		} else {
			c.aggregate = raws
			c.hasAgg = true
		}
	}
	err := errors.Join(errs...)
	observability.EndSpan(span, err)
	pages, records := c.Len()
	logger.Info("preload bootstrapped", zap.Int("pages", pages), zap.Int("records", records))
	return c, err
}

func warm(ctx context.Context, site source.Fetcher, store *Store, p string, logger *zap.Logger) ([]byte, bool) {
	if site != nil {
		doc, err := site.Fetch(ctx, p)
		if err == nil {
			if perr := store.Put(ctx, p, doc.Body); perr != nil {
				logger.Debug("preload store put failed", zap.String("path", p), zap.Error(perr))
			}
			return doc.Body, true
		}
		logger.Debug("preload fetch failed", zap.String("path", p), zap.Error(err))
	}
	body, ok, err := store.Get(ctx, p)
	if err != nil {
		logger.Debug("preload store get failed", zap.String("path", p), zap.Error(err))
		return nil, false
	}
	if ok {
		logger.Info("preload served from storage cache", zap.String("path", p))
	}
	return body, ok
}
