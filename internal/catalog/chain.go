package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"alphadroid.org/devices-web/internal/observability"
	"alphadroid.org/devices-web/internal/source"
)

const (
	DefaultOverridesPath = "data/device_db.json"
	DefaultAggregatePath = "data/devices.json"
)

var (
	// ErrSourceUnavailable is returned when every tier failed.
	ErrSourceUnavailable = errors.New("catalog: no device source available")
	// ErrNotFound is returned when a device lookup has no match.
	ErrNotFound = errors.New("catalog: device not found")
	// ErrAbsent marks a tier with nothing to offer (e.g. no preloaded aggregate).
	ErrAbsent = errors.New("catalog: tier absent")
	// ErrEmptyOverrides marks an override database with no entries when empty
	// databases are configured to fall through.
	ErrEmptyOverrides = errors.New("catalog: override database is empty")
)

// Tier identifies one source in the fallback order.
type Tier int

const (
	TierOverrides Tier = iota + 1
	TierPreloaded
	TierLocal
	TierRemote
)

func (t Tier) String() string {
	switch t {
	case TierOverrides:
		return "overrides"
	case TierPreloaded:
		return "preloaded"
	case TierLocal:
		return "local"
	case TierRemote:
		return "remote"
	default:
		return "none"
	}
}

// TierError records why a tier was skipped.
type TierError struct {
	Tier Tier
	Err  error
}

func (e *TierError) Error() string {
	return fmt.Sprintf("catalog: tier %s: %v", e.Tier, e.Err)
}

func (e *TierError) Unwrap() error { return e.Err }

// AggregateProvider exposes an aggregate warmed before the first load.
type AggregateProvider interface {
	Aggregate() ([]Raw, bool)
}

// Options configures a Chain.
type Options struct {
	Site                      source.Fetcher
	Preloaded                 AggregateProvider
	Remote                    *Remote
	OverridesPath             string
	AggregatePath             string
	EmptyOverridesFallThrough bool
	DownloadBaseURL           string
	BlobBaseURL               string
	Logger                    *zap.Logger
}

// Chain loads devices from the first tier that succeeds.
type Chain struct {
	opts   Options
	logger *zap.Logger
	loads  metric.Int64Counter
}

// Result is the outcome of a successful load.
type Result struct {
	Devices []Device
	Tier    Tier
}

// New constructs a Chain.
func New(opts Options) *Chain {
	if opts.OverridesPath == "" {
		opts.OverridesPath = DefaultOverridesPath
	}
	if opts.AggregatePath == "" {
		opts.AggregatePath = DefaultAggregatePath
	}
	c := &Chain{opts: opts, logger: observability.OrNop(opts.Logger)}
	if counter, err := observability.Meter().Int64Counter(
		"catalog.tier.loads",
		metric.WithDescription("Catalog loads by tier and outcome"),
	); err == nil {
		c.loads = counter
	}
	return c
}

// Load returns devices from the first available tier, sorted newest first and
// truncated to limit when limit > 0. Tiers never mix: a later tier is tried only
// when the previous one failed entirely.
func (c *Chain) Load(ctx context.Context, limit int) (Result, error) {
	ctx, span := observability.StartSpan(ctx, "catalog.Load", attribute.Int("limit", limit))
	var spanErr error
	defer func() { observability.EndSpan(span, spanErr) }()

	tiers := []struct {
		tier Tier
		load func(context.Context) ([]Device, error)
	}{
		{TierOverrides, c.loadOverrides},
		{TierPreloaded, c.loadPreloaded},
		{TierLocal, c.loadLocal},
		{TierRemote, c.loadRemote},
	}

	var errs []error
	for _, t := range tiers {
		start := time.Now()
		devices, err := c.runTier(ctx, t.tier, t.load)
		if err != nil {
			errs = append(errs, &TierError{Tier: t.tier, Err: err})
			c.logger.Debug("catalog tier unavailable", zap.Stringer("tier", t.tier), zap.Error(err))
			continue
		}
		SortByRecency(devices)
		if limit > 0 && len(devices) > limit {
			devices = devices[:limit]
		}
		c.logger.Info("catalog loaded",
			zap.Stringer("tier", t.tier),
			zap.Int("devices", len(devices)),
			zap.Duration("duration", time.Since(start)),
		)
		span.SetAttributes(attribute.String("tier", t.tier.String()), attribute.Int("devices", len(devices)))
		return Result{Devices: devices, Tier: t.tier}, nil
	}
	spanErr = errors.Join(append([]error{ErrSourceUnavailable}, errs...)...)
	return Result{}, spanErr
}

func (c *Chain) runTier(ctx context.Context, tier Tier, load func(context.Context) ([]Device, error)) ([]Device, error) {
	ctx, span := observability.StartSpan(ctx, "catalog.tier", attribute.String("tier", tier.String()))
	devices, err := load(ctx)
	observability.EndSpan(span, err)
	if c.loads != nil {
		outcome := "ok"
		if err != nil {
			outcome = "unavailable"
		}
		c.loads.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tier", tier.String()),
			attribute.String("outcome", outcome),
		))
	}
	return devices, err
}

// Overrides fetches and parses the override database.
func (c *Chain) Overrides(ctx context.Context) (OverrideDB, error) {
	doc, err := c.fetch(ctx, c.opts.OverridesPath)
	if err != nil {
		return OverrideDB{}, err
	}
	return ParseOverrideDB(doc.Body)
}

func (c *Chain) loadOverrides(ctx context.Context) ([]Device, error) {
	db, err := c.Overrides(ctx)
	if err != nil {
		return nil, err
	}
	if db.Len() == 0 && c.opts.EmptyOverridesFallThrough {
		return nil, ErrEmptyOverrides
	}
	upstream, err := c.upstream(ctx)
	if err != nil {
		c.logger.Debug("override tier without upstream aggregate", zap.Error(err))
	}
	return db.Merge(upstream), nil
}

// upstream returns the richest aggregate available to the override tier.
func (c *Chain) upstream(ctx context.Context) ([]Raw, error) {
	if raws, ok := c.preloaded(); ok {
		return raws, nil
	}
	return c.localAggregate(ctx)
}

func (c *Chain) preloaded() ([]Raw, bool) {
	if c.opts.Preloaded == nil {
		return nil, false
	}
	return c.opts.Preloaded.Aggregate()
}

func (c *Chain) loadPreloaded(context.Context) ([]Device, error) {
	raws, ok := c.preloaded()
	if !ok {
		return nil, ErrAbsent
	}
	return normalizeAll(raws), nil
}

func (c *Chain) localAggregate(ctx context.Context) ([]Raw, error) {
	doc, err := c.fetch(ctx, c.opts.AggregatePath)
	if err != nil {
		return nil, err
	}
	return DecodeAggregate(doc.Body)
}

func (c *Chain) loadLocal(ctx context.Context) ([]Device, error) {
	raws, err := c.localAggregate(ctx)
	if err != nil {
		return nil, err
	}
	return normalizeAll(raws), nil
}

func (c *Chain) loadRemote(ctx context.Context) ([]Device, error) {
	if c.opts.Remote == nil {
		return nil, ErrAbsent
	}
	items, err := c.opts.Remote.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		c.logger.Info("remote listing has no device definitions")
		return []Device{}, nil
	}
	return normalizeAll(c.opts.Remote.FetchAll(ctx, items)), nil
}

func (c *Chain) fetch(ctx context.Context, p string) (source.Document, error) {
	if c.opts.Site == nil {
		return source.Document{}, ErrAbsent
	}
	return c.opts.Site.Fetch(ctx, p)
}

func normalizeAll(raws []Raw) []Device {
	out := make([]Device, 0, len(raws))
	for _, r := range raws {
		out = append(out, Normalize(r))
	}
	return out
}
