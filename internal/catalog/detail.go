package catalog

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"alphadroid.org/devices-web/internal/format"
	"alphadroid.org/devices-web/internal/observability"
)

// Detail is a single resolved device plus the selected variant index.
type Detail struct {
	Device              Device
	Selected            int
	Tier                Tier
	InfoURL             string
	FallbackDownloadURL string
}

// VariantView is the display projection of one variant.
type VariantView struct {
	Index       int
	Version     string
	Filename    string
	SizeLabel   string
	DateLabel   string
	DownloadURL string
	Links       []LinkGroup
}

// Select returns a copy of d with variant i selected. Out-of-range indexes
// select the default variant.
func (d Detail) Select(i int) Detail {
	if i < 0 || i >= len(d.Device.Variants) {
		i = 0
	}
	d.Selected = i
	return d
}

// View projects the selected variant for display.
func (d Detail) View() VariantView {
	d = d.Select(d.Selected)
	v := d.Device.Default()
	if len(d.Device.Variants) > 0 {
		v = d.Device.Variants[d.Selected]
	}
	view := VariantView{
		Index:       d.Selected,
		Version:     v.Version,
		Filename:    v.Filename,
		SizeLabel:   format.FmtSize(v.Size),
		DownloadURL: v.DownloadURL,
		Links:       v.Links,
	}
	if view.Version == "" {
		view.Version = d.Device.LatestVersionLabel
	}
	if t := v.Time(); t != nil {
		view.DateLabel = format.FmtISODate(*t)
	} else if d.Device.LatestTimestamp != nil {
		view.DateLabel = format.FmtISODate(*d.Device.LatestTimestamp)
	}
	if view.DownloadURL == "" {
		view.DownloadURL = d.FallbackDownloadURL
	}
	return view
}

// Detail re-resolves one device by codename, matching case-insensitively on
// the codename, the device field or the origin filename. Search order:
// preloaded aggregate, local aggregate, override-only synthesis, remote file.
// Any matching override is re-applied.
func (c *Chain) Detail(ctx context.Context, codename string) (Detail, error) {
	codename = strings.TrimSpace(codename)
	ctx, span := observability.StartSpan(ctx, "catalog.Detail", attribute.String("codename", codename))
	var spanErr error
	defer func() { observability.EndSpan(span, spanErr) }()

	if codename == "" {
		spanErr = ErrNotFound
		return Detail{}, ErrNotFound
	}
	db, err := c.Overrides(ctx)
	if err != nil {
		c.logger.Debug("detail without override db", zap.Error(err))
	}

	found := func(d Device, tier Tier) Detail {
		d = db.ApplyTo(d)
		return Detail{
			Device:              d,
			Tier:                tier,
			InfoURL:             joinURL(c.opts.BlobBaseURL, d.Codename+".json"),
			FallbackDownloadURL: joinURL(c.opts.DownloadBaseURL, d.Codename),
		}
	}

	// A grid card carries the codename after overrides; an override that
	// renamed the device is found again under its key.
	names := []string{strings.ToLower(codename)}
	if key, ok := db.KeyFor(codename); ok && key != names[0] {
		names = append(names, key)
	}

	if raws, ok := c.preloaded(); ok {
		if d, ok := findRaw(raws, names...); ok {
			return found(d, TierPreloaded), nil
		}
	}
	if raws, err := c.localAggregate(ctx); err == nil {
		if d, ok := findRaw(raws, names...); ok {
			return found(d, TierLocal), nil
		}
	} else {
		c.logger.Debug("detail local aggregate unavailable", zap.Error(err))
	}
	for _, name := range names {
		if o, ok := db.Lookup(name); ok {
			return found(o.Synthesize(name), TierOverrides), nil
		}
	}
	if c.opts.Remote != nil {
		for _, name := range names {
			raw, err := c.opts.Remote.FetchDevice(ctx, name)
			if err == nil {
				return found(Normalize(raw), TierRemote), nil
			}
			c.logger.Debug("detail remote fetch failed", zap.String("codename", name), zap.Error(err))
			if ctx.Err() != nil {
				spanErr = errors.Join(ErrNotFound, ctx.Err())
				return Detail{}, spanErr
			}
		}
	}
	spanErr = ErrNotFound
	return Detail{}, ErrNotFound
}

func findRaw(raws []Raw, names ...string) (Device, bool) {
	for _, want := range names {
		for _, r := range raws {
			if matches(r, want) {
				return Normalize(r), true
			}
		}
	}
	return Device{}, false
}

func matches(r Raw, want string) bool {
	if fileStem(r.Name) == want {
		return true
	}
	for _, m := range r.fields() {
		for _, key := range []string{"codename", "device"} {
			if strings.ToLower(firstString(m, key)) == want {
				return true
			}
		}
	}
	return false
}

func joinURL(base, elem string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	u, err := url.JoinPath(base, url.PathEscape(elem))
	if err != nil {
		return ""
	}
	return u
}
