// Package content resolves fragment identifiers (e.g. "pages/home.html") to
// markup for the application's content region.
package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"alphadroid.org/devices-web/internal/escape"
	"alphadroid.org/devices-web/internal/observability"
	"alphadroid.org/devices-web/internal/source"
)

// ErrNotFound is returned by Response.Text when the fragment does not exist.
var ErrNotFound = errors.New("content: fragment not found")

const defaultCacheTTL = 5 * time.Minute

// Origin names where a response came from.
type Origin string

const (
	OriginPreload     Origin = "preload"
	OriginPlaceholder Origin = "placeholder"
	OriginCache       Origin = "cache"
	OriginSite        Origin = "site"
)

// PageProvider exposes fragments warmed before the first navigation, keyed by
// fragment path and by the route paths they were associated with.
type PageProvider interface {
	Page(key string) (string, bool)
}

// Response is the uniform fetch result regardless of where markup came from.
type Response struct {
	OK     bool
	Origin Origin
	body   string
	err    error
}

// Text returns the markup, or the failure cause when OK is false.
func (r Response) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !r.OK {
		if r.err == nil {
			return "", ErrNotFound
		}
		return "", r.err
	}
	return r.body, nil
}

// Err returns the failure cause, if any.
func (r Response) Err() error {
	if r.OK {
		return nil
	}
	if r.err == nil {
		return ErrNotFound
	}
	return r.err
}

func okResponse(origin Origin, body string) Response {
	return Response{OK: true, Origin: origin, body: body}
}

func failed(err error) Response {
	return Response{err: err}
}

// Options configures a Resolver.
type Options struct {
	Preloaded PageProvider
	Site      source.Fetcher
	// LocalFile serves synthesized placeholder markup instead of touching the
	// network, mirroring a page opened straight from disk.
	LocalFile bool
	CacheTTL  time.Duration
	Logger    *zap.Logger
}

// Resolver resolves fragments: preload table, then the local-file placeholder,
// then a cached fetch from the site source.
type Resolver struct {
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	body    string
	expires time.Time
}

// NewResolver constructs a Resolver.
func NewResolver(opts Options) *Resolver {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	return &Resolver{
		opts:   opts,
		logger: observability.OrNop(opts.Logger),
		now:    time.Now,
		cache:  map[string]cacheEntry{},
	}
}

// Fetch resolves a fragment identifier. It never panics and never returns a
// nil-like response: failures come back with OK=false.
func (r *Resolver) Fetch(ctx context.Context, fragment string) (resp Response) {
	ctx, span := observability.StartSpan(ctx, "content.Fetch", attribute.String("fragment", fragment))
	defer func() {
		if rec := recover(); rec != nil {
			resp = failed(fmt.Errorf("content: resolve %s: %v", fragment, rec))
		}
		span.SetAttributes(attribute.String("origin", string(resp.Origin)))
		observability.EndSpan(span, resp.Err())
	}()

	if body, ok := r.preloaded(fragment); ok {
		return okResponse(OriginPreload, body)
	}
	if r.opts.LocalFile {
		return okResponse(OriginPlaceholder, Placeholder(fragment))
	}
	clean, ok := source.CleanPath(fragment)
	if !ok {
		return failed(ErrNotFound)
	}
	if body, ok := r.cached(clean); ok {
		return okResponse(OriginCache, body)
	}
	if r.opts.Site == nil {
		return failed(ErrNotFound)
	}
	doc, err := r.opts.Site.Fetch(ctx, clean)
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			return failed(ErrNotFound)
		}
		r.logger.Warn("fragment fetch failed", zap.String("fragment", clean), zap.Error(err))
		return failed(fmt.Errorf("content: fetch %s: %w", clean, err))
	}
	body, err := Render(clean, doc.Body)
	if err != nil {
		return failed(err)
	}
	r.store(clean, body)
	return okResponse(OriginSite, body)
}

// Invalidate drops all cached fragments.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.cache = map[string]cacheEntry{}
	r.mu.Unlock()
}

func (r *Resolver) preloaded(fragment string) (string, bool) {
	if r.opts.Preloaded == nil {
		return "", false
	}
	if body, ok := r.opts.Preloaded.Page(fragment); ok {
		return body, true
	}
	if clean, ok := source.CleanPath(fragment); ok && clean != fragment {
		return r.opts.Preloaded.Page(clean)
	}
	return "", false
}

func (r *Resolver) cached(key string) (string, bool) {
	r.mu.RLock()
	entry, ok := r.cache[key]
	r.mu.RUnlock()
	if !ok || r.now().After(entry.expires) {
		return "", false
	}
	return entry.body, true
}

func (r *Resolver) store(key, body string) {
	r.mu.Lock()
	r.cache[key] = cacheEntry{body: body, expires: r.now().Add(r.opts.CacheTTL)}
	r.mu.Unlock()
}

// Placeholder is the markup served in local-file mode.
func Placeholder(fragment string) string {
	var b strings.Builder
	b.WriteString(`<div class="container"><h1>Development Mode</h1><p>You are viewing: `)
	b.WriteString(escape.HTML(fragment))
	b.WriteString(`</p><p>To see actual content, please run this site through a web server.</p></div>`)
	return b.String()
}
