package nav

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"alphadroid.org/devices-web/internal/content"
	"alphadroid.org/devices-web/internal/observability"
)

// DefaultSettle is the pause between marking content as exiting and replacing it.
const DefaultSettle = 400 * time.Millisecond

// DefaultPreviewCount bounds the catalog shown on the home fragment.
const DefaultPreviewCount = 5

// InlineError is rendered when neither the route nor the 404 fragment resolve.
const InlineError = `<div class="container"><h1>Error</h1><p>Failed to load content. Please ensure you are running the site through a web server.</p></div>`

// State is the navigator's state.
type State int

const (
	StateIdle State = iota
	StateTransitioning
	StateNotFound
)

func (s State) String() string {
	switch s {
	case StateTransitioning:
		return "transitioning"
	case StateNotFound:
		return "not_found"
	default:
		return "idle"
	}
}

// Phase is the visual transition marker on the content region.
type Phase string

const (
	PhaseExiting  Phase = "fade-out"
	PhaseEntering Phase = "fade-in"
)

// Surface is the content region the navigator renders into.
type Surface interface {
	SetPhase(Phase)
	// Replace swaps the whole content region.
	Replace(markup string)
	// Fill replaces the children of the first element carrying class, and
	// reports whether such an element exists.
	Fill(class, markup string) bool
	ScrollTo(anchor string)
}

// Fetcher resolves fragment identifiers.
type Fetcher interface {
	Fetch(ctx context.Context, fragment string) content.Response
}

// Loader populates the device grid inside the current content.
type Loader interface {
	LoadDevices(ctx context.Context, s Surface, limit int) error
}

// Options configures a Navigator.
type Options struct {
	Fetcher      Fetcher
	Loader       Loader
	Settle       time.Duration
	PreviewCount int
	Logger       *zap.Logger
	// Sleep waits for the settle interval; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Outcome describes one Navigate call.
type Outcome struct {
	Generation uint64
	Hash       string
	Fragment   string
	State      State
	// Stale is set when a newer navigation started before this one rendered.
	Stale bool
	Err   error

	effects *sync.WaitGroup
}

// Wait blocks until the side effects this navigation spawned have finished.
func (o Outcome) Wait() {
	if o.effects != nil {
		o.effects.Wait()
	}
}

// Navigator owns the current route and drives transitions. Every Navigate
// call takes a new generation; results from older generations are dropped.
type Navigator struct {
	opts   Options
	logger *zap.Logger

	mu    sync.Mutex
	gen   uint64
	state State
	route string
	from  string
	to    string
}

// New constructs a Navigator.
func New(opts Options) *Navigator {
	if opts.Settle < 0 {
		opts.Settle = 0
	}
	if opts.PreviewCount <= 0 {
		opts.PreviewCount = DefaultPreviewCount
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	return &Navigator{opts: opts, logger: observability.OrNop(opts.Logger), route: "#"}
}

// State returns the current state and route.
func (n *Navigator) State() (State, string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state, n.route
}

// Transition returns the from/to pair of the in-flight transition.
func (n *Navigator) Transition() (from, to string, ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.from, n.to, n.state == StateTransitioning
}

// IsCurrent reports whether gen is the latest navigation.
func (n *Navigator) IsCurrent(gen uint64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return gen == n.gen
}

// Navigate runs one transition to hash. It never panics; failures render the
// 404 fragment or the inline error block.
func (n *Navigator) Navigate(ctx context.Context, hash string, s Surface) (out Outcome) {
	hash = canonicalHash(hash)
	gen := n.begin(hash)
	effects := &sync.WaitGroup{}
	out = Outcome{Generation: gen, Hash: hash, effects: effects}
	surface := &guarded{inner: s, nav: n, gen: gen}

	ctx, span := observability.StartSpan(ctx, "nav.Navigate", attribute.String("hash", hash))
	defer func() {
		if rec := recover(); rec != nil {
			out.Err = fmt.Errorf("nav: render %s: %v", hash, rec)
			n.logger.Error("navigation failed", zap.String("hash", hash), zap.Error(out.Err))
			surface.safeReplace(InlineError)
			out.State = n.finish(gen, StateNotFound, hash)
		}
		out.Stale = !n.IsCurrent(gen)
		span.SetAttributes(attribute.String("state", out.State.String()), attribute.Bool("stale", out.Stale))
		observability.EndSpan(span, out.Err)
	}()

	surface.SetPhase(PhaseExiting)
	if err := n.opts.Sleep(ctx, n.opts.Settle); err != nil {
		out.Err = err
		out.State = n.finish(gen, StateIdle, n.currentRoute())
		return out
	}

	if route, ok := ResolveRoute(hash); ok {
		if body, ok := n.fetch(ctx, route.Fragment); ok {
			out.Fragment = route.Fragment
			if !n.IsCurrent(gen) {
				return out
			}
			surface.Replace(body)
			surface.SetPhase(PhaseEntering)
			out.State = n.finish(gen, StateIdle, hash)
			n.afterRender(ctx, effects, gen, surface, route)
			return out
		}
	}

	if literal := LiteralPath(hash); literal != "" {
		if body, ok := n.fetch(ctx, literal); ok {
			out.Fragment = literal
			surface.Replace(body)
			surface.SetPhase(PhaseEntering)
			out.State = n.finish(gen, StateIdle, hash)
			return out
		}
	}

	if body, ok := n.fetch(ctx, NotFoundFragment); ok {
		out.Fragment = NotFoundFragment
		surface.Replace(body)
	} else {
		surface.Replace(InlineError)
	}
	surface.SetPhase(PhaseEntering)
	out.State = n.finish(gen, StateNotFound, hash)
	return out
}

func (n *Navigator) fetch(ctx context.Context, fragment string) (string, bool) {
	if n.opts.Fetcher == nil {
		return "", false
	}
	resp := n.opts.Fetcher.Fetch(ctx, fragment)
	if !resp.OK {
		n.logger.Debug("fragment unavailable", zap.String("fragment", fragment), zap.Error(resp.Err()))
		return "", false
	}
	body, err := resp.Text(ctx)
	if err != nil {
		n.logger.Warn("fragment text failed", zap.String("fragment", fragment), zap.Error(err))
		return "", false
	}
	return body, true
}

func (n *Navigator) afterRender(ctx context.Context, wg *sync.WaitGroup, gen uint64, s Surface, route Route) {
	if route.Fragment == HomeFragment {
		limit := n.opts.PreviewCount
		n.spawn(ctx, wg, gen, "home preview", func(ctx context.Context) error {
			return n.load(ctx, s, limit)
		})
	}
	if a := route.Action; a.ScrollTo != "" || a.Load {
		n.spawn(ctx, wg, gen, "route action "+route.Hash, func(ctx context.Context) error {
			if a.Load {
				if err := n.load(ctx, s, a.Limit); err != nil {
					return err
				}
			}
			if a.ScrollTo != "" {
				s.ScrollTo(a.ScrollTo)
			}
			return nil
		})
	}
}

func (n *Navigator) load(ctx context.Context, s Surface, limit int) error {
	if n.opts.Loader == nil {
		return nil
	}
	return n.opts.Loader.LoadDevices(ctx, s, limit)
}

// spawn runs a fire-and-forget side effect tracked by wg, which belongs to a
// single navigation. Errors and panics are logged and swallowed; stale
// generations are skipped.
func (n *Navigator) spawn(ctx context.Context, wg *sync.WaitGroup, gen uint64, name string, fn func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				n.logger.Error("side effect panicked", zap.String("effect", name), zap.Any("panic", rec))
			}
		}()
		if !n.IsCurrent(gen) {
			return
		}
		if err := fn(ctx); err != nil {
			n.logger.Warn("side effect failed", zap.String("effect", name), zap.Error(err))
		}
	}()
}

func (n *Navigator) begin(hash string) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gen++
	n.from, n.to = n.route, hash
	n.state = StateTransitioning
	return n.gen
}

// finish records the terminal state if gen is still current and returns the
// state this navigation ended in.
func (n *Navigator) finish(gen uint64, st State, route string) State {
	n.mu.Lock()
	defer n.mu.Unlock()
	if gen != n.gen {
		return st
	}
	n.state = st
	n.route = route
	n.from, n.to = "", ""
	return st
}

func (n *Navigator) currentRoute() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.route
}

// guarded drops writes from stale generations.
type guarded struct {
	inner Surface
	nav   *Navigator
	gen   uint64
}

func (g *guarded) live() bool {
	return g.inner != nil && g.nav.IsCurrent(g.gen)
}

func (g *guarded) SetPhase(p Phase) {
	if g.live() {
		g.inner.SetPhase(p)
	}
}

func (g *guarded) Replace(markup string) {
	if g.live() {
		g.inner.Replace(markup)
	}
}

func (g *guarded) Fill(class, markup string) bool {
	if !g.live() {
		return false
	}
	return g.inner.Fill(class, markup)
}

func (g *guarded) ScrollTo(anchor string) {
	if g.live() {
		g.inner.ScrollTo(anchor)
	}
}

// safeReplace is used from the panic path; a panicking surface is ignored.
func (g *guarded) safeReplace(markup string) {
	defer func() { _ = recover() }()
	g.Replace(markup)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
