package search

import (
	"sync"
	"time"
)

// DefaultDebounce is the quiet period before typed text is applied.
const DefaultDebounce = time.Second

// Result is delivered whenever the applied query changes.
type Result struct {
	Query   Query
	Matches []Entry
}

// AfterFunc schedules f after d and returns a stop function.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

func timeAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithDebounce sets the quiet period for text input.
func WithDebounce(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d >= 0 {
			c.debounce = d
		}
	}
}

// WithAfterFunc replaces the timer used for debouncing.
func WithAfterFunc(fn AfterFunc) ControllerOption {
	return func(c *Controller) {
		if fn != nil {
			c.after = fn
		}
	}
}

// WithOnChange registers the result callback.
func WithOnChange(fn func(Result)) ControllerOption {
	return func(c *Controller) { c.onChange = fn }
}

// Controller applies input events to an Index: typed text is debounced,
// confirm and clear bypass the debounce, and facet selection is immediate.
type Controller struct {
	mu       sync.Mutex
	index    *Index
	applied  Query
	input    string
	stop     func() bool
	seq      uint64
	debounce time.Duration
	after    AfterFunc
	onChange func(Result)
}

// NewController returns a controller over index.
func NewController(index *Index, opts ...ControllerOption) *Controller {
	c := &Controller{
		index:    index,
		debounce: DefaultDebounce,
		after:    timeAfterFunc,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Input records typed text and re-runs the filter after the quiet period.
func (c *Controller) Input(text string) {
	c.mu.Lock()
	c.input = text
	c.cancelLocked()
	c.seq++
	seq := c.seq
	if c.debounce == 0 {
		res := c.applyLocked()
		c.mu.Unlock()
		c.emit(res)
		return
	}
	c.stop = c.after(c.debounce, func() { c.fire(seq) })
	c.mu.Unlock()
}

// Confirm applies the current text immediately.
func (c *Controller) Confirm() Result {
	c.mu.Lock()
	c.cancelLocked()
	res := c.applyLocked()
	c.mu.Unlock()
	c.emit(res)
	return res
}

// Clear empties the text and re-runs the filter immediately.
func (c *Controller) Clear() Result {
	c.mu.Lock()
	c.input = ""
	c.cancelLocked()
	res := c.applyLocked()
	c.mu.Unlock()
	c.emit(res)
	return res
}

// SelectFacet sets the facet and re-runs the filter immediately with the
// current text. "All" clears the facet.
func (c *Controller) SelectFacet(facet string) Result {
	c.mu.Lock()
	c.applied.Facet = NormalizeFacet(facet)
	c.cancelLocked()
	res := c.applyLocked()
	c.mu.Unlock()
	c.emit(res)
	return res
}

// SetIndex swaps the index, e.g. after a re-render, and re-applies the query.
func (c *Controller) SetIndex(index *Index) Result {
	c.mu.Lock()
	c.index = index
	res := c.resultLocked()
	c.mu.Unlock()
	c.emit(res)
	return res
}

// Current returns the result for the applied query without emitting.
func (c *Controller) Current() Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resultLocked()
}

// Close stops any pending debounce timer.
func (c *Controller) Close() {
	c.mu.Lock()
	c.cancelLocked()
	c.seq++
	c.mu.Unlock()
}

func (c *Controller) fire(seq uint64) {
	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		return
	}
	c.stop = nil
	res := c.applyLocked()
	c.mu.Unlock()
	c.emit(res)
}

func (c *Controller) cancelLocked() {
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
}

func (c *Controller) applyLocked() Result {
	c.seq++
	c.applied.Text = c.input
	return c.resultLocked()
}

func (c *Controller) resultLocked() Result {
	return Result{Query: c.applied, Matches: c.index.Filter(c.applied)}
}

func (c *Controller) emit(res Result) {
	if c.onChange != nil {
		c.onChange(res)
	}
}
