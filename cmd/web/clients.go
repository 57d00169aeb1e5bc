package main

import (
	"context"
	"sync"
	"time"

	"alphadroid.org/devices-web/internal/nav"
	"alphadroid.org/devices-web/internal/render"
)

// clients keeps one Navigator per session so that overlapping navigations
// from the same browser discard each other's stale renders. Each session also
// owns the catalog its grids were rendered from, which search filters.
type clients struct {
	ttl   time.Duration
	newFn func() *client
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]*client
}

type client struct {
	nav      *nav.Navigator
	catalog  *render.Catalog
	lastSeen time.Time
}

func newClients(ttl time.Duration, newFn func() *client) *clients {
	return &clients{ttl: ttl, newFn: newFn, now: time.Now, entries: map[string]*client{}}
}

// get returns the session's client state, creating it on first use.
func (c *clients) get(id string) *client {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		e = c.newFn()
		c.entries[id] = e
	}
	e.lastSeen = c.now()
	return e
}

// prune drops navigators idle for longer than the TTL.
func (c *clients) prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-c.ttl)
	n := 0
	for id, e := range c.entries {
		if e.lastSeen.Before(cutoff) {
			delete(c.entries, id)
			n++
		}
	}
	return n
}

func (c *clients) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *clients) janitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.prune()
		}
	}
}
