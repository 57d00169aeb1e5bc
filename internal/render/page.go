// Package render projects catalog devices into markup and implements the
// server-side content surface the navigator writes into.
package render

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"alphadroid.org/devices-web/internal/nav"
)

// Page is an in-memory content region. It is safe for concurrent use; the
// navigator's side effects fill it from their own goroutines.
type Page struct {
	mu     sync.Mutex
	markup string
	phase  nav.Phase
	scroll string
}

// NewPage returns an empty Page.
func NewPage() *Page {
	return &Page{}
}

// SetPhase records the transition marker.
func (p *Page) SetPhase(phase nav.Phase) {
	p.mu.Lock()
	p.phase = phase
	p.mu.Unlock()
}

// Replace swaps the whole region.
func (p *Page) Replace(markup string) {
	p.mu.Lock()
	p.markup = markup
	p.mu.Unlock()
}

// ScrollTo records the anchor the client should scroll to.
func (p *Page) ScrollTo(anchor string) {
	p.mu.Lock()
	p.scroll = anchor
	p.mu.Unlock()
}

// Fill replaces the children of the first element carrying class.
func (p *Page) Fill(class, markup string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	out, ok, err := fillClass(p.markup, class, markup)
	if err != nil || !ok {
		return false
	}
	p.markup = out
	return true
}

// HTML returns the current markup.
func (p *Page) HTML() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.markup
}

// Phase returns the last transition marker.
func (p *Page) Phase() nav.Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// Anchor returns the pending scroll anchor, if any.
func (p *Page) Anchor() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scroll
}

func bodyContext() *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: atom.Body, Data: "body"}
}

func fillClass(doc, class, markup string) (string, bool, error) {
	nodes, err := html.ParseFragment(strings.NewReader(doc), bodyContext())
	if err != nil {
		return "", false, fmt.Errorf("render: parse region: %w", err)
	}
	var target *html.Node
	for _, n := range nodes {
		if target = findByClass(n, class); target != nil {
			break
		}
	}
	if target == nil {
		return doc, false, nil
	}
	children, err := html.ParseFragment(strings.NewReader(markup), target)
	if err != nil {
		return "", false, fmt.Errorf("render: parse fill: %w", err)
	}
	for c := target.FirstChild; c != nil; {
		next := c.NextSibling
		target.RemoveChild(c)
		c = next
	}
	for _, c := range children {
		target.AppendChild(c)
	}
	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			return "", false, fmt.Errorf("render: write region: %w", err)
		}
	}
	return buf.String(), true, nil
}

func findByClass(n *html.Node, class string) *html.Node {
	if n.Type == html.ElementNode && hasClass(n, class) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByClass(c, class); found != nil {
			return found
		}
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}
