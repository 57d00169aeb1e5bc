// Package escape converts arbitrary values into HTML-safe text and attribute strings
// and sanitizes fragment markup fetched from the site source.
package escape

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var replacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// HTML renders v as text safe to embed in element content. nil renders as "".
func HTML(v any) string {
	return replacer.Replace(stringify(v))
}

// Attr renders v as text safe to embed in a quoted attribute value.
func Attr(v any) string {
	// HTML already escapes both quote styles; kept separate so callers state intent.
	return HTML(v)
}

// URL returns v as an attribute-safe URL, or "" when the scheme is not http(s),
// mailto, or a relative reference.
func URL(v any) string {
	raw := strings.TrimSpace(stringify(v))
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	switch strings.ToLower(u.Scheme) {
	case "", "http", "https", "mailto":
	default:
		return ""
	}
	return Attr(u.String())
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case *string:
		if t == nil {
			return ""
		}
		return *t
	case fmt.Stringer:
		return t.String()
	case error:
		return t.Error()
	default:
		return fmt.Sprint(t)
	}
}

var (
	policyOnce     sync.Once
	fragmentPolicy *bluemonday.Policy
)

// FragmentPolicy allows the markup used by page fragments: UGC elements plus
// class/id/style hooks and the data-* attributes the catalog relies on.
func FragmentPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		p := bluemonday.UGCPolicy()
		p.AllowAttrs("class", "id").Globally()
		p.AllowDataAttributes()
		p.AllowAttrs("hx-get", "hx-target", "hx-swap", "hx-push-url", "hx-trigger", "hx-include").Globally()
		p.AllowElements("section", "article", "nav", "header", "footer", "main", "dialog", "i", "button", "input", "select", "option", "form", "label")
		p.AllowAttrs("type", "name", "value", "placeholder", "aria-label", "aria-hidden").Globally()
		p.AllowAttrs("target").OnElements("a")
		p.RequireNoFollowOnLinks(false)
		fragmentPolicy = p
	})
	return fragmentPolicy
}

// Fragment sanitizes fragment markup with FragmentPolicy.
func Fragment(markup string) string {
	return FragmentPolicy().Sanitize(markup)
}
