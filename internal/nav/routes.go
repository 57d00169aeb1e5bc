package nav

import (
	"path"
	"strings"
)

// Fragment identifiers served into the content region.
const (
	HomeFragment     = "pages/home.html"
	DevicesFragment  = "pages/devices.html"
	AboutFragment    = "pages/about.html"
	ContactFragment  = "pages/contact.html"
	NotFoundFragment = "pages/404.html"
)

// Action is a post-render side effect attached to a route.
type Action struct {
	// ScrollTo names an anchor to scroll to once the fragment is in place.
	ScrollTo string
	// Load triggers a catalog load; Limit 0 means unlimited.
	Load  bool
	Limit int
}

// Route maps a hash to a fragment plus its post-render action.
type Route struct {
	Hash     string
	Fragment string
	Action   Action
}

// Home preview loads are triggered by the home fragment itself, so the home
// aliases only carry scroll actions.
var routes = map[string]Route{
	"#":            {Hash: "#", Fragment: HomeFragment},
	"#home":        {Hash: "#home", Fragment: HomeFragment},
	"#features":    {Hash: "#features", Fragment: HomeFragment, Action: Action{ScrollTo: "features"}},
	"#screenshots": {Hash: "#screenshots", Fragment: HomeFragment, Action: Action{ScrollTo: "screenshots"}},
	"#devices":     {Hash: "#devices", Fragment: DevicesFragment, Action: Action{Load: true}},
	"#download":    {Hash: "#download", Fragment: DevicesFragment, Action: Action{Load: true}},
	"#about":       {Hash: "#about", Fragment: AboutFragment},
	"#contact":     {Hash: "#contact", Fragment: ContactFragment},
}

// ResolveRoute looks up a hash in the static route table. An empty hash is
// the root route.
func ResolveRoute(hash string) (Route, bool) {
	r, ok := routes[canonicalHash(hash)]
	return r, ok
}

// Hashes returns every routed hash.
func Hashes() []string {
	out := make([]string, 0, len(routes))
	for h := range routes {
		out = append(out, h)
	}
	return out
}

// Normalize converts a path or key ("/devices", "devices", "#devices") into
// its hash form.
func Normalize(p string) string {
	p = strings.TrimSpace(p)
	if strings.HasPrefix(p, "#") {
		return canonicalHash(p)
	}
	p = strings.TrimLeft(p, "/#")
	return canonicalHash("#" + p)
}

// Key strips the leading '#' ("#devices" => "devices", "#" => "").
func Key(hash string) string {
	return strings.TrimPrefix(canonicalHash(hash), "#")
}

// LiteralPath is the direct same-named path tried for a hash that has no
// route or whose fragment failed: "#nope" => "nope.html".
func LiteralPath(hash string) string {
	key := Key(hash)
	if key == "" {
		return ""
	}
	if path.Ext(key) == "" {
		key += ".html"
	}
	return key
}

func canonicalHash(hash string) string {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return "#"
	}
	if !strings.HasPrefix(hash, "#") {
		hash = "#" + hash
	}
	return hash
}
