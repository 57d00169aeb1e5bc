// Package nav owns the hash route table, the navigation state machine and the
// header menu.
package nav

// Item represents a top-level navigation item.
type Item struct {
	Hash     string // e.g. "#devices"
	LabelKey string // i18n key, e.g. "nav.devices"
	Icon     string
}

// RenderedItem is a view model for templates.
type RenderedItem struct {
	Href     string
	Key      string
	LabelKey string
	Icon     string
	Active   bool
}

// Main is the primary navigation definition.
var Main = []Item{
	{Hash: "#home", LabelKey: "nav.home", Icon: "home"},
	{Hash: "#features", LabelKey: "nav.features", Icon: "star"},
	{Hash: "#devices", LabelKey: "nav.devices", Icon: "devices"},
	{Hash: "#about", LabelKey: "nav.about", Icon: "info"},
	{Hash: "#contact", LabelKey: "nav.contact", Icon: "mail"},
}

// aliases fold hashes that render the same page without an anchor onto the
// menu item that represents them.
var aliases = map[string]string{
	"#":         "#home",
	"#download": "#devices",
}

// Build renders navigation items with active state given the current hash.
func Build(currentHash string) []RenderedItem {
	current := canonicalHash(currentHash)
	if alias, ok := aliases[current]; ok {
		current = alias
	}
	items := make([]RenderedItem, 0, len(Main))
	for _, it := range Main {
		items = append(items, RenderedItem{
			Href:     "/" + it.Hash,
			Key:      Key(it.Hash),
			LabelKey: it.LabelKey,
			Icon:     it.Icon,
			Active:   it.Hash == current,
		})
	}
	return items
}
