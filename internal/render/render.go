package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strconv"
	"time"

	"alphadroid.org/devices-web/internal/catalog"
	"alphadroid.org/devices-web/internal/format"
	"alphadroid.org/devices-web/internal/search"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// GridClass is the container class the device grid is injected into.
const GridClass = "devices-container"

var linkKindLabels = map[catalog.LinkKind]string{
	catalog.LinkSource:  "Source",
	catalog.LinkSupport: "Support",
	catalog.LinkMore:    "More",
}

// Card is the view model of one device card.
type Card struct {
	Codename     string
	DisplayName  string
	OEM          string
	Image        string
	VersionLabel string
	Updated      string
	Maintainer   *catalog.Maintainer
	InfoURL      string
	DetailURL    string
}

// Grid is the view model of a device grid.
type Grid struct {
	Cards   []Card
	ShowAll bool
	// Toolbar is set on full grids only.
	Toolbar *Toolbar
}

// Toolbar is the search box plus OEM facet chips above a full grid.
type Toolbar struct {
	Facets     []search.Facet
	DebounceMs int64
}

type variantTab struct {
	Label  string
	URL    string
	Active bool
}

type detailView struct {
	Codename    string
	DisplayName string
	Model       string
	OEM         string
	Maintainer  *catalog.Maintainer
	InfoURL     string
	Variant     catalog.VariantView
	Variants    []variantTab
}

// Renderer executes the embedded catalog templates.
type Renderer struct {
	tmpl        *template.Template
	blobBaseURL string
	now         func() time.Time

	// Debounce is the search box quiet period.
	Debounce time.Duration
}

// NewRenderer parses the embedded templates. blobBaseURL is the browsable
// upstream repository root used for card info links.
func NewRenderer(blobBaseURL string) (*Renderer, error) {
	funcs := template.FuncMap{
		"linkKindLabel": func(k catalog.LinkKind) string {
			if l, ok := linkKindLabels[k]; ok {
				return l
			}
			return string(k)
		},
		"count": format.FmtCount,
	}
	tmpl, err := template.New("render").Funcs(funcs).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("render: parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl, blobBaseURL: blobBaseURL, now: time.Now, Debounce: search.DefaultDebounce}, nil
}

// Cards projects devices into card view models.
func (r *Renderer) Cards(devices []catalog.Device) []Card {
	cards := make([]Card, 0, len(devices))
	now := r.now()
	for _, d := range devices {
		cards = append(cards, Card{
			Codename:     d.Codename,
			DisplayName:  d.DisplayName,
			OEM:          d.OEM,
			Image:        d.Image,
			VersionLabel: d.LatestVersionLabel,
			Updated:      format.FmtAgo(d.LatestTimestamp, now),
			Maintainer:   d.Maintainer,
			InfoURL:      r.infoURL(d),
			DetailURL:    DetailURL(d.Codename, -1),
		})
	}
	return cards
}

// Grid renders the device grid. A preview (limit > 0) gets a "View all
// devices" affordance; a full grid gets the search toolbar.
func (r *Renderer) Grid(devices []catalog.Device, limit int) (string, error) {
	g := Grid{Cards: r.Cards(devices), ShowAll: limit > 0 && len(devices) > 0}
	if limit <= 0 {
		ix := search.NewIndex(Entries(devices))
		facets := append([]search.Facet{{Name: search.AllFacet, Count: ix.Len()}}, ix.Facets()...)
		g.Toolbar = &Toolbar{Facets: facets, DebounceMs: r.Debounce.Milliseconds()}
	}
	return r.execute("grid", g)
}

// Results renders search matches without the toolbar.
func (r *Renderer) Results(devices []catalog.Device) (string, error) {
	return r.execute("results", r.Cards(devices))
}

// Loading renders the in-progress placeholder.
func (r *Renderer) Loading() string {
	out, _ := r.execute("loading", nil)
	return out
}

// LoadError renders the grid failure block.
func (r *Renderer) LoadError() string {
	out, _ := r.execute("load_error", nil)
	return out
}

// Detail renders the device dialog with its selected variant.
func (r *Renderer) Detail(d catalog.Detail) (string, error) {
	d = d.Select(d.Selected)
	view := detailView{
		Codename:    d.Device.Codename,
		DisplayName: d.Device.DisplayName,
		Model:       d.Device.Model,
		OEM:         d.Device.OEM,
		Maintainer:  d.Device.Maintainer,
		InfoURL:     d.InfoURL,
		Variant:     d.View(),
	}
	for i, v := range d.Device.Variants {
		label := v.Version
		if label == "" {
			label = "Variant " + strconv.Itoa(i+1)
		}
		view.Variants = append(view.Variants, variantTab{
			Label:  label,
			URL:    DetailURL(d.Device.Codename, i),
			Active: i == d.Selected,
		})
	}
	return r.execute("detail", view)
}

// Notification renders a dismissible error message.
func (r *Renderer) Notification(msg string) string {
	out, _ := r.execute("notification", msg)
	return out
}

// DetailURL is the dialog endpoint for a device; variant < 0 omits the
// variant parameter.
func DetailURL(codename string, variant int) string {
	u := "/devices/" + url.PathEscape(codename)
	if variant >= 0 {
		u += "?variant=" + strconv.Itoa(variant)
	}
	return u
}

func (r *Renderer) infoURL(d catalog.Device) string {
	if r.blobBaseURL == "" {
		return d.Source.RawURL
	}
	return r.blobBaseURL + "/" + url.PathEscape(d.Codename) + ".json"
}

func (r *Renderer) execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render: execute %s: %w", name, err)
	}
	return buf.String(), nil
}
