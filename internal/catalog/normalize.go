package catalog

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Shape tags the wrapper layout a raw record arrived in.
type Shape int

const (
	// ShapeBare is a flat device object with no wrapper.
	ShapeBare Shape = iota
	// ShapeFlat is {data: {...flat}}.
	ShapeFlat
	// ShapeResponse is {data: {response: [...]}} (or a bare {response: [...]}).
	ShapeResponse
)

func (s Shape) String() string {
	switch s {
	case ShapeFlat:
		return "flat"
	case ShapeResponse:
		return "response"
	default:
		return "bare"
	}
}

// Raw is one source record classified at the JSON boundary. Only the
// normaliser and the recency resolver look inside it.
type Raw struct {
	Shape        Shape
	Name         string
	RawURL       string
	LastModified *time.Time
	Top          map[string]any
	Data         map[string]any
	Response     []map[string]any
}

// FromWrapper classifies any decoded JSON value. It never fails: values that
// are not objects become an empty bare record.
func FromWrapper(v any) Raw {
	top, _ := v.(map[string]any)
	if top == nil {
		top = map[string]any{}
	}
	raw := Raw{Shape: ShapeBare, Top: top, Data: top}
	if data, ok := top["data"].(map[string]any); ok {
		raw.Shape = ShapeFlat
		raw.Data = data
		raw.Name = stringOf(top["name"])
		raw.RawURL = firstString(top, "rawUrl", "raw_url", "download_url")
		raw.LastModified = parseInstant(top["lastModified"])
	}
	if list, ok := raw.Data["response"].([]any); ok {
		raw.Shape = ShapeResponse
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				raw.Response = append(raw.Response, m)
			}
		}
	}
	return raw
}

// FromFile wraps a single device file the way the aggregate job does, so remote
// files and aggregate entries normalise identically.
func FromFile(name, rawURL string, lastModified *time.Time, v any) Raw {
	wrapper := map[string]any{"name": name, "data": v}
	if _, ok := v.(map[string]any); !ok {
		wrapper["data"] = map[string]any{}
	}
	raw := FromWrapper(wrapper)
	raw.RawURL = rawURL
	raw.LastModified = lastModified
	return raw
}

// DecodeAggregate parses an aggregate document: a JSON array of wrappers.
// A well-formed document that is not an array yields no records.
func DecodeAggregate(body []byte) ([]Raw, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("catalog: decode aggregate: %w", err)
	}
	list, _ := v.([]any)
	out := make([]Raw, 0, len(list))
	for _, item := range list {
		if item == nil {
			continue
		}
		out = append(out, FromWrapper(item))
	}
	return out, nil
}

// DecodeFile parses a single device file.
func DecodeFile(name, rawURL string, lastModified *time.Time, body []byte) (Raw, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return Raw{}, fmt.Errorf("catalog: decode %s: %w", name, err)
	}
	return FromFile(name, rawURL, lastModified, v), nil
}

// first returns the first response entry, or nil.
func (r Raw) first() map[string]any {
	if len(r.Response) == 0 {
		return nil
	}
	return r.Response[0]
}

// fields returns the maps consulted for device-level fields, in priority order.
func (r Raw) fields() []map[string]any {
	out := []map[string]any{r.Data}
	if f := r.first(); f != nil {
		out = append(out, f)
	}
	return out
}

// Normalize projects a raw record into a Device. It is total: missing or
// mistyped fields fall back to defaults.
func Normalize(r Raw) Device {
	if r.Data == nil {
		r.Data = map[string]any{}
	}
	fields := r.fields()

	codename := firstString(r.Data, "codename", "device", "id")
	if codename == "" {
		if f := r.first(); f != nil {
			codename = firstString(f, "codename", "device")
		}
	}
	if codename == "" {
		codename = fileStem(r.Name)
	}
	if codename == "" {
		codename = "unknown"
	}

	d := Device{
		Codename:    codename,
		DisplayName: firstAcross(fields, "name", "model", "device_name"),
		Model:       firstAcross(fields, "model"),
		OEM:         firstAcross(fields, "oem", "brand", "manufacturer"),
		Image:       firstAcross(fields, "image"),
		Source:      Source{RawURL: r.RawURL, OriginName: r.Name},
	}
	if d.DisplayName == "" {
		d.DisplayName = codename
	}
	if d.Image == "" {
		d.Image = DefaultImage(codename)
	}
	for _, m := range fields {
		if mt := maintainerFrom(m["maintainer"]); mt != nil {
			if mt.URL == "" {
				mt.URL = firstString(m, "maintainer_url")
			}
			d.Maintainer = mt
			break
		}
	}

	for _, entry := range r.Response {
		d.Variants = append(d.Variants, variantFrom(entry))
	}
	if len(d.Variants) == 0 {
		d.Variants = []Variant{variantFrom(r.Data)}
	}

	d.LatestTimestamp = Recency(r)
	d.LatestVersionLabel = versionLabel(r, d)
	return d
}

// DefaultImage is the conventional image path for a codename.
func DefaultImage(codename string) string {
	return "images/devices/" + codename + ".png"
}

func versionLabel(r Raw, d Device) string {
	if s := firstString(r.Data, "latestVersion"); s != "" {
		return dateOrText(s)
	}
	if r.LastModified != nil {
		return r.LastModified.UTC().Format("2006-01-02")
	}
	if s := firstString(r.Data, "version"); s != "" {
		return dateOrText(s)
	}
	if v := d.Default().Version; v != "" {
		return dateOrText(v)
	}
	return "Unknown"
}

func dateOrText(s string) string {
	if t := parseDate(s); t != nil {
		return t.Format("2006-01-02")
	}
	return s
}

type linkSpec struct {
	kind  LinkKind
	keys  []string
	label string
}

var linkSpecs = []linkSpec{
	{LinkSource, []string{"dt", "device_tree"}, "Device tree"},
	{LinkSource, []string{"common-dt", "common_tree"}, "Common tree"},
	{LinkSource, []string{"kernel"}, "Kernel"},
	{LinkSource, []string{"vendor"}, "Vendor"},
	{LinkSource, []string{"github"}, "GitHub"},
	{LinkSupport, []string{"forum"}, "Forum"},
	{LinkSupport, []string{"xda"}, "XDA"},
	{LinkSupport, []string{"telegram"}, "Telegram"},
	{LinkMore, []string{"changelog"}, "Changelog"},
	{LinkMore, []string{"firmware"}, "Firmware"},
	{LinkMore, []string{"gapps"}, "GApps"},
	{LinkMore, []string{"recovery"}, "Recovery"},
	{LinkMore, []string{"paypal", "donate"}, "Donate"},
}

var linkKinds = []LinkKind{LinkSource, LinkSupport, LinkMore}

func variantFrom(m map[string]any) Variant {
	v := Variant{
		Version:     firstString(m, "version"),
		Filename:    firstString(m, "filename"),
		DownloadURL: firstString(m, "url", "download", "download_url"),
		Size:        intField(m, "size"),
		Timestamp:   intField(m, "timestamp", "datetime"),
	}
	for _, kind := range linkKinds {
		var links []Link
		for _, spec := range linkSpecs {
			if spec.kind != kind {
				continue
			}
			if u := firstString(m, spec.keys...); u != "" {
				links = append(links, Link{Label: spec.label, URL: u})
			}
		}
		if len(links) > 0 {
			v.Links = append(v.Links, LinkGroup{Kind: kind, Links: links})
		}
	}
	return v
}

func maintainerFrom(v any) *Maintainer {
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return &Maintainer{Name: s}
		}
	case map[string]any:
		m := Maintainer{
			Name: firstString(t, "name", "username", "maintainer"),
			URL:  firstString(t, "url", "website"),
		}
		if m.Name != "" || m.URL != "" {
			return &m
		}
	}
	return nil
}

func stringOf(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	}
	return ""
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringOf(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func firstAcross(maps []map[string]any, keys ...string) string {
	for _, m := range maps {
		if s := firstString(m, keys...); s != "" {
			return s
		}
	}
	return ""
}

// numberOf accepts JSON numbers and digit strings.
func numberOf(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) || t >= 1<<63 || t < -(1<<63) {
			return 0, false
		}
		return int64(t), true
	case int64:
		return t, true
	case int:
		return int64(t), true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		if f, err := t.Float64(); err == nil {
			return numberOf(f)
		}
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func intField(m map[string]any, keys ...string) *int64 {
	for _, k := range keys {
		if n, ok := numberOf(m[k]); ok {
			return &n
		}
	}
	return nil
}

func parseInstant(v any) *time.Time {
	s := stringOf(v)
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.UTC()
		return &t
	}
	if t, err := http.ParseTime(s); err == nil {
		t = t.UTC()
		return &t
	}
	return parseDate(s)
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"20060102",
	"2006.01.02",
	"2006/01/02",
}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
