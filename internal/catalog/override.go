package catalog

import (
	"fmt"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
)

// Override amends an upstream device. Empty fields leave the upstream value alone.
type Override struct {
	Codename   string      `json:"codename,omitempty"`
	Model      string      `json:"model,omitempty"`
	Maintainer *Maintainer `json:"maintainer,omitempty"`
	OEM        string      `json:"oem,omitempty"`
	Image      string      `json:"image,omitempty"`
}

// Apply returns d with every present override field taking precedence.
// Applying the same override twice yields the same device.
func (o Override) Apply(d Device) Device {
	out := d
	out.Variants = append([]Variant(nil), d.Variants...)
	if d.Maintainer != nil {
		m := *d.Maintainer
		out.Maintainer = &m
	}
	if c := strings.TrimSpace(o.Codename); c != "" {
		out.Codename = c
	}
	if m := strings.TrimSpace(o.Model); m != "" {
		out.Model = m
		out.DisplayName = m
	}
	if oem := strings.TrimSpace(o.OEM); oem != "" {
		out.OEM = oem
	}
	if img := strings.TrimSpace(o.Image); img != "" {
		out.Image = img
	}
	if o.Maintainer != nil && o.Maintainer.Label() != "" {
		m := *o.Maintainer
		out.Maintainer = &m
	}
	return out
}

// Synthesize builds a minimal one-variant device from an override with no
// upstream counterpart.
func (o Override) Synthesize(key string) Device {
	codename := strings.TrimSpace(o.Codename)
	if codename == "" {
		codename = key
	}
	if codename == "" {
		codename = "unknown"
	}
	base := Device{
		Codename:           codename,
		DisplayName:        codename,
		Image:              DefaultImage(codename),
		LatestVersionLabel: "Unknown",
		Variants:           []Variant{{}},
		Source:             Source{OriginName: key + ".json"},
	}
	return o.Apply(base)
}

// OverrideDB is the parsed override database keyed by lower-cased codename.
type OverrideDB struct {
	keys    []string
	entries map[string]Override
	// renamed maps an override's lower-cased codename to its key.
	renamed map[string]string
}

// ParseOverrideDB decodes {"overrides": {<codename>: {...}}}. Entries that are
// not objects are skipped. A document without "overrides" is a valid, empty DB.
func ParseOverrideDB(body []byte) (OverrideDB, error) {
	var doc struct {
		Overrides map[string]json.RawMessage `json:"overrides"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return OverrideDB{}, fmt.Errorf("catalog: decode override db: %w", err)
	}
	names := make([]string, 0, len(doc.Overrides))
	for name := range doc.Overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	db := OverrideDB{entries: make(map[string]Override, len(names)), renamed: make(map[string]string)}
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		var o Override
		if err := json.Unmarshal(doc.Overrides[name], &o); err != nil {
			continue
		}
		if _, seen := db.entries[key]; !seen {
			db.keys = append(db.keys, key)
		}
		db.entries[key] = o
	}
	sort.Strings(db.keys)
	for _, key := range db.keys {
		c := strings.ToLower(strings.TrimSpace(db.entries[key].Codename))
		if c == "" || c == key {
			continue
		}
		if _, taken := db.renamed[c]; !taken {
			db.renamed[c] = key
		}
	}
	return db, nil
}

// Len reports the number of override entries.
func (db OverrideDB) Len() int { return len(db.keys) }

// Keys returns the lower-cased keys in sorted order.
func (db OverrideDB) Keys() []string {
	return append([]string(nil), db.keys...)
}

// Lookup finds the override for codename, case-insensitively.
func (db OverrideDB) Lookup(codename string) (Override, bool) {
	o, ok := db.entries[strings.ToLower(strings.TrimSpace(codename))]
	return o, ok
}

// KeyFor returns the key of the override that renames a device to codename.
func (db OverrideDB) KeyFor(codename string) (string, bool) {
	key, ok := db.renamed[strings.ToLower(strings.TrimSpace(codename))]
	return key, ok
}

// ApplyTo re-applies the matching override, if any. Matching uses the origin
// filename then the codename, as Merge does.
func (db OverrideDB) ApplyTo(d Device) Device {
	if stem := d.Source.OriginStem(); stem != "" {
		if o, ok := db.Lookup(stem); ok {
			return o.Apply(d)
		}
	}
	if o, ok := db.Lookup(d.Codename); ok {
		return o.Apply(d)
	}
	return d
}

// Merge combines upstream records with the override database: every upstream
// device is kept (amended when an override matches by origin filename or
// codename) and overrides without an upstream counterpart are synthesized.
func (db OverrideDB) Merge(upstream []Raw) []Device {
	used := make(map[string]bool, len(db.keys))
	out := make([]Device, 0, len(upstream)+len(db.keys))
	for _, raw := range upstream {
		d := Normalize(raw)
		key := d.Source.OriginStem()
		o, ok := db.entries[key]
		if !ok || key == "" {
			key = d.Key()
			o, ok = db.entries[key]
		}
		if ok {
			used[key] = true
			d = o.Apply(d)
		}
		out = append(out, d)
	}
	for _, key := range db.keys {
		if used[key] {
			continue
		}
		out = append(out, db.entries[key].Synthesize(key))
	}
	return out
}
