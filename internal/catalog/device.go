// Package catalog resolves device records from the override database, the
// preloaded aggregate, the local aggregate document and the remote listing,
// normalising every raw shape into a single Device.
package catalog

import (
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Device is the canonical catalog record consumed by rendering and search.
type Device struct {
	Codename           string      `json:"codename"`
	DisplayName        string      `json:"displayName"`
	Model              string      `json:"model,omitempty"`
	OEM                string      `json:"oem,omitempty"`
	Maintainer         *Maintainer `json:"maintainer,omitempty"`
	Image              string      `json:"image"`
	LatestTimestamp    *time.Time  `json:"latestTimestamp,omitempty"`
	LatestVersionLabel string      `json:"latestVersionLabel"`
	Variants           []Variant   `json:"variants"`
	Source             Source      `json:"source"`
}

// Default returns the default (first) variant.
func (d Device) Default() Variant {
	if len(d.Variants) == 0 {
		return Variant{}
	}
	return d.Variants[0]
}

// Key returns the lower-cased codename used for case-insensitive matching.
func (d Device) Key() string {
	return strings.ToLower(strings.TrimSpace(d.Codename))
}

// Maintainer identifies who maintains a device build.
type Maintainer struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// UnmarshalJSON accepts either a bare name string or an object.
func (m *Maintainer) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if parsed := maintainerFrom(v); parsed != nil {
		*m = *parsed
	} else {
		*m = Maintainer{}
	}
	return nil
}

// Label returns the maintainer's display text.
func (m *Maintainer) Label() string {
	if m == nil {
		return ""
	}
	if m.Name != "" {
		return m.Name
	}
	return m.URL
}

// Variant is one build flavour of a device.
type Variant struct {
	Version     string      `json:"version,omitempty"`
	Filename    string      `json:"filename,omitempty"`
	Size        *int64      `json:"size,omitempty"`
	Timestamp   *int64      `json:"timestamp,omitempty"`
	DownloadURL string      `json:"downloadUrl,omitempty"`
	Links       []LinkGroup `json:"links,omitempty"`
}

// Time returns the variant's build time, if known.
func (v Variant) Time() *time.Time {
	if v.Timestamp == nil {
		return nil
	}
	t := time.Unix(*v.Timestamp, 0).UTC()
	return &t
}

// LinkKind names a link group.
type LinkKind string

const (
	LinkSource  LinkKind = "source"
	LinkSupport LinkKind = "support"
	LinkMore    LinkKind = "more"
)

// LinkGroup is an ordered set of labelled links. Empty groups are never emitted.
type LinkGroup struct {
	Kind  LinkKind `json:"kind"`
	Links []Link   `json:"links"`
}

// Link is a labelled URL.
type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Source records where a device record came from.
type Source struct {
	RawURL     string `json:"rawUrl,omitempty"`
	OriginName string `json:"originName,omitempty"`
}

// OriginStem returns the lower-cased origin filename without its .json suffix.
func (s Source) OriginStem() string {
	return fileStem(s.OriginName)
}

func fileStem(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	lower := strings.ToLower(name)
	return strings.TrimSuffix(lower, ".json")
}
