package catalog

import (
	"sort"
	"time"
)

// Recency resolves the single "last updated" instant for a raw record.
// First applicable wins:
//  1. numeric timestamp on the first response entry
//  2. numeric timestamp on the data wrapper
//  3. transport last-modified attached to the wrapper
//  4. top-level numeric timestamp
//  5. a version string that parses as a calendar date
//
// nil means the record has no derivable recency.
func Recency(r Raw) *time.Time {
	if f := r.first(); f != nil {
		if n := intField(f, "timestamp", "datetime"); n != nil {
			return unix(*n)
		}
	}
	if r.Shape != ShapeBare {
		if n := intField(r.Data, "timestamp"); n != nil {
			return unix(*n)
		}
	}
	if r.LastModified != nil {
		t := r.LastModified.UTC()
		return &t
	}
	if n := intField(r.Top, "timestamp"); n != nil {
		return unix(*n)
	}
	if t := parseDate(firstString(r.Data, "version")); t != nil {
		return t
	}
	if f := r.first(); f != nil {
		return parseDate(firstString(f, "version"))
	}
	return nil
}

func unix(sec int64) *time.Time {
	t := time.Unix(sec, 0).UTC()
	return &t
}

// SortByRecency orders devices newest first. Undated devices follow every
// dated one and keep their relative order.
func SortByRecency(devices []Device) {
	sort.SliceStable(devices, func(i, j int) bool {
		return newer(devices[i].LatestTimestamp, devices[j].LatestTimestamp)
	})
}

func newer(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.After(*b)
	}
}
