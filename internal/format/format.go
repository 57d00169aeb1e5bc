package format

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// FmtDate formats time in a locale-friendly short form.
func FmtDate(t time.Time, lang string) string {
	if t.IsZero() {
		return ""
	}
	switch strings.ToLower(lang) {
	case "ja":
		return t.Format("2006-01-02")
	default:
		return t.Format("Jan 2, 2006")
	}
}

// FmtISODate formats t as YYYY-MM-DD in UTC.
func FmtISODate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

// FmtSize renders a byte count, e.g. FmtSize(1288490189) => "1.3 GB".
// nil or negative sizes render as empty.
func FmtSize(size *int64) string {
	if size == nil || *size < 0 {
		return ""
	}
	return humanize.Bytes(uint64(*size))
}

// FmtAgo renders t relative to now, e.g. "3 days ago".
func FmtAgo(t *time.Time, now time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return humanize.RelTime(*t, now, "ago", "from now")
}

// FmtCount renders n with thousands separators.
func FmtCount(n int) string {
	return humanize.Comma(int64(n))
}
