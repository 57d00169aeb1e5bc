package catalog

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	json "github.com/goccy/go-json"
	"pgregory.net/rapid"
)

func decodeValue(t testing.TB, body string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return v
}

func TestFromWrapperClassifiesShapes(t *testing.T) {
	cases := map[string]struct {
		body string
		want Shape
	}{
		"bare":          {`{"codename":"a"}`, ShapeBare},
		"flat":          {`{"name":"a.json","data":{"codename":"a"}}`, ShapeFlat},
		"response":      {`{"name":"a.json","data":{"response":[{"device":"a"}]}}`, ShapeResponse},
		"bare response": {`{"response":[{"device":"a"}]}`, ShapeResponse},
		"array":         {`[1,2]`, ShapeBare},
		"null":          {`null`, ShapeBare},
		"data scalar":   {`{"data":"x"}`, ShapeBare},
	}
	for name, tc := range cases {
		raw := FromWrapper(decodeValue(t, tc.body))
		if raw.Shape != tc.want {
			t.Errorf("%s: shape = %s, want %s", name, raw.Shape, tc.want)
		}
	}
}

func TestNormalizeResponseShape(t *testing.T) {
	raw := FromWrapper(decodeValue(t, `{
		"name": "alpha.json",
		"rawUrl": "https://raw.example/alpha.json",
		"lastModified": "2024-01-01T00:00:00Z",
		"data": {"response": [
			{"device": "alpha", "oem": "Acme", "maintainer": "jo", "version": "1.0",
			 "filename": "alpha-1.0.zip", "size": 1024, "datetime": 1700000000,
			 "url": "https://dl.example/alpha-1.0.zip",
			 "forum": "https://forum.example/alpha", "dt": "https://git.example/dt", "paypal": "https://pay.example"},
			{"version": "0.9", "filename": "alpha-0.9.zip"},
			"not-an-object"
		]}
	}`))

	got := Normalize(raw)
	size := int64(1024)
	ts := int64(1700000000)
	latest := time.Unix(ts, 0).UTC()
	want := Device{
		Codename:           "alpha",
		DisplayName:        "alpha",
		OEM:                "Acme",
		Maintainer:         &Maintainer{Name: "jo"},
		Image:              "images/devices/alpha.png",
		LatestTimestamp:    &latest,
		LatestVersionLabel: "2024-01-01",
		Variants: []Variant{
			{
				Version:     "1.0",
				Filename:    "alpha-1.0.zip",
				Size:        &size,
				Timestamp:   &ts,
				DownloadURL: "https://dl.example/alpha-1.0.zip",
				Links: []LinkGroup{
					{Kind: LinkSource, Links: []Link{{Label: "Device tree", URL: "https://git.example/dt"}}},
					{Kind: LinkSupport, Links: []Link{{Label: "Forum", URL: "https://forum.example/alpha"}}},
					{Kind: LinkMore, Links: []Link{{Label: "Donate", URL: "https://pay.example"}}},
				},
			},
			{Version: "0.9", Filename: "alpha-0.9.zip"},
		},
		Source: Source{RawURL: "https://raw.example/alpha.json", OriginName: "alpha.json"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Normalize mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeFlatShape(t *testing.T) {
	raw := FromWrapper(decodeValue(t, `{
		"name": "beta.json",
		"data": {"codename": "Beta", "name": "Beta Phone", "brand": "Bee",
			"maintainer": {"username": "bee", "website": "https://bee.example"},
			"timestamp": "1690000000", "latestVersion": "2024-02-03"}
	}`))
	got := Normalize(raw)
	if got.Codename != "Beta" || got.DisplayName != "Beta Phone" || got.OEM != "Bee" {
		t.Fatalf("unexpected identity fields: %+v", got)
	}
	if got.Maintainer == nil || got.Maintainer.Name != "bee" || got.Maintainer.URL != "https://bee.example" {
		t.Fatalf("unexpected maintainer %+v", got.Maintainer)
	}
	if got.LatestTimestamp == nil || got.LatestTimestamp.Unix() != 1690000000 {
		t.Fatalf("unexpected latest timestamp %v", got.LatestTimestamp)
	}
	if got.LatestVersionLabel != "2024-02-03" {
		t.Fatalf("unexpected version label %q", got.LatestVersionLabel)
	}
	if len(got.Variants) != 1 || got.Variants[0].Timestamp == nil {
		t.Fatalf("expected a placeholder variant carrying the timestamp, got %+v", got.Variants)
	}
	if got.Key() != "beta" {
		t.Fatalf("unexpected key %q", got.Key())
	}
}

func TestNormalizeBareShapeAndDefaults(t *testing.T) {
	got := Normalize(FromWrapper(decodeValue(t, `{"model":"Gamma X","id":"gamma","version":"20240105"}`)))
	if got.Codename != "gamma" || got.DisplayName != "Gamma X" || got.Model != "Gamma X" {
		t.Fatalf("unexpected device %+v", got)
	}
	if got.LatestVersionLabel != "2024-01-05" {
		t.Fatalf("unexpected label %q", got.LatestVersionLabel)
	}
	if got.LatestTimestamp == nil || !got.LatestTimestamp.Equal(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected recency %v", got.LatestTimestamp)
	}

	empty := Normalize(FromWrapper("not an object"))
	if empty.Codename != "unknown" || len(empty.Variants) != 1 || empty.LatestVersionLabel != "Unknown" {
		t.Fatalf("unexpected defaults %+v", empty)
	}
	if empty.Image != "images/devices/unknown.png" || empty.Maintainer != nil {
		t.Fatalf("unexpected defaults %+v", empty)
	}

	fromFile := Normalize(FromFile("Delta.JSON", "", nil, map[string]any{}))
	if fromFile.Codename != "delta" {
		t.Fatalf("expected filename stem codename, got %q", fromFile.Codename)
	}
}

func TestDecodeAggregate(t *testing.T) {
	raws, err := DecodeAggregate([]byte(`[{"name":"a.json","data":{"codename":"a"}}, null, {"codename":"b"}]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(raws) != 2 {
		t.Fatalf("expected null entries to be skipped, got %d", len(raws))
	}
	if raws, err := DecodeAggregate([]byte(`{"not":"array"}`)); err != nil || len(raws) != 0 {
		t.Fatalf("expected empty aggregate, got %v %v", raws, err)
	}
	if _, err := DecodeAggregate([]byte(`[{`)); err == nil {
		t.Fatalf("expected decode error for malformed document")
	}
}

func TestMaintainerUnmarshalAcceptsStringOrObject(t *testing.T) {
	var m Maintainer
	if err := json.Unmarshal([]byte(`"jo"`), &m); err != nil || m.Name != "jo" {
		t.Fatalf("string maintainer: %+v %v", m, err)
	}
	if err := json.Unmarshal([]byte(`{"maintainer":"kim","url":"https://kim.example"}`), &m); err != nil {
		t.Fatalf("object maintainer: %v", err)
	}
	if m.Name != "kim" || m.URL != "https://kim.example" {
		t.Fatalf("unexpected maintainer %+v", m)
	}
}

var fieldKeys = []string{
	"codename", "device", "id", "name", "model", "device_name", "oem", "brand",
	"manufacturer", "maintainer", "timestamp", "datetime", "version",
	"latestVersion", "size", "url", "image", "response", "data", "lastModified",
}

func scalarGen() *rapid.Generator[any] {
	return rapid.OneOf(
		rapid.Just[any](nil),
		rapid.Map(rapid.String(), func(s string) any { return s }),
		rapid.Map(rapid.Float64(), func(f float64) any { return f }),
		rapid.Map(rapid.Bool(), func(b bool) any { return b }),
		rapid.Map(rapid.SampledFrom([]string{
			"1700000000", "2024-01-02", "Tue, 02 Jan 2024 10:00:00 GMT", "2024-01-02T03:04:05Z", "",
		}), func(s string) any { return s }),
	)
}

func objectGen(inner *rapid.Generator[any]) *rapid.Generator[any] {
	return rapid.Map(rapid.MapOfN(rapid.SampledFrom(fieldKeys), inner, 0, 8), func(m map[string]any) any { return m })
}

func wrapperGen() *rapid.Generator[any] {
	scalar := scalarGen()
	value := rapid.OneOf(scalar, objectGen(scalar))
	record := objectGen(value)
	return rapid.OneOf(
		scalar,
		record,
		rapid.Map(record, func(d any) any {
			return map[string]any{"name": "x.json", "data": d, "lastModified": "2024-01-01T00:00:00Z"}
		}),
		rapid.Map(rapid.SliceOfN(value, 0, 4), func(items []any) any {
			return map[string]any{"data": map[string]any{"response": items}}
		}),
	)
}

func TestNumberOfRejectsOutOfRangeFloats(t *testing.T) {
	tests := []struct {
		in   float64
		want int64
		ok   bool
	}{
		{in: 1715506200, want: 1715506200, ok: true},
		{in: 1 << 62, want: 1 << 62, ok: true},
		{in: -(1 << 63), want: math.MinInt64, ok: true},
		{in: 1 << 63, ok: false},
		{in: float64(math.MaxInt64), ok: false},
		{in: -(1 << 64), ok: false},
		{in: math.Inf(1), ok: false},
		{in: math.NaN(), ok: false},
	}
	for _, tt := range tests {
		got, ok := numberOf(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("numberOf(%v) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNormalizeIsTotal(t *testing.T) {
	gen := wrapperGen()
	rapid.Check(t, func(t *rapid.T) {
		d := Normalize(FromWrapper(gen.Draw(t, "raw")))
		if d.Codename == "" {
			t.Fatalf("empty codename")
		}
		if d.DisplayName == "" {
			t.Fatalf("empty display name")
		}
		if len(d.Variants) == 0 {
			t.Fatalf("no variants")
		}
		if d.LatestVersionLabel == "" {
			t.Fatalf("empty version label")
		}
		if d.Image == "" {
			t.Fatalf("empty image")
		}
	})
}
