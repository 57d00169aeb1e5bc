package catalog

import (
	"context"
	"errors"
	"testing"
)

const detailAggregate = `[
	{"name": "Foxy.json", "data": {"codename": "fox_global", "name": "Fox", "response": [
		{"version": "2.0", "size": 2000000000, "timestamp": 1700000000, "url": "https://dl.example/fox-2.zip", "telegram": "https://t.me/fox"},
		{"version": "1.9"}
	]}},
	{"name": "hare.json", "data": {"device": "Hare", "name": "Hare"}}
]`

func newDetailChain(t *testing.T, files map[string]string, remote *Remote) *Chain {
	t.Helper()
	return New(Options{
		Site:            siteFS(files),
		Remote:          remote,
		DownloadBaseURL: "https://files.example/project/files",
		BlobBaseURL:     "https://git.example/blob/master",
	})
}

func TestDetailMatchesOriginFilename(t *testing.T) {
	chain := newDetailChain(t, map[string]string{DefaultAggregatePath: detailAggregate}, nil)
	d, err := chain.Detail(context.Background(), "FOXY")
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if d.Device.Codename != "fox_global" || d.Tier != TierLocal {
		t.Fatalf("unexpected detail %+v", d)
	}
	if len(d.Device.Variants) != 2 {
		t.Fatalf("expected both variants, got %d", len(d.Device.Variants))
	}
	if d.InfoURL != "https://git.example/blob/master/fox_global.json" {
		t.Fatalf("unexpected info url %q", d.InfoURL)
	}

	byDevice, err := chain.Detail(context.Background(), "hare")
	if err != nil || byDevice.Device.DisplayName != "Hare" {
		t.Fatalf("expected device field match, got %+v %v", byDevice, err)
	}
}

func TestDetailReappliesOverride(t *testing.T) {
	files := map[string]string{
		DefaultAggregatePath: detailAggregate,
		DefaultOverridesPath: `{"overrides": {"fox_global": {"model": "Fox Ultra"}, "owl": {"oem": "Night"}}}`,
	}
	chain := newDetailChain(t, files, nil)
	d, err := chain.Detail(context.Background(), "foxy")
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if d.Device.DisplayName != "Fox Ultra" {
		t.Fatalf("override not re-applied: %+v", d.Device)
	}

	owl, err := chain.Detail(context.Background(), "OWL")
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if owl.Tier != TierOverrides || owl.Device.OEM != "Night" || len(owl.Device.Variants) != 1 {
		t.Fatalf("expected synthesized override device, got %+v", owl)
	}
}

func TestDetailFollowsOverrideRenames(t *testing.T) {
	files := map[string]string{
		DefaultAggregatePath: `[{"name": "fox.json", "data": {"codename": "fox", "name": "Fox", "response": [{"version": "1.0"}]}}]`,
		DefaultOverridesPath: `{"overrides": {"fox": {"codename": "fox_global"}, "owl": {"codename": "owl_eu", "model": "Owl"}}}`,
	}
	chain := newDetailChain(t, files, nil)

	res, err := chain.Load(context.Background(), 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := codenames(res.Devices); got != "fox_global,owl_eu" {
		t.Fatalf("unexpected grid codenames %s", got)
	}
	for _, d := range res.Devices {
		detail, err := chain.Detail(context.Background(), d.Codename)
		if err != nil {
			t.Fatalf("detail for grid codename %q: %v", d.Codename, err)
		}
		if detail.Device.Codename != d.Codename {
			t.Fatalf("detail codename %q, want %q", detail.Device.Codename, d.Codename)
		}
	}

	fox, _ := chain.Detail(context.Background(), "FOX_GLOBAL")
	if fox.Tier != TierLocal || fox.Device.DisplayName != "Fox" {
		t.Fatalf("expected upstream fox with override applied, got %+v", fox)
	}
	owl, _ := chain.Detail(context.Background(), "owl_eu")
	if owl.Tier != TierOverrides || owl.Device.DisplayName != "Owl" {
		t.Fatalf("expected synthesized owl, got %+v", owl)
	}
	if owl.InfoURL != "https://git.example/blob/master/owl_eu.json" {
		t.Fatalf("unexpected info url %q", owl.InfoURL)
	}
}

func TestDetailRemoteFallbackAndNotFound(t *testing.T) {
	srv := newRemoteServer(t, 0, nil)
	defer srv.Close()
	chain := newDetailChain(t, nil, &Remote{RawBaseURL: srv.URL + "/raw"})

	d, err := chain.Detail(context.Background(), "lynx")
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if d.Tier != TierRemote || d.Device.Codename != "lynx" {
		t.Fatalf("unexpected remote detail %+v", d)
	}

	missing := newDetailChain(t, map[string]string{DefaultAggregatePath: detailAggregate}, nil)
	if _, err := missing.Detail(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := missing.Detail(context.Background(), " "); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for blank codename, got %v", err)
	}
}

func TestDetailSelectIsPure(t *testing.T) {
	chain := newDetailChain(t, map[string]string{DefaultAggregatePath: detailAggregate}, nil)
	d, err := chain.Detail(context.Background(), "fox_global")
	if err != nil {
		t.Fatalf("detail: %v", err)
	}

	first := d.View()
	if first.Version != "2.0" || first.SizeLabel != "2.0 GB" || first.DateLabel != "2023-11-14" {
		t.Fatalf("unexpected default view %+v", first)
	}
	if first.DownloadURL != "https://dl.example/fox-2.zip" {
		t.Fatalf("unexpected download url %q", first.DownloadURL)
	}
	if len(first.Links) != 1 || first.Links[0].Kind != LinkSupport {
		t.Fatalf("unexpected links %+v", first.Links)
	}

	second := d.Select(1)
	if d.Selected != 0 {
		t.Fatalf("Select mutated the receiver")
	}
	view := second.View()
	if view.Version != "1.9" || view.SizeLabel != "" || view.Links != nil {
		t.Fatalf("unexpected second view %+v", view)
	}
	if view.DownloadURL != "https://files.example/project/files/fox_global" {
		t.Fatalf("expected fallback download url, got %q", view.DownloadURL)
	}
	if clamped := d.Select(7); clamped.Selected != 0 {
		t.Fatalf("expected out-of-range selection to clamp, got %d", clamped.Selected)
	}
}
