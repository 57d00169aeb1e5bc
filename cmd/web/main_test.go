package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"alphadroid.org/devices-web/internal/config"
	"alphadroid.org/devices-web/internal/i18n"
	"alphadroid.org/devices-web/internal/nav"
)

// newTestApp builds the app the way main() does, against the repository's
// site fixtures. The upstream repository is a local server that knows no devices.
func newTestApp(t *testing.T, env map[string]string) (*app, http.Handler) {
	t.Helper()
	// ensure templates reparse each request and set correct paths
	devMode = true
	templatesDir = "../../templates"
	publicDir = "../../public"
	if _, err := parseTemplates(); err != nil {
		t.Fatalf("parseTemplates failed: %v", err)
	}
	var err error
	i18nBundle, err = i18n.Load(os.DirFS("../../locales"), "en", supportedLocales)
	if err != nil {
		t.Fatalf("load i18n: %v", err)
	}

	upstream := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(upstream.Close)

	values := map[string]string{
		"WEB_SITE_DIR":            "../../site",
		"WEB_NAV_SETTLE":          "0s",
		"WEB_REMOTE_LISTING_URL":  upstream.URL + "/contents/",
		"WEB_REMOTE_RAW_BASE_URL": upstream.URL + "/raw",
		"WEB_SEARCH_DEBOUNCE":     "300ms",
	}
	for k, v := range env {
		values[k] = v
	}
	cfg, err := config.Load(config.WithEnvFile(""), config.WithoutSystemEnv(), config.WithEnvMap(values))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	a, closeApp, err := newApp(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(closeApp)
	return a, a.routes()
}

func get(t *testing.T, h http.Handler, target string, hx bool, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Accept-Language", "en")
	if hx {
		req.Header.Set("HX-Request", "true")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func parse(t *testing.T, rec *httptest.ResponseRecorder) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rec.Body.String()))
	if err != nil {
		t.Fatalf("parse body: %v", err)
	}
	return doc
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "ALPHADROID_WEB_SESSION" {
			return c
		}
	}
	t.Fatalf("missing session cookie; headers=%v", rec.Result().Header["Set-Cookie"])
	return nil
}

func TestHealthzOK(t *testing.T) {
	_, srv := newTestApp(t, nil)
	rec := get(t, srv, "/healthz", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body=%s", rec.Code, rec.Body.String())
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "ok" {
		t.Fatalf("expected body 'ok', got %q", got)
	}
}

func TestHomeRendersShellWithPreview(t *testing.T) {
	_, srv := newTestApp(t, nil)
	rec := get(t, srv, "/", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body=%s", rec.Code, rec.Body.String())
	}
	doc := parse(t, rec)
	if got := doc.Find("title").Text(); got != "AlphaDroid" {
		t.Fatalf("expected title AlphaDroid, got %q", got)
	}
	if !doc.Find(`#site-header a[data-nav="home"]`).HasClass("active") {
		t.Fatalf("expected home nav item to be active")
	}
	if got := doc.Find(`a[data-nav="devices"] span`).Text(); got != "Devices" {
		t.Fatalf("expected localized nav label 'Devices', got %q", got)
	}
	if _, oob := doc.Find("#site-header").Attr("hx-swap-oob"); oob {
		t.Fatalf("full pages must not mark the header out of band")
	}
	// Three upstream records plus one override-only device.
	if n := doc.Find("#content .devices-container article.device-card").Length(); n != 4 {
		t.Fatalf("expected 4 preview cards, got %d", n)
	}
	if doc.Find(`.devices-container a[hx-get="/nav/devices"]`).Length() != 1 {
		t.Fatalf("expected the view-all link on the home preview")
	}
	if doc.Find("#device-search").Length() != 0 {
		t.Fatalf("preview grids carry no search toolbar")
	}
	if n := doc.Find(`script[type="application/ld+json"]`).Length(); n != 3 {
		t.Fatalf("expected organization, website and item list JSON-LD, got %d", n)
	}
}

func TestHomeHonoursLocale(t *testing.T) {
	_, srv := newTestApp(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/?route=about", nil)
	req.Header.Set("Accept-Language", "ja")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	doc := parse(t, rec)
	if got := doc.Find(`a[data-nav="about"] span`).Text(); got != "概要" {
		t.Fatalf("expected Japanese nav label, got %q", got)
	}
	if got, _ := doc.Find("html").Attr("lang"); got != "ja" {
		t.Fatalf("expected lang=ja, got %q", got)
	}
	if !strings.Contains(doc.Find("#content").Text(), "community project") {
		t.Fatalf("expected about fragment in content; body=%s", rec.Body.String())
	}
}

func TestNavDevicesPartialCarriesFullGrid(t *testing.T) {
	_, srv := newTestApp(t, nil)
	rec := get(t, srv, "/nav/devices", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body=%s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if strings.Contains(body, "<html") {
		t.Fatalf("htmx swaps must not include the layout")
	}
	doc := parse(t, rec)
	if _, oob := doc.Find("#site-header").Attr("hx-swap-oob"); !oob {
		t.Fatalf("expected out-of-band header in partial")
	}
	if !doc.Find(`a[data-nav="devices"]`).HasClass("active") {
		t.Fatalf("expected devices nav item to be active")
	}
	if got, _ := doc.Find("#content").Attr("class"); got != string(nav.PhaseEntering) {
		t.Fatalf("expected entering phase, got %q", got)
	}
	cards := doc.Find("#device-results article.device-card")
	if cards.Length() != 4 {
		t.Fatalf("expected 4 cards, got %d", cards.Length())
	}
	if got, _ := cards.First().Attr("data-codename"); got != "lemonadep" {
		t.Fatalf("expected newest device first, got %q", got)
	}
	if got, _ := doc.Find("#device-search").Attr("hx-trigger"); got != "keyup changed delay:300ms, search" {
		t.Fatalf("unexpected search trigger %q", got)
	}
	var facets []string
	doc.Find(".device-facets button").Each(func(_ int, s *goquery.Selection) {
		facets = append(facets, s.AttrOr("data-facet", ""))
	})
	if strings.Join(facets, ",") != "All,OnePlus,Google,Xiaomi" {
		t.Fatalf("unexpected facets %v", facets)
	}
	if doc.Find(`.devices-container a[hx-get="/nav/devices"]`).Length() != 0 {
		t.Fatalf("full grids have no view-all link")
	}
	sessionCookie(t, rec)
}

func TestNavDownloadAliasesDevices(t *testing.T) {
	_, srv := newTestApp(t, nil)
	doc := parse(t, get(t, srv, "/nav/download", true))
	if doc.Find("#device-results article").Length() != 4 {
		t.Fatalf("expected the full grid for #download")
	}
	if hash, _ := doc.Find("#content").Attr("data-hash"); hash != "#download" {
		t.Fatalf("expected #download hash, got %q", hash)
	}
}

func TestNavFeaturesScrolls(t *testing.T) {
	_, srv := newTestApp(t, nil)
	doc := parse(t, get(t, srv, "/nav/features", true))
	if got, _ := doc.Find("#content").Attr("data-scroll-to"); got != "features" {
		t.Fatalf("expected scroll target features, got %q", got)
	}
	if doc.Find("#features").Length() != 1 {
		t.Fatalf("expected home fragment for #features")
	}
	if !doc.Find(`a[data-nav="features"]`).HasClass("active") {
		t.Fatalf("expected features nav item to be active")
	}
}

func TestNavUnknownRendersNotFound(t *testing.T) {
	_, srv := newTestApp(t, nil)
	rec := get(t, srv, "/nav/nope", true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	doc := parse(t, rec)
	if state, _ := doc.Find("#content").Attr("data-state"); state != "not_found" {
		t.Fatalf("expected not_found state, got %q", state)
	}
	if !strings.Contains(doc.Find("#content").Text(), "does not exist") {
		t.Fatalf("expected 404 fragment; body=%s", rec.Body.String())
	}
}

func TestStaleNavigationSkipsSwap(t *testing.T) {
	_, srv := newTestApp(t, map[string]string{"WEB_NAV_SETTLE": "300ms"})
	cookie := sessionCookie(t, get(t, srv, "/healthz", false))

	var (
		wg    sync.WaitGroup
		first *httptest.ResponseRecorder
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = get(t, srv, "/nav/about", true, cookie)
	}()
	time.Sleep(100 * time.Millisecond)
	second := get(t, srv, "/nav/contact", true, cookie)
	wg.Wait()

	if first.Code != http.StatusNoContent || first.Header().Get("HX-Reswap") != "none" {
		t.Fatalf("expected superseded navigation to skip its swap, got %d %q", first.Code, first.Header().Get("HX-Reswap"))
	}
	if second.Code != http.StatusOK || !strings.Contains(second.Body.String(), "Reach the maintainers") {
		t.Fatalf("expected latest navigation to render contact, got %d", second.Code)
	}
}

func TestOverlappingDeviceNavigationsRenderOneGrid(t *testing.T) {
	_, srv := newTestApp(t, map[string]string{"WEB_NAV_SETTLE": "300ms"})
	cookie := sessionCookie(t, get(t, srv, "/healthz", false))

	var (
		wg    sync.WaitGroup
		first *httptest.ResponseRecorder
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = get(t, srv, "/nav/devices", true, cookie)
	}()
	time.Sleep(100 * time.Millisecond)
	second := get(t, srv, "/nav/devices", true, cookie)
	wg.Wait()

	if first.Code != http.StatusNoContent || first.Header().Get("HX-Reswap") != "none" {
		t.Fatalf("expected superseded navigation to skip its swap, got %d %q", first.Code, first.Header().Get("HX-Reswap"))
	}
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200 for latest navigation, got %d; body=%s", second.Code, second.Body.String())
	}
	if n := parse(t, second).Find("#device-results article.device-card").Length(); n != 4 {
		t.Fatalf("expected full grid of 4 cards, got %d", n)
	}
}

func TestNavigationBurstNeverFails(t *testing.T) {
	_, srv := newTestApp(t, nil)
	cookie := sessionCookie(t, get(t, srv, "/healthz", false))

	const n = 16
	recs := make([]*httptest.ResponseRecorder, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			target := "/nav/devices"
			if i%2 == 1 {
				target = "/nav/home"
			}
			recs[i] = get(t, srv, target, true, cookie)
		}(i)
	}
	wg.Wait()

	for i, rec := range recs {
		if rec.Code != http.StatusOK && rec.Code != http.StatusNoContent {
			t.Fatalf("request %d: expected 200 or 204, got %d; body=%s", i, rec.Code, rec.Body.String())
		}
	}
}

func TestSearchFiltersSessionCatalog(t *testing.T) {
	_, srv := newTestApp(t, nil)
	cookie := sessionCookie(t, get(t, srv, "/nav/devices", true))

	doc := parse(t, get(t, srv, "/devices/search?q=pixel&oem=All", true, cookie))
	var got []string
	doc.Find("article.device-card").Each(func(_ int, s *goquery.Selection) {
		got = append(got, s.AttrOr("data-codename", ""))
	})
	if strings.Join(got, ",") != "raven,cheetah" {
		t.Fatalf("expected pixel matches in render order, got %v", got)
	}

	doc = parse(t, get(t, srv, "/devices/search?oem=xiaomi", true, cookie))
	if n := doc.Find("article.device-card").Length(); n != 1 {
		t.Fatalf("expected one Xiaomi device, got %d", n)
	}
	if got := doc.Find("article.device-card h5").Text(); got != "Xiaomi POCO F1" {
		t.Fatalf("expected override model as display name, got %q", got)
	}

	rec := get(t, srv, "/devices/search?q=zzz", true, cookie)
	if !strings.Contains(rec.Body.String(), "No devices match your search") {
		t.Fatalf("expected no-match notice; body=%s", rec.Body.String())
	}
}

func TestSearchFollowsLatestRender(t *testing.T) {
	_, srv := newTestApp(t, map[string]string{"WEB_CATALOG_PREVIEW": "1"})
	cookie := sessionCookie(t, get(t, srv, "/nav/home", true))
	doc := parse(t, get(t, srv, "/devices/search", true, cookie))
	if n := doc.Find("article.device-card").Length(); n != 1 {
		t.Fatalf("expected search over the one-card preview, got %d", n)
	}
}

func TestDevicesGridEndpoint(t *testing.T) {
	_, srv := newTestApp(t, nil)
	doc := parse(t, get(t, srv, "/devices?limit=2", true))
	if n := doc.Find("article.device-card").Length(); n != 2 {
		t.Fatalf("expected 2 cards, got %d", n)
	}
	if doc.Find(`a[hx-get="/nav/devices"]`).Length() != 1 {
		t.Fatalf("expected view-all link on limited grid")
	}
}

func TestDetailRendersSelectedVariant(t *testing.T) {
	_, srv := newTestApp(t, nil)
	rec := get(t, srv, "/devices/RAVEN?variant=1", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body=%s", rec.Code, rec.Body.String())
	}
	doc := parse(t, rec)
	variant := doc.Find(".variant")
	if got, _ := variant.Attr("data-variant"); got != "1" {
		t.Fatalf("expected variant 1, got %q", got)
	}
	if !strings.Contains(variant.Text(), "AlphaDroid-raven-2.3-vanilla.zip") {
		t.Fatalf("expected vanilla build file; body=%s", rec.Body.String())
	}
	if got, _ := doc.Find("a.download").Attr("href"); got != "https://sourceforge.net/projects/alphadroid-project/files/raven" {
		t.Fatalf("expected fallback download url, got %q", got)
	}
	if doc.Find(".variant-tabs a").Length() != 2 {
		t.Fatalf("expected a tab per variant")
	}
}

func TestDetailAppliesOverrides(t *testing.T) {
	_, srv := newTestApp(t, nil)
	doc := parse(t, get(t, srv, "/devices/cheetah", true))
	if !strings.Contains(doc.Text(), "Pixel 7 Pro") {
		t.Fatalf("expected override-only device to resolve")
	}
	doc = parse(t, get(t, srv, "/devices/beryllium", true))
	if !strings.Contains(doc.Text(), "fern") {
		t.Fatalf("expected override maintainer on beryllium")
	}
}

func TestDetailUnknownDeviceNotifies(t *testing.T) {
	_, srv := newTestApp(t, nil)
	rec := get(t, srv, "/devices/zzz", true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if got := rec.Header().Get("HX-Retarget"); got != "#notifications" {
		t.Fatalf("expected retarget to notifications, got %q", got)
	}
	doc := parse(t, rec)
	if doc.Find(`[role="alert"]`).Length() != 1 || !strings.Contains(doc.Text(), "zzz") {
		t.Fatalf("expected notification naming the device; body=%s", rec.Body.String())
	}
}

func TestAssetsServed(t *testing.T) {
	_, srv := newTestApp(t, nil)
	rec := get(t, srv, "/assets/css/site.css", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("ETag") == "" {
		t.Fatalf("expected ETag on assets")
	}
}

func TestClientsPruneIdleSessions(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	created := 0
	c := newClients(time.Minute, func() *client {
		created++
		return &client{}
	})
	c.now = func() time.Time { return now }

	a := c.get("a")
	if c.get("a") != a || created != 1 {
		t.Fatalf("expected the same client for a session")
	}
	now = now.Add(30 * time.Second)
	c.get("b")
	now = now.Add(45 * time.Second)
	if n := c.prune(); n != 1 {
		t.Fatalf("expected one idle client pruned, got %d", n)
	}
	if c.len() != 1 {
		t.Fatalf("expected b to survive, got %d clients", c.len())
	}
	if c.get("a") == a {
		t.Fatalf("expected a fresh client after pruning")
	}
}
