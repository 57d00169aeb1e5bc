package main

import (
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"alphadroid.org/devices-web/internal/handlers"
	mw "alphadroid.org/devices-web/internal/middleware"
	"alphadroid.org/devices-web/internal/nav"
	"alphadroid.org/devices-web/internal/observability"
	"alphadroid.org/devices-web/internal/render"
	"alphadroid.org/devices-web/internal/seo"
)

const siteName = "AlphaDroid"

// HomeHandler renders the shell with the root route. ?route= selects another
// hash for clients that cannot send their location hash; htmx requests fall
// back to the hash in HX-Current-URL.
func (a *app) HomeHandler(w http.ResponseWriter, r *http.Request) {
	route := r.URL.Query().Get("route")
	if route == "" {
		route = mw.CurrentHash(r)
	}
	a.navigate(w, r, nav.Normalize(route))
}

// NavHandler renders the content region for #{key}. htmx requests get the
// region plus an out-of-band header; others get the full shell.
func (a *app) NavHandler(w http.ResponseWriter, r *http.Request) {
	a.navigate(w, r, nav.Normalize(chi.URLParam(r, "key")))
}

func (a *app) navigate(w http.ResponseWriter, r *http.Request, hash string) {
	ctx := r.Context()
	sess := mw.GetSession(r)
	c := a.clients.get(sess.ID)

	page := render.NewPage()
	out := c.nav.Navigate(ctx, hash, page)
	// Side effects fill the grid; wait so the response carries it.
	out.Wait()
	if ctx.Err() != nil {
		return
	}
	if out.Stale || !c.nav.IsCurrent(out.Generation) {
		observability.FromContext(ctx).Debug("stale navigation discarded", zap.String("hash", out.Hash), zap.Uint64("generation", out.Generation))
		mw.SkipSwap(w)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	sess.SetHash(out.Hash)

	lang := mw.Lang(r)
	data := handlers.BuildPageData(lang, out.Hash, a.meta(r, lang, c))
	data.Content = template.HTML(page.HTML())
	data.Phase = page.Phase()
	data.ScrollTo = page.Anchor()
	data.NotFound = out.State == nav.StateNotFound
	data.Partial = mw.IsHTMX(ctx)

	status := http.StatusOK
	if data.NotFound {
		status = http.StatusNotFound
	}
	if data.Partial {
		execute(w, status, "fragment", data)
		return
	}
	execute(w, status, "base", data)
}

// meta builds page metadata; the device list is described when the session
// has rendered a grid.
func (a *app) meta(r *http.Request, lang string, c *client) seo.Meta {
	scheme := "http"
	if r.TLS != nil || a.cfg.Server.SecureCookies {
		scheme = "https"
	}
	base := scheme + "://" + r.Host
	desc := siteName
	if i18nBundle != nil {
		desc = i18nBundle.T(lang, "site.description")
	}
	m := seo.Default(siteName, desc, base)
	m.JSONLD = append(m.JSONLD,
		seo.JSON(seo.Organization(siteName, base, base+"/assets/img/logo.png")),
		seo.JSON(seo.WebSite(siteName, base, base+"/devices/search?q=")),
	)
	if devices := c.catalog.Lookup(c.catalog.Index().Entries()); len(devices) > 0 {
		items := make([]seo.ListItem, 0, len(devices))
		for _, d := range devices {
			items = append(items, seo.ListItem{Name: d.DisplayName, URL: base + render.DetailURL(d.Codename, -1), Image: base + "/" + d.Image})
		}
		m.JSONLD = append(m.JSONLD, seo.JSON(seo.ItemList("Supported devices", items)))
	}
	return m
}
