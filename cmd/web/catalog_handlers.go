package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"alphadroid.org/devices-web/internal/catalog"
	mw "alphadroid.org/devices-web/internal/middleware"
	"alphadroid.org/devices-web/internal/observability"
	"alphadroid.org/devices-web/internal/search"
)

// DevicesHandler renders a device grid. ?limit= > 0 renders a preview.
func (a *app) DevicesHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 0 {
		limit = 0
	}
	c := a.clients.get(mw.GetSession(r).ID)
	markup, err := c.catalog.Render(r.Context(), limit)
	if err != nil {
		observability.FromContext(r.Context()).Warn("render devices failed", zap.Int("limit", limit), zap.Error(err))
		writeHTML(w, http.StatusBadGateway, a.renderer.LoadError())
		return
	}
	writeHTML(w, http.StatusOK, markup)
}

// SearchHandler filters the session's rendered catalog by ?q= and ?oem=.
// Requests arrive already debounced by the client, so the controller applies
// input immediately.
func (a *app) SearchHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c := a.clients.get(mw.GetSession(r).ID)
	ix := c.catalog.Index()
	if ix.Len() == 0 {
		if _, err := c.catalog.Render(ctx, 0); err != nil {
			observability.FromContext(ctx).Warn("search without catalog", zap.Error(err))
			writeHTML(w, http.StatusBadGateway, a.renderer.LoadError())
			return
		}
		ix = c.catalog.Index()
	}

	ctl := search.NewController(ix, search.WithDebounce(0))
	defer ctl.Close()
	q := r.URL.Query()
	if oem := q.Get("oem"); oem != "" {
		ctl.SelectFacet(oem)
	}
	var res search.Result
	if text := strings.TrimSpace(q.Get("q")); text != "" {
		ctl.Input(text)
		res = ctl.Confirm()
	} else {
		res = ctl.Clear()
	}

	markup, err := a.renderer.Results(c.catalog.Lookup(res.Matches))
	if err != nil {
		mw.WriteError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeHTML(w, http.StatusOK, markup)
}

// DetailHandler renders the device dialog. ?variant= selects a variant; an
// unknown device answers with a notification instead of a dialog.
func (a *app) DetailHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	codename := chi.URLParam(r, "codename")
	d, err := a.chain.Detail(ctx, codename)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			observability.FromContext(ctx).Info("device not found", zap.String("codename", codename))
			w.Header().Set("HX-Retarget", "#notifications")
			w.Header().Set("HX-Reswap", "beforeend")
			writeHTML(w, http.StatusNotFound, a.renderer.Notification(fmt.Sprintf("Device %q not found", codename)))
			return
		}
		mw.WriteError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	variant, _ := strconv.Atoi(r.URL.Query().Get("variant"))
	markup, err := a.renderer.Detail(d.Select(variant))
	if err != nil {
		mw.WriteError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeHTML(w, http.StatusOK, markup)
}

func writeHTML(w http.ResponseWriter, status int, markup string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(markup))
}
