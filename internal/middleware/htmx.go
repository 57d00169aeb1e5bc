package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

// HTMX marks requests coming from htmx so handlers/middlewares can adapt responses
func HTMX(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		is := r.Header.Get("HX-Request") == "true"
		ctx := WithHTMX(r.Context(), is)
		// Responses differ by HX-Request; keep caches from mixing them.
		w.Header().Add("Vary", "HX-Request")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CurrentHash returns the location hash the htmx client reported, e.g.
// "#devices" for HX-Current-URL "https://host/#devices".
func CurrentHash(r *http.Request) string {
	raw := r.Header.Get("HX-Current-URL")
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Fragment == "" {
		return ""
	}
	return "#" + strings.TrimPrefix(u.Fragment, "#")
}

// SkipSwap tells htmx to discard the response body.
func SkipSwap(w http.ResponseWriter) {
	w.Header().Set("HX-Reswap", "none")
}
