package middleware

import (
	"context"
	"net/http"
	"strings"

	"alphadroid.org/devices-web/internal/i18n"
)

// Locale resolves and stores the preferred language in the session and cookie
// `hl`. Responses vary on Accept-Language.
func Locale(bundle *i18n.Bundle) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Accept-Language")
			// make fallback available to request context for helpers
			ctx := context.WithValue(r.Context(), ctxKeyLocaleFB, bundle.Fallback())
			r = r.WithContext(ctx)
			s := GetSession(r)
			if q := r.URL.Query().Get("hl"); q != "" {
				q = bundle.Match(strings.ToLower(q))
				if s.Locale != q {
					s.Locale = q
					s.MarkDirty()
				}
				http.SetCookie(w, &http.Cookie{Name: "hl", Value: q, Path: "/", SameSite: http.SameSiteLaxMode})
			} else if s.Locale == "" {
				// cookie or Accept-Language
				if c, err := r.Cookie("hl"); err == nil && c.Value != "" {
					s.Locale = bundle.Match(strings.ToLower(c.Value))
				} else {
					s.Locale = bundle.Resolve(r.Header.Get("Accept-Language"))
				}
				s.MarkDirty()
			}
			if s.Locale != "" {
				w.Header().Set("Content-Language", s.Locale)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Lang returns current lang from session or the bundle fallback.
func Lang(r *http.Request) string {
	if s := GetSession(r); s != nil && s.Locale != "" {
		return s.Locale
	}
	if fb, ok := r.Context().Value(ctxKeyLocaleFB).(string); ok && fb != "" {
		return fb
	}
	return "en"
}
