package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMid "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"alphadroid.org/devices-web/internal/observability"
)

// Logger emits one structured log line per request and stores a
// request-scoped logger on the context.
func Logger(base *zap.Logger) func(http.Handler) http.Handler {
	base = observability.OrNop(base)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()
			rid := chiMid.GetReqID(ctx)
			if rid != "" {
				ctx = WithRequestID(ctx, rid)
			}
			logger := base.With(
				zap.String("request_id", rid),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)
			ctx = observability.WithLogger(ctx, logger)
			r = r.WithContext(ctx)

			rw, ok := w.(*ResponseRecorder)
			if !ok {
				rw = NewResponseRecorder(w)
			}

			var panicked bool
			defer func() {
				status := rw.Status()
				if panicked && status < http.StatusInternalServerError {
					status = http.StatusInternalServerError
				}
				fields := []zap.Field{
					zap.String("route", routePattern(r)),
					zap.Int("status", status),
					zap.Duration("latency", time.Since(start)),
					zap.Int("bytes", rw.BytesWritten()),
					zap.String("remote_ip", clientIP(r)),
					zap.Bool("htmx", IsHTMX(r.Context())),
				}
				switch {
				case panicked || status >= http.StatusInternalServerError:
					logger.Error("request", fields...)
				case status >= http.StatusBadRequest:
					logger.Warn("request", fields...)
				default:
					logger.Info("request", fields...)
				}
			}()
			defer func() {
				if rec := recover(); rec != nil {
					panicked = true
					panic(rec)
				}
			}()
			next.ServeHTTP(rw, r)
		})
	}
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func clientIP(r *http.Request) string {
	// Trust X-Forwarded-For set by the load balancer (last IP is client)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		p := strings.Split(xff, ",")
		return strings.TrimSpace(p[len(p)-1])
	}
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return xrip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
