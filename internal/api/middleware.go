package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// requestLogger logs one line per request. Viewport routes carry the
// viewport id, and the SSE stream logs at Debug when it opens and again
// when the client goes away, since a stream lasts as long as its client.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		stream := strings.HasSuffix(r.URL.Path, "/sync/events")
		if stream {
			slog.Debug("sync stream opened", "remote", r.RemoteAddr, "feeds", r.URL.Query().Get("feeds"))
		}
		next.ServeHTTP(ww, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		}
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if id := rctx.URLParam("id"); id != "" {
				attrs = append(attrs, "viewport_id", id)
			}
		}
		switch {
		case stream:
			slog.Debug("sync stream closed", attrs...)
		case ww.Status() >= http.StatusInternalServerError:
			slog.Warn("http request", attrs...)
		default:
			slog.Info("http request", attrs...)
		}
	})
}
