package server

import (
	"context"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/vivabot-tech/lingualive/internal/observe"
)

// Options configures the HTTP surface.
type Options struct {
	// PreviewDir holds pre-rendered voice sample files named <voice>.wav.
	PreviewDir string

	// Metrics, when set, records request latency for API routes.
	Metrics *observe.Metrics
}

func Handler(staticFS fs.FS, hub *Hub, controller SessionController, flags FlagStore, opts Options) (http.Handler, error) {
	mux := http.NewServeMux()

	registerWSRoute(mux, hub)
	registerAPIRoutes(mux, controller, flags, opts.PreviewDir)

	fileServer := http.FileServer(http.FS(staticFS))
	mux.HandleFunc("/", serveSPA(fileServer))

	return withRequestMetrics(opts.Metrics, mux), nil
}

// withRequestMetrics records API request latency. Static asset and websocket
// traffic is left out to keep the histogram about the control surface.
func withRequestMetrics(m *observe.Metrics, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		next.ServeHTTP(w, r)
		m.HTTPRequestDuration.Record(context.Background(), time.Since(start).Seconds(),
			metric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.String("path", r.URL.Path),
			),
		)
	})
}

func serveSPA(fileServer http.Handler) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/ws" || r.URL.Path == "/metrics" {
			http.NotFound(w, r)
			return
		}

		if r.URL.Path == "/manifest.json" || r.URL.Path == "/manifest.webmanifest" {
			w.Header().Set("Content-Type", "application/manifest+json")
		}

		// Extensionless paths are client-side routes; serve the app shell.
		// Rewriting to "/" rather than "/index.html" avoids the file
		// server's canonical redirect for the index page.
		cleanPath := path.Clean(strings.TrimPrefix(r.URL.Path, "/"))
		if cleanPath == "." || cleanPath == "" || !strings.Contains(cleanPath, ".") {
			r.URL.Path = "/"
		} else {
			r.URL.Path = "/" + cleanPath
		}

		fileServer.ServeHTTP(w, r)
	}
}
