package swagger

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/halfpace/pkg/logger"
)

// Error constants.
var (
	ErrServe = errors.New("swagger serve failed")
)

// RedocURL is where the API docs page loads ReDoc from.
const RedocURL = "https://cdn.redoc.ly/redoc/v2.1.5/bundles/redoc.standalone.js"

// Register attaches the API docs and the OpenAPI spec routes to mux.
// Routes:
//
//	GET /api-docs      -> ReDoc HTML
//	GET /openapi.yaml  -> Embedded OpenAPI spec
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	mux.HandleFunc("/api-docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		write(r.Context(), w, []byte(indexHTML))
	})

	mux.HandleFunc("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		write(r.Context(), w, OpenAPI)
	})
}

func write(ctx context.Context, w http.ResponseWriter, b []byte) {
	if _, err := w.Write(b); err != nil {
		logger.Get().Warn(ctx, "docs write failed", logger.Error(fmt.Errorf("%w: %w", ErrServe, err)))
	}
}

const indexHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8">
    <title>halfpace API Docs</title>
    <style>body{margin:0;padding:0}</style>
  </head>
  <body>
    <redoc id="redoc-container"></redoc>
    <script src="` + RedocURL + `"></script>
    <script>Redoc.init('/openapi.yaml', { suppressWarnings: true }, document.getElementById('redoc-container'));</script>
  </body>
</html>`
