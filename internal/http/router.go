package httpapi

import (
	"net/http"
)

// NewRouter registers HTTP routes and returns the handler with middleware.
func NewRouter(app *App) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /estoque", app.postProductHandler)
	mux.HandleFunc("GET /estoque", app.listProductsHandler)
	mux.HandleFunc("GET /estoque/{nome}", app.getProductHandler)
	mux.HandleFunc("POST /estoque/atualizar", app.postOrderHandler)
	mux.HandleFunc("GET /healthz", app.healthHandler)
	if app.Metrics != nil {
		mux.Handle("GET /metrics", app.Metrics.Handler())
	}
	mux.HandleFunc("GET /openapi.yaml", app.openapiHandler)
	mux.HandleFunc("GET /docs", app.docsHandler)
	return WithRequestID(WithLogging(app.Metrics, mux))
}
