package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fairyhunter13/estoque-service/internal/config"
	httpopenapi "github.com/fairyhunter13/estoque-service/internal/http/openapi"
	"github.com/fairyhunter13/estoque-service/internal/metrics"
	"github.com/fairyhunter13/estoque-service/internal/model"
	"github.com/fairyhunter13/estoque-service/internal/obs"
)

const (
	msgRegistered = "Cadastrado com Sucesso"
	msgUpdated    = "Estoque Atualizado"
)

// Catalog is the catalog behaviour the handlers depend on.
type Catalog interface {
	Upsert(ctx context.Context, p model.Product) (model.Product, error)
	FindByName(ctx context.Context, name string) (model.Product, error)
	List(ctx context.Context) ([]model.Product, error)
}

// Engine applies orders to stock.
type Engine interface {
	ApplyOrder(ctx context.Context, order model.Order) error
}

type App struct {
	Cfg     config.Config
	Catalog Catalog
	Engine  Engine
	Metrics *metrics.Metrics
	closing atomic.Bool
	started time.Time
}

// productPayload is the wire form of a product.
type productPayload struct {
	Nome      string  `json:"nome"`
	Descricao string  `json:"descricao"`
	Preco     float64 `json:"preco"`
	Qtd       int64   `json:"qtd"`
}

type orderLinePayload struct {
	ID  int64 `json:"id"`
	Qtd int64 `json:"qtd"`
}

type orderPayload struct {
	Itens []orderLinePayload `json:"itens"`
}

func toPayload(p model.Product) productPayload {
	return productPayload{
		Nome:      p.Name,
		Descricao: p.Description,
		Preco:     p.Price.InexactFloat64(),
		Qtd:       p.Quantity,
	}
}

func NewApp(cfg config.Config, c Catalog, e Engine, m *metrics.Metrics) *App {
	return &App{Cfg: cfg, Catalog: c, Engine: e, Metrics: m, started: time.Now()}
}

// StartShutdown makes write endpoints answer 503.
func (a *App) StartShutdown() {
	a.closing.Store(true)
}

// decodeJSON enforces a JSON content type and rejects unknown fields.
// It writes the error response itself and reports whether decoding succeeded.
func (a *App) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if a.closing.Load() {
		WriteJSONError(w, http.StatusServiceUnavailable, "shutting_down", "")
		return false
	}
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		WriteJSONError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "expected application/json")
		return false
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

func (a *App) postProductHandler(w http.ResponseWriter, r *http.Request) {
	var in productPayload
	if !a.decodeJSON(w, r, &in) {
		return
	}
	in.Nome = strings.TrimSpace(in.Nome)
	if in.Nome == "" {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "nome is required")
		return
	}
	if in.Preco < 0 {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "preco must be >= 0")
		return
	}
	if in.Qtd < 0 {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "qtd must be >= 0")
		return
	}
	_, err := a.Catalog.Upsert(r.Context(), model.Product{
		Name:        in.Nome,
		Description: in.Descricao,
		Price:       decimal.NewFromFloat(in.Preco),
		Quantity:    in.Qtd,
	})
	if err != nil {
		a.storeFailure(w, r, "catalog_upsert_failed", err)
		return
	}
	writeText(w, http.StatusOK, msgRegistered)
}

func (a *App) getProductHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("nome")
	if name == "" {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
		return
	}
	p, err := a.Catalog.FindByName(r.Context(), name)
	if errors.Is(err, model.ErrNotFound) {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
		return
	}
	if err != nil {
		a.storeFailure(w, r, "catalog_lookup_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toPayload(p))
}

func (a *App) listProductsHandler(w http.ResponseWriter, r *http.Request) {
	all, err := a.Catalog.List(r.Context())
	if err != nil {
		a.storeFailure(w, r, "catalog_list_failed", err)
		return
	}
	out := make([]productPayload, 0, len(all))
	for _, p := range all {
		out = append(out, toPayload(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) postOrderHandler(w http.ResponseWriter, r *http.Request) {
	var in orderPayload
	if !a.decodeJSON(w, r, &in) {
		return
	}
	order := model.Order{Lines: make([]model.OrderLine, 0, len(in.Itens))}
	for _, it := range in.Itens {
		order.Lines = append(order.Lines, model.OrderLine{ProductID: it.ID, Quantity: it.Qtd})
	}
	err := a.Engine.ApplyOrder(r.Context(), order)
	if oos, ok := model.IsOutOfStock(err); ok {
		writeText(w, http.StatusBadRequest, oos.Error())
		return
	}
	switch {
	case err == nil:
		writeText(w, http.StatusOK, msgUpdated)
	case errors.Is(err, model.ErrInvalidQuantity):
		WriteJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, model.ErrNotFound):
		WriteJSONError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		a.storeFailure(w, r, "stock_update_failed", err)
	}
}

func (a *App) storeFailure(w http.ResponseWriter, r *http.Request, event string, err error) {
	obs.Logger.Error(event,
		zap.String("request_id", RequestIDFromContext(r.Context())),
		zap.Error(err),
	)
	WriteJSONError(w, http.StatusInternalServerError, "internal_error", "")
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"uptime_sec": time.Since(a.started).Seconds(),
	})
}

func (a *App) openapiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(httpopenapi.YAML)
}

func (a *App) docsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	html := `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Estoque API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui'
      });
    </script>
  </body>
</html>`
	_, _ = w.Write([]byte(html))
}
