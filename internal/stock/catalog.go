package stock

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fairyhunter13/estoque-service/internal/events"
	"github.com/fairyhunter13/estoque-service/internal/metrics"
	"github.com/fairyhunter13/estoque-service/internal/model"
	"github.com/fairyhunter13/estoque-service/internal/obs"
	"github.com/fairyhunter13/estoque-service/internal/store"
)

// Catalog registers products and restocks existing ones by name.
type Catalog struct {
	store   store.Store
	events  events.Publisher
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// NewCatalog wires a catalog; pub and m may be nil.
func NewCatalog(st store.Store, pub events.Publisher, m *metrics.Metrics) *Catalog {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Catalog{store: st, events: pub, metrics: m, tracer: obs.Tracer()}
}

// Upsert creates in when no product carries its name. Otherwise only the
// stored quantity is replaced by in.Quantity; description and price are kept.
func (c *Catalog) Upsert(ctx context.Context, in model.Product) (model.Product, error) {
	ctx, span := c.tracer.Start(ctx, "catalog.upsert", trace.WithAttributes(attribute.String("product.name", in.Name)))
	defer span.End()

	existing, err := c.store.FindByName(ctx, in.Name)
	switch {
	case err == nil:
		delta := in.Quantity - existing.Quantity
		existing.Quantity = in.Quantity
		saved, err := c.store.Save(ctx, existing)
		if err != nil {
			return model.Product{}, fmt.Errorf("update product %q: %w", in.Name, err)
		}
		c.after(ctx, "updated", saved, delta)
		return saved, nil
	case errors.Is(err, model.ErrNotFound):
		in.ID = 0
		saved, err := c.store.Save(ctx, in)
		if err != nil {
			return model.Product{}, fmt.Errorf("create product %q: %w", in.Name, err)
		}
		c.after(ctx, "created", saved, saved.Quantity)
		return saved, nil
	default:
		return model.Product{}, fmt.Errorf("lookup product %q: %w", in.Name, err)
	}
}

func (c *Catalog) after(ctx context.Context, action string, p model.Product, delta int64) {
	if c.metrics != nil {
		c.metrics.CatalogUpsert.WithLabelValues(action).Inc()
	}
	obs.Logger.Info("catalog_upsert",
		zap.String("action", action),
		zap.Int64("product_id", p.ID),
		zap.String("name", p.Name),
		zap.Int64("quantity", p.Quantity),
	)
	if err := c.events.Publish(ctx, events.New(events.TypeCatalogUpserted, p, delta)); err != nil {
		obs.Logger.Warn("event_enqueue_failed", zap.Int64("product_id", p.ID), zap.Error(err))
	}
}

// FindByName returns the product registered under name.
func (c *Catalog) FindByName(ctx context.Context, name string) (model.Product, error) {
	return c.store.FindByName(ctx, name)
}

// List returns every product ordered by id.
func (c *Catalog) List(ctx context.Context) ([]model.Product, error) {
	return c.store.List(ctx)
}
