// Package stock applies order decrements and catalog upserts against a product store.
package stock

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fairyhunter13/estoque-service/internal/events"
	"github.com/fairyhunter13/estoque-service/internal/metrics"
	"github.com/fairyhunter13/estoque-service/internal/model"
	"github.com/fairyhunter13/estoque-service/internal/obs"
	"github.com/fairyhunter13/estoque-service/internal/store"
)

// Engine decrements product quantities line by line.
//
// Each satisfied line is persisted before the next one is read, and the first
// failing line stops the order. Lines saved before the failure stay saved.
type Engine struct {
	store   store.Store
	events  events.Publisher
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// NewEngine wires an engine; pub and m may be nil.
func NewEngine(st store.Store, pub events.Publisher, m *metrics.Metrics) *Engine {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Engine{store: st, events: pub, metrics: m, tracer: obs.Tracer()}
}

// ApplyOrder applies every line of order in sequence.
//
// It returns a wrapped model.ErrInvalidQuantity before any write when a line
// requests zero or fewer units, a wrapped model.ErrNotFound for unknown
// products, and a *model.OutOfStockError when a line exceeds the stored
// quantity. Store failures are wrapped and returned as is.
func (e *Engine) ApplyOrder(ctx context.Context, order model.Order) (err error) {
	ctx, span := e.tracer.Start(ctx, "stock.apply_order",
		trace.WithAttributes(attribute.Int("order.lines", len(order.Lines))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		e.countOrder(err)
	}()

	for i, line := range order.Lines {
		if line.Quantity <= 0 {
			return fmt.Errorf("line %d (product %d, qtd %d): %w", i, line.ProductID, line.Quantity, model.ErrInvalidQuantity)
		}
	}
	for i, line := range order.Lines {
		if err := e.applyLine(ctx, i, line); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) applyLine(ctx context.Context, idx int, line model.OrderLine) error {
	ctx, span := e.tracer.Start(ctx, "stock.apply_line", trace.WithAttributes(
		attribute.Int("line.index", idx),
		attribute.Int64("product.id", line.ProductID),
		attribute.Int64("line.quantity", line.Quantity),
	))
	defer span.End()

	p, err := e.store.FindByID(ctx, line.ProductID)
	if err != nil {
		return fmt.Errorf("line %d: %w", idx, err)
	}
	remaining := p.Quantity - line.Quantity
	if remaining < 0 {
		if e.metrics != nil {
			e.metrics.OutOfStock.Inc()
		}
		obs.Logger.Info("out_of_stock",
			zap.Int64("product_id", p.ID),
			zap.String("name", p.Name),
			zap.Int64("available", p.Quantity),
			zap.Int64("requested", line.Quantity),
		)
		return &model.OutOfStockError{ProductID: p.ID, Name: p.Name, Available: p.Quantity, Requested: line.Quantity}
	}

	p.Quantity = remaining
	saved, err := e.store.Save(ctx, p)
	if err != nil {
		return fmt.Errorf("line %d: save product %d: %w", idx, p.ID, err)
	}
	span.SetAttributes(attribute.Int64("product.remaining", saved.Quantity))
	if e.metrics != nil {
		e.metrics.LinesApplied.Inc()
	}
	obs.Logger.Debug("stock_line_applied",
		zap.Int64("product_id", saved.ID),
		zap.Int64("requested", line.Quantity),
		zap.Int64("remaining", saved.Quantity),
	)
	if err := e.events.Publish(ctx, events.New(events.TypeStockAdjusted, saved, -line.Quantity)); err != nil {
		obs.Logger.Warn("event_enqueue_failed", zap.Int64("product_id", saved.ID), zap.Error(err))
	}
	return nil
}

func (e *Engine) countOrder(err error) {
	if e.metrics == nil {
		return
	}
	result := "applied"
	if err != nil {
		result = "rejected"
		if _, ok := model.IsOutOfStock(err); ok {
			result = "out_of_stock"
		}
	}
	e.metrics.Orders.WithLabelValues(result).Inc()
}
