package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a product lookup resolves nothing.
	ErrNotFound = errors.New("product not found")
	// ErrInvalidQuantity is returned for order lines requesting zero or fewer units.
	ErrInvalidQuantity = errors.New("requested quantity must be positive")
)

// OutOfStockError reports a line whose decrement would drive quantity below zero.
type OutOfStockError struct {
	ProductID int64
	Name      string
	Available int64
	Requested int64
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("Produto %s fora de estoque", e.Name)
}

// IsOutOfStock reports whether err carries an OutOfStockError and returns it.
func IsOutOfStock(err error) (*OutOfStockError, bool) {
	var oos *OutOfStockError
	if errors.As(err, &oos) {
		return oos, true
	}
	return nil, false
}
