package model

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestOutOfStockMessageNamesProduct(t *testing.T) {
	err := &OutOfStockError{ProductID: 1, Name: "Monitor", Available: 2, Requested: 5}
	if !strings.Contains(err.Error(), "Monitor") {
		t.Fatalf("expected product name in %q", err.Error())
	}
}

func TestIsOutOfStockThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("line 0: %w", &OutOfStockError{Name: "Teclado"})
	oos, ok := IsOutOfStock(wrapped)
	if !ok || oos.Name != "Teclado" {
		t.Fatalf("expected out of stock, got %v", wrapped)
	}
	if _, ok := IsOutOfStock(fmt.Errorf("x: %w", ErrNotFound)); ok {
		t.Fatalf("not found must not be classified as out of stock")
	}
	if errors.Is(wrapped, ErrNotFound) {
		t.Fatalf("out of stock must not match ErrNotFound")
	}
}
