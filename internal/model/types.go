// Package model defines domain types used by the service.
package model

import "github.com/shopspring/decimal"

// Product is a catalog entry with its on-hand quantity.
//
// ID is assigned by the store on creation; zero means not yet persisted.
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	Quantity    int64
}

// OrderLine requests a decrement of Quantity units from a product.
type OrderLine struct {
	ProductID int64
	Quantity  int64
}

// Order is a transient list of lines applied in sequence.
type Order struct {
	Lines []OrderLine
}
