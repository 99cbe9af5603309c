package inventory

import "errors"

var (
	// ErrNoMatch means the conditional decrement matched nothing: the product is
	// missing or has less stock than requested.
	ErrNoMatch         = errors.New("inventory: insufficient stock or invalid product")
	ErrInvalidQuantity = errors.New("inventory: quantity must be greater than zero")
	// ErrConflict marks a unit of work that failed only because a concurrent commit won.
	// Callers may retry it.
	ErrConflict = errors.New("inventory: concurrent commit conflict")
)
