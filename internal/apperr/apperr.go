// Package apperr defines the error kinds the cart/order engine reports.
// Callers branch with errors.Is; the wrapped message carries the ids involved.
package apperr

import "errors"

var (
	ErrNotFound          = errors.New("not found")          // 404
	ErrConflict          = errors.New("conflict")           // 409
	ErrInvalidState      = errors.New("invalid state")      // 422
	ErrInsufficientStock = errors.New("insufficient stock") // 409
	ErrStorage           = errors.New("storage failure")    // 500
)
