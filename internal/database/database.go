// Package database carries a transaction-bound *gorm.DB through the context,
// so a multi-repository unit of work commits or rolls back as one.
package database

import (
	"context"

	"gorm.io/gorm"
)

type ctxKey struct{}

func IntoContext(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, ctxKey{}, tx)
}

// FromContext returns the transaction stored in ctx, or fallback when the
// caller is not inside a transaction.
func FromContext(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if v := ctx.Value(ctxKey{}); v != nil {
		if tx, ok := v.(*gorm.DB); ok {
			return tx
		}
	}
	return fallback.WithContext(ctx)
}

// Transaction runs fn inside a single transaction; every repository call made
// with the ctx passed to fn joins it.
func Transaction(ctx context.Context, db *gorm.DB, fn func(ctx context.Context) error) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(IntoContext(ctx, tx))
	})
}
