// Package catalog is the product-catalog capability consumed by the cart
// engine: lookup by id and atomic stock decrement. Stock counters are owned
// here; nothing else writes them.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mishakrpv/shoplist/internal/apperr"
	"github.com/mishakrpv/shoplist/internal/database"
	"github.com/mishakrpv/shoplist/internal/models"
)

type ProductCatalog interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	DecrementStock(ctx context.Context, id uuid.UUID, quantity uint) error
}

type GormCatalog struct {
	DB *gorm.DB
}

func (c *GormCatalog) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	db := database.FromContext(ctx, c.DB)

	var product models.Product
	if err := db.Where("id = ?", id).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product %s: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("find product %s: %w", id, apperr.ErrStorage)
	}
	return &product, nil
}

// DecrementStock is a single conditional UPDATE, so two callers can never
// both observe sufficient stock and both succeed on the last unit.
func (c *GormCatalog) DecrementStock(ctx context.Context, id uuid.UUID, quantity uint) error {
	db := database.FromContext(ctx, c.DB)

	res := db.Model(&models.Product{}).
		Where("id = ? AND count >= ?", id, quantity).
		Update("count", gorm.Expr("count - ?", quantity))
	if res.Error != nil {
		return fmt.Errorf("decrement stock of product %s: %w", id, apperr.ErrStorage)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var exists int64
	if err := db.Model(&models.Product{}).Where("id = ?", id).Count(&exists).Error; err != nil {
		return fmt.Errorf("decrement stock of product %s: %w", id, apperr.ErrStorage)
	}
	if exists == 0 {
		return fmt.Errorf("product %s: %w", id, apperr.ErrNotFound)
	}
	return fmt.Errorf("product %s, want %d: %w", id, quantity, apperr.ErrInsufficientStock)
}
