package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mishakrpv/shoplist/internal/apperr"
	"github.com/mishakrpv/shoplist/internal/database"
	"github.com/mishakrpv/shoplist/internal/models"
)

// GormRepo is the only writer of cart_lines. The partial unique index on
// (user_id, product_id) WHERE finalized_at IS NULL is the authoritative
// duplicate guard; see config.InitDB.
type GormRepo struct {
	DB *gorm.DB
}

func (r *GormRepo) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return database.Transaction(ctx, r.DB, fn)
}

func (r *GormRepo) ListAll(ctx context.Context) ([]models.CartLine, error) {
	var lines []models.CartLine
	db := database.FromContext(ctx, r.DB)
	if err := db.Order("user_id, finalized_at").Find(&lines).Error; err != nil {
		return nil, fmt.Errorf("list cart lines: %w", apperr.ErrStorage)
	}
	return lines, nil
}

func (r *GormRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error) {
	return r.listWhere(ctx, "user_id = ?", userID)
}

func (r *GormRepo) ListOpen(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error) {
	return r.listWhere(ctx, "user_id = ? AND finalized_at IS NULL", userID)
}

func (r *GormRepo) ListFinalized(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error) {
	return r.listWhere(ctx, "user_id = ? AND finalized_at IS NOT NULL", userID)
}

func (r *GormRepo) ListByOrderNumber(ctx context.Context, orderNumber int64) ([]models.CartLine, error) {
	return r.listWhere(ctx, "order_number = ?", orderNumber)
}

func (r *GormRepo) listWhere(ctx context.Context, query string, args ...any) ([]models.CartLine, error) {
	var lines []models.CartLine
	db := database.FromContext(ctx, r.DB)
	if err := db.Where(query, args...).Order("id").Find(&lines).Error; err != nil {
		return nil, fmt.Errorf("list cart lines: %w", apperr.ErrStorage)
	}
	return lines, nil
}

func (r *GormRepo) GetLine(ctx context.Context, id uuid.UUID) (*models.CartLine, error) {
	var line models.CartLine
	db := database.FromContext(ctx, r.DB)
	if err := db.Where("id = ?", id).First(&line).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("cart line %s: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("get cart line %s: %w", id, apperr.ErrStorage)
	}
	return &line, nil
}

func (r *GormRepo) Create(ctx context.Context, line *models.CartLine) error {
	db := database.FromContext(ctx, r.DB)
	if err := db.Create(line).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("open line for user %s product %s: %w",
				line.UserID, line.ProductID, apperr.ErrConflict)
		}
		return fmt.Errorf("create cart line: %w", apperr.ErrStorage)
	}
	return nil
}

func (r *GormRepo) Delete(ctx context.Context, id uuid.UUID) error {
	db := database.FromContext(ctx, r.DB)
	res := db.Where("id = ?", id).Delete(&models.CartLine{})
	if res.Error != nil {
		return fmt.Errorf("delete cart line %s: %w", id, apperr.ErrStorage)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("cart line %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (r *GormRepo) OrderNumberTaken(ctx context.Context, orderNumber int64) (bool, error) {
	var n int64
	db := database.FromContext(ctx, r.DB)
	if err := db.Model(&models.CartLine{}).Where("order_number = ?", orderNumber).Count(&n).Error; err != nil {
		return false, fmt.Errorf("check order number %d: %w", orderNumber, apperr.ErrStorage)
	}
	return n > 0, nil
}

// MarkFinalized stamps every open line of the user in one UPDATE, so the
// order number and timestamp are paired atomically on all of them.
func (r *GormRepo) MarkFinalized(ctx context.Context, userID uuid.UUID, orderNumber int64, storeID *string, now time.Time) (int64, error) {
	db := database.FromContext(ctx, r.DB)
	updates := map[string]any{
		"finalized_at": now,
		"order_number": orderNumber,
	}
	if storeID != nil {
		updates["store_id"] = *storeID
	}
	res := db.Model(&models.CartLine{}).
		Where("user_id = ? AND finalized_at IS NULL", userID).
		Updates(updates)
	if res.Error != nil {
		return 0, fmt.Errorf("finalize cart of user %s: %w", userID, apperr.ErrStorage)
	}
	return res.RowsAffected, nil
}

// MarkDelivered is a compare-and-set: only lines still undelivered match, so
// two concurrent fulfill calls cannot both report success.
func (r *GormRepo) MarkDelivered(ctx context.Context, orderNumber int64, now time.Time) (int64, error) {
	db := database.FromContext(ctx, r.DB)
	res := db.Model(&models.CartLine{}).
		Where("order_number = ? AND delivered_at IS NULL", orderNumber).
		Update("delivered_at", now)
	if res.Error != nil {
		return 0, fmt.Errorf("fulfill order %d: %w", orderNumber, apperr.ErrStorage)
	}
	return res.RowsAffected, nil
}
