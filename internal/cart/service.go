// Package cart implements the cart/order lifecycle: which products may enter
// a user's open cart, how the cart atomically becomes an order, and how the
// order advances to delivered or picked up.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mishakrpv/shoplist/internal/apperr"
	"github.com/mishakrpv/shoplist/internal/catalog"
	"github.com/mishakrpv/shoplist/internal/metrics"
	"github.com/mishakrpv/shoplist/internal/models"
	"github.com/mishakrpv/shoplist/internal/ordernum"
)

// Every line carries quantity 1 in this version.
const lineQuantity = 1

const allocAttempts = 5

const (
	MsgFinalized = "cart finalized successfully"
	MsgPickedUp  = "picked up in store"
	MsgDelivered = "delivered to customer address"
)

type FinalizeResult struct {
	OrderNumber int64  `json:"order_number"`
	Message     string `json:"message"`
}

// Service enforces all cart-line state transitions. Cart-mutating operations
// are serialized per user, so the duplicate check and the finalize unit of
// work cannot race each other for the same cart.
type Service struct {
	repo    *GormRepo
	catalog catalog.ProductCatalog
	numbers ordernum.Allocator
	metrics *metrics.CartMetrics

	mu    sync.Mutex
	users map[uuid.UUID]*sync.Mutex
}

func NewService(repo *GormRepo, cat catalog.ProductCatalog, numbers ordernum.Allocator, m *metrics.CartMetrics) *Service {
	return &Service{
		repo:    repo,
		catalog: cat,
		numbers: numbers,
		metrics: m,
		users:   make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *Service) userLock(userID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.users[userID]
	if !ok {
		l = &sync.Mutex{}
		s.users[userID] = l
	}
	return l
}

func (s *Service) ListAllCarts(ctx context.Context) ([]models.CartLine, error) {
	return s.repo.ListAll(ctx)
}

func (s *Service) ListCarts(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) ListOpenCart(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error) {
	return s.repo.ListOpen(ctx, userID)
}

func (s *Service) ListOrderHistory(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error) {
	return s.repo.ListFinalized(ctx, userID)
}

// AddLine puts one unit of the product into the user's open cart. It refuses
// a product already in the cart, and a different product whose catalog name
// matches one already there.
func (s *Service) AddLine(ctx context.Context, userID, productID uuid.UUID) (*models.CartLine, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	product, err := s.catalog.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	open, err := s.repo.ListOpen(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, l := range open {
		if l.ProductID == productID {
			return nil, fmt.Errorf("product %s already in cart of user %s: %w",
				productID, userID, apperr.ErrConflict)
		}
	}
	for _, l := range open {
		existing, err := s.catalog.FindByID(ctx, l.ProductID)
		if errors.Is(err, apperr.ErrNotFound) {
			// Line references a product the catalog no longer knows;
			// nothing to compare against.
			continue
		}
		if err != nil {
			return nil, err
		}
		if existing.Name == product.Name {
			return nil, fmt.Errorf("product type %q already in cart of user %s: %w",
				product.Name, userID, apperr.ErrConflict)
		}
	}

	line := &models.CartLine{
		UserID:    userID,
		ProductID: productID,
		Quantity:  lineQuantity,
	}
	if err := s.repo.Create(ctx, line); err != nil {
		return nil, err
	}

	s.metrics.LineAdded()
	return line, nil
}

// RemoveLine deletes a line that is still in the cart. Finalized lines are
// part of an order and cannot be removed.
func (s *Service) RemoveLine(ctx context.Context, lineID uuid.UUID) error {
	line, err := s.repo.GetLine(ctx, lineID)
	if err != nil {
		return err
	}

	lock := s.userLock(line.UserID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the user lock; a finalize may have claimed the line.
	line, err = s.repo.GetLine(ctx, lineID)
	if err != nil {
		return err
	}
	if !line.Open() {
		return fmt.Errorf("cart line %s: cannot remove from a finalized order: %w",
			lineID, apperr.ErrInvalidState)
	}

	if err := s.repo.Delete(ctx, lineID); err != nil {
		return err
	}

	s.metrics.LineRemoved()
	return nil
}

// Finalize turns the user's entire open cart into an order: one transaction
// that decrements stock for every line and stamps all of them with the same
// order number and timestamp. Any failure leaves the cart untouched.
func (s *Service) Finalize(ctx context.Context, userID uuid.UUID, storeID *string) (*FinalizeResult, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()

	var result *FinalizeResult
	err := s.repo.Transaction(ctx, func(txCtx context.Context) error {
		open, err := s.repo.ListOpen(txCtx, userID)
		if err != nil {
			return err
		}
		if len(open) == 0 {
			return fmt.Errorf("cart of user %s is empty: %w", userID, apperr.ErrInvalidState)
		}

		orderNumber, err := s.allocateOrderNumber(txCtx)
		if err != nil {
			return err
		}

		for _, line := range open {
			if err := s.catalog.DecrementStock(txCtx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		if _, err := s.repo.MarkFinalized(txCtx, userID, orderNumber, storeID, now); err != nil {
			return err
		}

		result = &FinalizeResult{OrderNumber: orderNumber, Message: MsgFinalized}
		return nil
	})
	if err != nil {
		s.metrics.FinalizeFailed()
		return nil, err
	}

	s.metrics.OrderFinalized(time.Since(start))
	return result, nil
}

// allocateOrderNumber retries the random draw against numbers already in use.
// Runs inside the finalize transaction, so the number it settles on is
// assigned before anyone else can observe it.
func (s *Service) allocateOrderNumber(ctx context.Context) (int64, error) {
	for i := 0; i < allocAttempts; i++ {
		n := s.numbers.Next()
		taken, err := s.repo.OrderNumberTaken(ctx, n)
		if err != nil {
			return 0, err
		}
		if !taken {
			return n, nil
		}
	}
	return 0, fmt.Errorf("no free order number after %d attempts: %w", allocAttempts, apperr.ErrStorage)
}

// Fulfill marks every line of the order delivered. The delivered_at update
// only matches undelivered lines, so a second call finds nothing to do and
// fails instead of silently re-delivering.
func (s *Service) Fulfill(ctx context.Context, orderNumber int64) (string, error) {
	var message string
	err := s.repo.Transaction(ctx, func(txCtx context.Context) error {
		lines, err := s.repo.ListByOrderNumber(txCtx, orderNumber)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return fmt.Errorf("order %d: %w", orderNumber, apperr.ErrNotFound)
		}

		affected, err := s.repo.MarkDelivered(txCtx, orderNumber, time.Now().UTC())
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("order %d already delivered: %w", orderNumber, apperr.ErrInvalidState)
		}

		message = MsgDelivered
		for _, l := range lines {
			if l.StoreID != nil {
				message = MsgPickedUp
				break
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.metrics.OrderFulfilled()
	return message, nil
}
