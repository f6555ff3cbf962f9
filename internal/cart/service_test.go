package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mishakrpv/shoplist/internal/apperr"
	"github.com/mishakrpv/shoplist/internal/catalog"
	"github.com/mishakrpv/shoplist/internal/config"
	"github.com/mishakrpv/shoplist/internal/metrics"
	"github.com/mishakrpv/shoplist/internal/models"
	"github.com/mishakrpv/shoplist/internal/ordernum"
)

type testEnv struct {
	DB  *gorm.DB
	Svc *Service
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One in-memory database per test; a second connection would see an
	// empty schema.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, config.Migrate(db))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := newTestDB(t)
	cat := &catalog.GormCatalog{DB: db}
	repo := &GormRepo{DB: db}
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())

	return &testEnv{
		DB:  db,
		Svc: NewService(repo, cat, ordernum.Rand{}, m),
	}
}

func (env *testEnv) createProduct(t *testing.T, name string, count int64) uuid.UUID {
	t.Helper()

	p := models.Product{Name: name, Description: "test_description", Price: 10, Count: count}
	require.NoError(t, env.DB.Create(&p).Error)
	return p.ID
}

func (env *testEnv) stockOf(t *testing.T, productID uuid.UUID) int64 {
	t.Helper()

	var p models.Product
	require.NoError(t, env.DB.Where("id = ?", productID).First(&p).Error)
	return p.Count
}

func TestAddLine_CreatesOpenLineWithQuantityOne(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	productID := env.createProduct(t, "keyboard", 5)

	line, err := env.Svc.AddLine(ctx, userID, productID)
	require.NoError(t, err)

	assert.Equal(t, userID, line.UserID)
	assert.Equal(t, productID, line.ProductID)
	assert.Equal(t, uint(1), line.Quantity)
	assert.Nil(t, line.FinalizedAt)
	assert.Nil(t, line.OrderNumber)

	open, err := env.Svc.ListOpenCart(ctx, userID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, line.ID, open[0].ID)
}

func TestAddLine_UnknownProduct(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Svc.AddLine(context.Background(), uuid.New(), uuid.New())
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAddLine_DuplicateProduct(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	productID := env.createProduct(t, "keyboard", 5)

	_, err := env.Svc.AddLine(ctx, userID, productID)
	require.NoError(t, err)

	_, err = env.Svc.AddLine(ctx, userID, productID)
	require.ErrorIs(t, err, apperr.ErrConflict)

	open, err := env.Svc.ListOpenCart(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestAddLine_DuplicateProductType(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	first := env.createProduct(t, "keyboard", 5)
	sameName := env.createProduct(t, "keyboard", 3)

	_, err := env.Svc.AddLine(ctx, userID, first)
	require.NoError(t, err)

	_, err = env.Svc.AddLine(ctx, userID, sameName)
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestAddLine_SameProductDifferentUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.createProduct(t, "keyboard", 5)

	_, err := env.Svc.AddLine(ctx, uuid.New(), productID)
	require.NoError(t, err)
	_, err = env.Svc.AddLine(ctx, uuid.New(), productID)
	require.NoError(t, err)
}

func TestAddLine_AllowedAgainAfterFinalize(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	productID := env.createProduct(t, "keyboard", 5)

	_, err := env.Svc.AddLine(ctx, userID, productID)
	require.NoError(t, err)
	_, err = env.Svc.Finalize(ctx, userID, nil)
	require.NoError(t, err)

	_, err = env.Svc.AddLine(ctx, userID, productID)
	require.NoError(t, err)
}

func TestRemoveLine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	productID := env.createProduct(t, "keyboard", 5)

	line, err := env.Svc.AddLine(ctx, userID, productID)
	require.NoError(t, err)

	require.NoError(t, env.Svc.RemoveLine(ctx, line.ID))

	open, err := env.Svc.ListOpenCart(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, open, 0)
}

func TestRemoveLine_NotFound(t *testing.T) {
	env := newTestEnv(t)

	err := env.Svc.RemoveLine(context.Background(), uuid.New())
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRemoveLine_FinalizedLine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	productID := env.createProduct(t, "keyboard", 5)

	line, err := env.Svc.AddLine(ctx, userID, productID)
	require.NoError(t, err)
	_, err = env.Svc.Finalize(ctx, userID, nil)
	require.NoError(t, err)

	err = env.Svc.RemoveLine(ctx, line.ID)
	require.ErrorIs(t, err, apperr.ErrInvalidState)

	history, err := env.Svc.ListOrderHistory(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestFinalize_EmptyCart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := env.Svc.Finalize(ctx, userID, nil)
	require.ErrorIs(t, err, apperr.ErrInvalidState)

	all, err := env.Svc.ListAllCarts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 0)
}

func TestFinalize_Success(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	productID := env.createProduct(t, "keyboard", 5)

	_, err := env.Svc.AddLine(ctx, userID, productID)
	require.NoError(t, err)

	result, err := env.Svc.Finalize(ctx, userID, nil)
	require.NoError(t, err)
	assert.Equal(t, MsgFinalized, result.Message)
	assert.GreaterOrEqual(t, result.OrderNumber, ordernum.Min)
	assert.Less(t, result.OrderNumber, ordernum.Max)

	assert.Equal(t, int64(4), env.stockOf(t, productID))

	open, err := env.Svc.ListOpenCart(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, open, 0)

	history, err := env.Svc.ListOrderHistory(ctx, userID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].FinalizedAt)
	require.NotNil(t, history[0].OrderNumber)
	assert.Equal(t, result.OrderNumber, *history[0].OrderNumber)
	assert.Nil(t, history[0].StoreID)
	assert.Nil(t, history[0].DeliveredAt)
}

func TestFinalize_SharedOrderNumberAcrossLines(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	first := env.createProduct(t, "keyboard", 5)
	second := env.createProduct(t, "mouse", 5)

	_, err := env.Svc.AddLine(ctx, userID, first)
	require.NoError(t, err)
	_, err = env.Svc.AddLine(ctx, userID, second)
	require.NoError(t, err)

	result, err := env.Svc.Finalize(ctx, userID, nil)
	require.NoError(t, err)

	history, err := env.Svc.ListOrderHistory(ctx, userID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, line := range history {
		require.NotNil(t, line.OrderNumber)
		assert.Equal(t, result.OrderNumber, *line.OrderNumber)
		require.NotNil(t, line.FinalizedAt)
		assert.Equal(t, *history[0].FinalizedAt, *line.FinalizedAt)
	}
}

func TestFinalize_InsufficientStockAbortsWholeCart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	inStock := env.createProduct(t, "keyboard", 5)
	soldOut := env.createProduct(t, "mouse", 0)

	_, err := env.Svc.AddLine(ctx, userID, inStock)
	require.NoError(t, err)
	_, err = env.Svc.AddLine(ctx, userID, soldOut)
	require.NoError(t, err)

	_, err = env.Svc.Finalize(ctx, userID, nil)
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)

	open, err := env.Svc.ListOpenCart(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, open, 2)
	for _, line := range open {
		assert.Nil(t, line.FinalizedAt)
		assert.Nil(t, line.OrderNumber)
	}
	assert.Equal(t, int64(5), env.stockOf(t, inStock))
	assert.Equal(t, int64(0), env.stockOf(t, soldOut))
}

func TestFinalize_WithStoreID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	productID := env.createProduct(t, "keyboard", 5)

	_, err := env.Svc.AddLine(ctx, userID, productID)
	require.NoError(t, err)

	storeID := "S1"
	result, err := env.Svc.Finalize(ctx, userID, &storeID)
	require.NoError(t, err)

	history, err := env.Svc.ListOrderHistory(ctx, userID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].StoreID)
	assert.Equal(t, "S1", *history[0].StoreID)

	message, err := env.Svc.Fulfill(ctx, result.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, MsgPickedUp, message)
}

func TestFulfill_DeliveryWithoutStore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	productID := env.createProduct(t, "keyboard", 5)

	_, err := env.Svc.AddLine(ctx, userID, productID)
	require.NoError(t, err)
	result, err := env.Svc.Finalize(ctx, userID, nil)
	require.NoError(t, err)

	message, err := env.Svc.Fulfill(ctx, result.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, MsgDelivered, message)

	history, err := env.Svc.ListOrderHistory(ctx, userID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].DeliveredAt)
}

func TestFulfill_UnknownOrderNumber(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Svc.Fulfill(context.Background(), 12345)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestFulfill_TwiceFailsAndKeepsTimestamp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	productID := env.createProduct(t, "keyboard", 5)

	_, err := env.Svc.AddLine(ctx, userID, productID)
	require.NoError(t, err)
	result, err := env.Svc.Finalize(ctx, userID, nil)
	require.NoError(t, err)

	_, err = env.Svc.Fulfill(ctx, result.OrderNumber)
	require.NoError(t, err)

	history, err := env.Svc.ListOrderHistory(ctx, userID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].DeliveredAt)
	firstDelivery := *history[0].DeliveredAt

	_, err = env.Svc.Fulfill(ctx, result.OrderNumber)
	require.ErrorIs(t, err, apperr.ErrInvalidState)

	history, err = env.Svc.ListOrderHistory(ctx, userID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, firstDelivery, *history[0].DeliveredAt)
}

// stubAllocator hands out a fixed sequence of candidates.
type stubAllocator struct {
	mu sync.Mutex
	ns []int64
}

func (a *stubAllocator) Next() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := a.ns[0]
	if len(a.ns) > 1 {
		a.ns = a.ns[1:]
	}
	return n
}

func TestFinalize_RetriesTakenOrderNumber(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.Svc.numbers = &stubAllocator{ns: []int64{11111, 11111, 22222}}

	firstUser := uuid.New()
	secondUser := uuid.New()
	first := env.createProduct(t, "keyboard", 5)
	second := env.createProduct(t, "mouse", 5)

	_, err := env.Svc.AddLine(ctx, firstUser, first)
	require.NoError(t, err)
	result, err := env.Svc.Finalize(ctx, firstUser, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(11111), result.OrderNumber)

	_, err = env.Svc.AddLine(ctx, secondUser, second)
	require.NoError(t, err)
	result, err = env.Svc.Finalize(ctx, secondUser, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(22222), result.OrderNumber)
}

func TestAddLine_ConcurrentSameProduct(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	productID := env.createProduct(t, "keyboard", 5)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Svc.AddLine(ctx, userID, productID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, apperr.ErrConflict)
		}
	}
	assert.Equal(t, 1, succeeded)

	open, err := env.Svc.ListOpenCart(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestListAllCarts_AllUsersAllStatuses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	firstUser := uuid.New()
	secondUser := uuid.New()
	first := env.createProduct(t, "keyboard", 5)
	second := env.createProduct(t, "mouse", 5)

	_, err := env.Svc.AddLine(ctx, firstUser, first)
	require.NoError(t, err)
	_, err = env.Svc.AddLine(ctx, secondUser, second)
	require.NoError(t, err)
	_, err = env.Svc.Finalize(ctx, secondUser, nil)
	require.NoError(t, err)

	all, err := env.Svc.ListAllCarts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := env.Svc.ListCarts(ctx, secondUser)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.NotNil(t, mine[0].FinalizedAt)
}
