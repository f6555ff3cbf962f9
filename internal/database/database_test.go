package database

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type row struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&row{}))
	return db
}

func TestTransaction_CommitsOnNil(t *testing.T) {
	db := newTestDB(t)

	err := Transaction(context.Background(), db, func(ctx context.Context) error {
		return FromContext(ctx, db).Create(&row{Name: "a"}).Error
	})
	require.NoError(t, err)

	var n int64
	require.NoError(t, db.Model(&row{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestTransaction_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	boom := errors.New("boom")

	err := Transaction(context.Background(), db, func(ctx context.Context) error {
		if err := FromContext(ctx, db).Create(&row{Name: "a"}).Error; err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int64
	require.NoError(t, db.Model(&row{}).Count(&n).Error)
	assert.Equal(t, int64(0), n)
}

func TestFromContext_FallsBackWithoutTx(t *testing.T) {
	db := newTestDB(t)

	got := FromContext(context.Background(), db)
	require.NotNil(t, got)
	require.NoError(t, got.Create(&row{Name: "a"}).Error)
}
