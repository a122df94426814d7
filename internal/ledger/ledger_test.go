package ledger

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/courselane/course_platform/internal/models"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Purchase{}))
	return &Ledger{DB: db}
}

func TestRecordAndIsEntitled(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	entitled, err := l.IsEntitled(ctx, 1, 10)
	require.NoError(t, err)
	require.False(t, entitled)

	require.NoError(t, l.Record(ctx, 1, 10, 499))

	entitled, err = l.IsEntitled(ctx, 1, 10)
	require.NoError(t, err)
	require.True(t, entitled)

	entitled, err = l.IsEntitled(ctx, 2, 10)
	require.NoError(t, err)
	require.False(t, entitled)
}

func TestGrantIsIdempotent(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Grant(ctx, 1, 10, 499))
	require.NoError(t, l.Grant(ctx, 1, 10, 499))
	require.NoError(t, l.Grant(ctx, 1, 10, 0))

	var count int64
	require.NoError(t, l.DB.Model(&models.Purchase{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	var p models.Purchase
	require.NoError(t, l.DB.First(&p).Error)
	require.EqualValues(t, 499, p.Price)
}

func TestGrantDifferentPairsCoexist(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Grant(ctx, 1, 10, 100))
	require.NoError(t, l.Grant(ctx, 1, 11, 200))
	require.NoError(t, l.Grant(ctx, 2, 10, 100))

	var count int64
	require.NoError(t, l.DB.Model(&models.Purchase{}).Count(&count).Error)
	require.EqualValues(t, 3, count)
}

func TestListEntitlements(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	ids, err := l.ListEntitlements(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, ids)

	require.NoError(t, l.Grant(ctx, 1, 10, 0))
	require.NoError(t, l.Grant(ctx, 1, 12, 250))
	require.NoError(t, l.Grant(ctx, 2, 11, 0))

	ids, err = l.ListEntitlements(ctx, 1)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint{10, 12}, ids)
}
