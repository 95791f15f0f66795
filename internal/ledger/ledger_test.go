package ledger

import (
	"context"
	"testing"

	"incentive/internal/model"
	"incentive/internal/repository"
	"incentive/internal/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCreditEarnMovesAllCounters(t *testing.T) {
	db := testutil.NewDB(t)
	l := New(db)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "Alice", nil)

	var trans *model.PointTransaction
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		trans, err = l.Credit(ctx, tx, Entry{UserID: user.ID, Amount: 120, Type: model.TransactionTypeEarn, Description: "表单审核通过"})
		return err
	})
	require.NoError(t, err)

	require.Equal(t, int64(120), trans.Points)
	require.True(t, trans.Cumulative)
	require.Equal(t, int64(0), trans.BalanceBefore)
	require.Equal(t, int64(120), trans.BalanceAfter)
	require.NotEmpty(t, trans.TransactionNo)

	got := testutil.Points(t, db, user.ID)
	require.Equal(t, int64(120), got.TotalPoints)
	require.Equal(t, int64(120), got.AccomplishmentTotalPoints)
	require.Equal(t, int64(120), got.LifetimeTotalPoints)
}

func TestDebitSpendOnlyTouchesTotal(t *testing.T) {
	db := testutil.NewDB(t)
	l := New(db)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "Bob", nil)
	testutil.SeedPoints(t, db, user.ID, 200)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := l.Debit(ctx, tx, Entry{UserID: user.ID, Amount: 150, Type: model.TransactionTypeSpend})
		return err
	})
	require.NoError(t, err)

	got := testutil.Points(t, db, user.ID)
	require.Equal(t, int64(50), got.TotalPoints)
	require.Equal(t, int64(200), got.AccomplishmentTotalPoints)
	require.Equal(t, int64(200), got.LifetimeTotalPoints)

	res, err := l.Reconcile(ctx, nil, user.ID)
	require.NoError(t, err)
	require.True(t, res.Balanced())
}

func TestDebitInsufficientBalanceRollsBack(t *testing.T) {
	db := testutil.NewDB(t)
	l := New(db)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "Carol", nil)
	testutil.SeedPoints(t, db, user.ID, 100)

	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := l.Credit(ctx, tx, Entry{UserID: user.ID, Amount: 10, Type: model.TransactionTypeEarn}); err != nil {
			return err
		}
		_, err := l.Debit(ctx, tx, Entry{UserID: user.ID, Amount: 500, Type: model.TransactionTypeSpend})
		return err
	})
	require.ErrorIs(t, err, repository.ErrInsufficientBalance)

	got := testutil.Points(t, db, user.ID)
	require.Equal(t, int64(100), got.TotalPoints, "credit in the same unit of work must roll back")

	var count int64
	require.NoError(t, db.Model(&model.PointTransaction{}).Where("user_id = ?", user.ID).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestAdjustExcludeCumulative(t *testing.T) {
	db := testutil.NewDB(t)
	l := New(db)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "Dan", nil)
	testutil.SeedPoints(t, db, user.ID, 300)

	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := l.Debit(ctx, tx, Entry{UserID: user.ID, Amount: 100, Type: model.TransactionTypeSpend}); err != nil {
			return err
		}
		_, err := l.Credit(ctx, tx, Entry{UserID: user.ID, Amount: 100, Type: model.TransactionTypeAdjust, ExcludeCumulative: true})
		return err
	})
	require.NoError(t, err)

	got := testutil.Points(t, db, user.ID)
	require.Equal(t, int64(300), got.TotalPoints)
	require.Equal(t, int64(300), got.AccomplishmentTotalPoints)
	require.Equal(t, int64(300), got.LifetimeTotalPoints)

	res, err := l.Reconcile(ctx, nil, user.ID)
	require.NoError(t, err)
	require.True(t, res.Balanced())
}

func TestInvalidEntries(t *testing.T) {
	db := testutil.NewDB(t)
	l := New(db)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "Eve", nil)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := l.Credit(ctx, tx, Entry{UserID: user.ID, Amount: 0, Type: model.TransactionTypeEarn})
		return err
	})
	require.ErrorIs(t, err, ErrInvalidEntry)

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := l.Credit(ctx, tx, Entry{UserID: user.ID, Amount: 10, Type: model.TransactionTypeSpend})
		return err
	})
	require.ErrorIs(t, err, ErrInvalidEntry)

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := l.Debit(ctx, tx, Entry{UserID: user.ID, Amount: 10, Type: model.TransactionTypeEarn})
		return err
	})
	require.ErrorIs(t, err, ErrInvalidEntry)

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := l.Credit(ctx, tx, Entry{UserID: 9999, Amount: 10, Type: model.TransactionTypeEarn})
		return err
	})
	require.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestReconcileDetectsDrift(t *testing.T) {
	db := testutil.NewDB(t)
	l := New(db)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "Frank", nil)
	testutil.SeedPoints(t, db, user.ID, 50)

	// 绕过账本直接改计数器
	require.NoError(t, db.Model(&model.User{}).Where("id = ?", user.ID).Update("total_points", 70).Error)

	res, err := l.Reconcile(ctx, nil, user.ID)
	require.NoError(t, err)
	require.False(t, res.Balanced())
	require.Equal(t, int64(70), res.TotalPoints)
	require.Equal(t, int64(50), res.TransactionSum)
}
