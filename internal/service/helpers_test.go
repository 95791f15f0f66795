package service

import (
	"context"
	"testing"
	"time"

	"incentive/internal/infrastructure/lock"
	"incentive/internal/model"
	"incentive/internal/reward"
	"incentive/internal/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testCtx = context.Background()

// seqRand 依次返回预设值，超出 n 时取 n-1
type seqRand struct {
	values []int
	calls  int
}

func (r *seqRand) Intn(n int) int {
	v := r.values[r.calls%len(r.values)]
	r.calls++
	if v >= n {
		return n - 1
	}
	return v
}

type fixture struct {
	db       *gorm.DB
	deps     Deps
	notifier *Notifier
}

func newFixture(t *testing.T, settings *reward.Settings, rnd reward.Rand) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	notifier := NewNotifier(db, nil, "points-notification")
	t.Cleanup(notifier.Wait)

	if settings == nil {
		settings = reward.DefaultSettings()
	}
	if rnd == nil {
		rnd = &seqRand{values: []int{0}}
	}

	return &fixture{
		db: db,
		deps: Deps{
			DB:        db,
			Locker:    lock.NewLocker(testutil.NewRedis(t), 5*time.Second),
			Notifier:  notifier,
			Allocator: reward.NewAllocator(rnd),
			Settings:  settings,
		},
		notifier: notifier,
	}
}

func requireBalanced(t *testing.T, f *fixture, userID int64) {
	t.Helper()

	result, err := NewAccountService(f.deps).Reconcile(testCtx, userID)
	require.NoError(t, err)
	require.True(t, result.Balanced(), "ledger drift: %+v", result)
}

func countRows(t *testing.T, db *gorm.DB, m interface{}, query string, args ...interface{}) int64 {
	t.Helper()

	var n int64
	require.NoError(t, db.Model(m).Where(query, args...).Count(&n).Error)
	return n
}

func actionCount(t *testing.T, db *gorm.DB, userID int64, action string) int64 {
	return countRows(t, db, &model.UserAction{}, "user_id = ? AND action = ?", userID, action)
}
