package ledger

import (
	"context"
	"errors"
	"fmt"

	"incentive/internal/model"
	"incentive/internal/repository"
	"incentive/pkg/idgen"

	"gorm.io/gorm"
)

// ============================================================================
// 积分账本
// ============================================================================
//
// 【关键点】用户积分计数器只能通过 Credit / Debit 修改，每次调用在同一事务内：
//   1. 锁定用户行（SELECT ... FOR UPDATE）
//   2. 按流水类型更新计数器
//   3. 追加且只追加一条 points_transactions
//
// 计数器规则：
//   - spend：只影响 total_points
//   - earn：三个计数器同时变化
//   - adjust：total_points 必变；accomplishment / lifetime 除非 ExcludeCumulative
//
// 因此任何时刻 sum(points) == total_points，
// sum(points where cumulative) == accomplishment_total_points
//
// ============================================================================

var ErrInvalidEntry = errors.New("积分流水参数不合法")

// Entry 一次积分变动
type Entry struct {
	UserID            int64
	Amount            int64 // 必须 > 0，方向由 Credit / Debit 决定
	Type              string
	Description       string
	FormID            *int64
	RedemptionID      *int64
	ExcludeCumulative bool // 仅对 adjust 生效，例如驳回返还、删号冲正
}

func (e Entry) cumulative() bool {
	switch e.Type {
	case model.TransactionTypeEarn:
		return true
	case model.TransactionTypeAdjust:
		return !e.ExcludeCumulative
	default:
		return false
	}
}

type Ledger struct {
	userRepo        *repository.UserRepository
	transactionRepo *repository.TransactionRepository
}

func New(db *gorm.DB) *Ledger {
	return &Ledger{
		userRepo:        repository.NewUserRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
	}
}

// Credit 入账，Type 只能是 earn 或 adjust
func (l *Ledger) Credit(ctx context.Context, tx *gorm.DB, e Entry) (*model.PointTransaction, error) {
	if e.Amount <= 0 || (e.Type != model.TransactionTypeEarn && e.Type != model.TransactionTypeAdjust) {
		return nil, fmt.Errorf("%w: type=%s amount=%d", ErrInvalidEntry, e.Type, e.Amount)
	}
	return l.apply(ctx, tx, e, e.Amount)
}

// Debit 出账，Type 只能是 spend 或 adjust，余额不足返回 ErrInsufficientBalance
func (l *Ledger) Debit(ctx context.Context, tx *gorm.DB, e Entry) (*model.PointTransaction, error) {
	if e.Amount <= 0 || (e.Type != model.TransactionTypeSpend && e.Type != model.TransactionTypeAdjust) {
		return nil, fmt.Errorf("%w: type=%s amount=%d", ErrInvalidEntry, e.Type, e.Amount)
	}
	return l.apply(ctx, tx, e, -e.Amount)
}

func (l *Ledger) apply(ctx context.Context, tx *gorm.DB, e Entry, delta int64) (*model.PointTransaction, error) {
	user, err := l.userRepo.GetByIDForUpdate(ctx, tx, e.UserID)
	if err != nil {
		return nil, err
	}

	if user.TotalPoints+delta < 0 {
		return nil, repository.ErrInsufficientBalance
	}

	cumulative := e.cumulative()
	var cumulativeDelta int64
	if cumulative {
		cumulativeDelta = delta
	}

	if err := l.userRepo.ApplyDelta(ctx, tx, e.UserID, delta, cumulativeDelta); err != nil {
		return nil, err
	}

	trans := &model.PointTransaction{
		TransactionNo:   idgen.GenerateTransactionNo(),
		UserID:          e.UserID,
		Points:          delta,
		TransactionType: e.Type,
		Cumulative:      cumulative,
		Description:     e.Description,
		FormID:          e.FormID,
		RedemptionID:    e.RedemptionID,
		BalanceBefore:   user.TotalPoints,
		BalanceAfter:    user.TotalPoints + delta,
	}
	if err := l.transactionRepo.Create(ctx, tx, trans); err != nil {
		return nil, fmt.Errorf("记录流水失败: %w", err)
	}

	return trans, nil
}

// ReconcileResult 计数器与流水汇总的比对结果
type ReconcileResult struct {
	UserID                    int64 `json:"user_id"`
	TotalPoints               int64 `json:"total_points"`
	TransactionSum            int64 `json:"transaction_sum"`
	AccomplishmentTotalPoints int64 `json:"accomplishment_total_points"`
	CumulativeSum             int64 `json:"cumulative_sum"`
}

func (r *ReconcileResult) Balanced() bool {
	return r.TotalPoints == r.TransactionSum && r.AccomplishmentTotalPoints == r.CumulativeSum
}

// Reconcile 用流水重新汇总并与用户计数器比对，只读
func (l *Ledger) Reconcile(ctx context.Context, tx *gorm.DB, userID int64) (*ReconcileResult, error) {
	user, err := l.userRepo.GetByID(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	sum, err := l.transactionRepo.SumByUserID(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("汇总流水失败: %w", err)
	}

	cumulativeSum, err := l.transactionRepo.SumCumulativeByUserID(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("汇总累计流水失败: %w", err)
	}

	return &ReconcileResult{
		UserID:                    userID,
		TotalPoints:               user.TotalPoints,
		TransactionSum:            sum,
		AccomplishmentTotalPoints: user.AccomplishmentTotalPoints,
		CumulativeSum:             cumulativeSum,
	}, nil
}
