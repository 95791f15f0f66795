package service

import (
	"context"
	"fmt"
	"log"

	"incentive/internal/ledger"
	"incentive/internal/model"
	"incentive/internal/repository"

	"gorm.io/gorm"
)

type AccountService struct {
	db              *gorm.DB
	ledger          *ledger.Ledger
	notifier        *Notifier
	userRepo        *repository.UserRepository
	transactionRepo *repository.TransactionRepository
	actionRepo      *repository.UserActionRepository
}

func NewAccountService(deps Deps) *AccountService {
	return &AccountService{
		db:              deps.DB,
		ledger:          ledger.New(deps.DB),
		notifier:        deps.Notifier,
		userRepo:        repository.NewUserRepository(deps.DB),
		transactionRepo: repository.NewTransactionRepository(deps.DB),
		actionRepo:      repository.NewUserActionRepository(deps.DB),
	}
}

type Balance struct {
	UserID                    int64 `json:"user_id"`
	TotalPoints               int64 `json:"total_points"`
	AccomplishmentTotalPoints int64 `json:"accomplishment_total_points"`
	LifetimeTotalPoints       int64 `json:"lifetime_total_points"`
}

func (s *AccountService) GetBalance(ctx context.Context, userID int64) (*Balance, error) {
	user, err := s.userRepo.GetByID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	return &Balance{
		UserID:                    user.ID,
		TotalPoints:               user.TotalPoints,
		AccomplishmentTotalPoints: user.AccomplishmentTotalPoints,
		LifetimeTotalPoints:       user.LifetimeTotalPoints,
	}, nil
}

func (s *AccountService) ListTransactions(ctx context.Context, userID int64, page, pageSize int) ([]*model.PointTransaction, int64, error) {
	if _, err := s.userRepo.GetByID(ctx, nil, userID); err != nil {
		return nil, 0, err
	}
	page, pageSize = normalizePage(page, pageSize)
	return s.transactionRepo.ListByUserID(ctx, userID, page, pageSize)
}

// ListActions 最近的审计记录，limit 超出范围时取 20
func (s *AccountService) ListActions(ctx context.Context, userID int64, limit int) ([]*model.UserAction, error) {
	if _, err := s.userRepo.GetByID(ctx, nil, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.actionRepo.ListByUserID(ctx, userID, limit)
}

type AdjustRequest struct {
	UserID            int64  `json:"user_id" validate:"required,gt=0"`
	Delta             int64  `json:"delta" validate:"required"`
	Description       string `json:"description" validate:"required,max=256"`
	ExcludeCumulative bool   `json:"exclude_cumulative"`
}

// Adjust 人工调账，正数入账负数扣减，余额不足返回 ErrInsufficientBalance
func (s *AccountService) Adjust(ctx context.Context, req *AdjustRequest) (*model.PointTransaction, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	entry := ledger.Entry{
		UserID:            req.UserID,
		Type:              model.TransactionTypeAdjust,
		Description:       req.Description,
		ExcludeCumulative: req.ExcludeCumulative,
	}

	var trans *model.PointTransaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		if req.Delta > 0 {
			entry.Amount = req.Delta
			trans, err = s.ledger.Credit(ctx, tx, entry)
		} else {
			entry.Amount = -req.Delta
			trans, err = s.ledger.Debit(ctx, tx, entry)
		}
		if err != nil {
			return err
		}

		if err := s.actionRepo.Record(ctx, tx, req.UserID, model.ActionPointsAdjusted, "points_transaction", trans.ID, map[string]interface{}{
			"delta":              req.Delta,
			"description":        req.Description,
			"exclude_cumulative": req.ExcludeCumulative,
		}); err != nil {
			return fmt.Errorf("记录用户行为失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, classifyError(err)
	}

	s.notifier.Dispatch(newEvent(EventPointsAdjusted, req.UserID, map[string]interface{}{
		"transaction_no": trans.TransactionNo,
		"delta":          req.Delta,
		"balance_after":  trans.BalanceAfter,
	}))

	log.Printf("[Account] 调账: userID=%d, delta=%d, transactionNo=%s", req.UserID, req.Delta, trans.TransactionNo)
	return trans, nil
}

// Reconcile 对账，只读
func (s *AccountService) Reconcile(ctx context.Context, userID int64) (*ledger.ReconcileResult, error) {
	return s.ledger.Reconcile(ctx, nil, userID)
}
