package service

import (
	"context"
	"fmt"
	"log"

	"incentive/internal/infrastructure/lock"
	"incentive/internal/ledger"
	"incentive/internal/model"
	"incentive/internal/repository"
	"incentive/internal/reward"

	"gorm.io/gorm"
)

type FortuneWheelService struct {
	db          *gorm.DB
	locker      *lock.Locker
	wheel       reward.FortuneWheel
	allocator   *reward.Allocator
	ledger      *ledger.Ledger
	notifier    *Notifier
	userRepo    *repository.UserRepository
	formRepo    *repository.FormRepository
	productRepo *repository.ProductRepository
	rewardRepo  *repository.RewardRepository
	actionRepo  *repository.UserActionRepository
}

func NewFortuneWheelService(deps Deps) *FortuneWheelService {
	return &FortuneWheelService{
		db:          deps.DB,
		locker:      deps.Locker,
		wheel:       deps.settings().FortuneWheel,
		allocator:   deps.allocator(),
		ledger:      ledger.New(deps.DB),
		notifier:    deps.Notifier,
		userRepo:    repository.NewUserRepository(deps.DB),
		formRepo:    repository.NewFormRepository(deps.DB),
		productRepo: repository.NewProductRepository(deps.DB),
		rewardRepo:  repository.NewRewardRepository(deps.DB),
		actionRepo:  repository.NewUserActionRepository(deps.DB),
	}
}

type WheelEligibility struct {
	Eligible         bool  `json:"eligible"`
	SpinsUsed        int64 `json:"spins_used"`
	SpinsRemaining   int64 `json:"spins_remaining"`
	ApprovedForms    int64 `json:"approved_forms"`
	MinApprovedForms int64 `json:"min_approved_forms"`
}

type SpinRequest struct {
	UserID          int64  `json:"user_id" validate:"required,gt=0"`
	ChosenProductID *int64 `json:"chosen_product_id" validate:"omitempty,gt=0"`
	PrizeName       string `json:"prize_name" validate:"max=128"`
}

type SpinResult struct {
	SpinID         int64  `json:"spin_id"`
	ProductID      *int64 `json:"product_id,omitempty"`
	PrizeName      string `json:"prize_name"`
	PointsAwarded  int64  `json:"points_awarded"`
	FellBack       bool   `json:"fell_back"`
	SpinsRemaining int64  `json:"spins_remaining"`
}

func (s *FortuneWheelService) eligibility(ctx context.Context, tx *gorm.DB, userID int64) (*WheelEligibility, error) {
	used, err := s.rewardRepo.CountSpins(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("统计抽奖次数失败: %w", err)
	}
	approved, err := s.formRepo.CountApprovedByUserID(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("统计审核通过数失败: %w", err)
	}

	e := &WheelEligibility{
		SpinsUsed:        used,
		SpinsRemaining:   int64(s.wheel.MaxSpins) - used,
		ApprovedForms:    approved,
		MinApprovedForms: int64(s.wheel.MinApprovedForms),
	}
	if e.SpinsRemaining < 0 {
		e.SpinsRemaining = 0
	}
	e.Eligible = e.SpinsRemaining > 0 && approved >= e.MinApprovedForms
	return e, nil
}

// CheckEligibility 只读查询，真正的次数校验在 Spin 的锁内重做
func (s *FortuneWheelService) CheckEligibility(ctx context.Context, userID int64) (*WheelEligibility, error) {
	if _, err := s.userRepo.GetByID(ctx, nil, userID); err != nil {
		return nil, err
	}
	return s.eligibility(ctx, nil, userID)
}

func (s *FortuneWheelService) ListSpins(ctx context.Context, userID int64) ([]*model.FortuneWheelSpin, error) {
	if _, err := s.userRepo.GetByID(ctx, nil, userID); err != nil {
		return nil, err
	}
	return s.rewardRepo.ListSpins(ctx, userID)
}

// Spin 转盘抽奖
//
// 【关键点】次数上限在 Redis 用户锁 + 用户行锁内校验，
// 并发请求中只有 MaxSpins 次能成功，其余返回 ErrSpinLimitReached。
// 指定了商品时按该商品发放（缺货降级为积分），否则从奖池随机抽取
func (s *FortuneWheelService) Spin(ctx context.Context, req *SpinRequest) (*SpinResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var result *SpinResult
	err := s.locker.WithLock(ctx, s.locker.UserLock(req.UserID), func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			if _, err := s.userRepo.GetByIDForUpdate(ctx, tx, req.UserID); err != nil {
				return err
			}

			e, err := s.eligibility(ctx, tx, req.UserID)
			if err != nil {
				return err
			}
			if e.SpinsRemaining <= 0 {
				return ErrSpinLimitReached
			}
			if e.ApprovedForms < e.MinApprovedForms {
				return ErrNotEligible
			}

			alloc, err := s.draw(ctx, tx, req)
			if err != nil {
				return err
			}

			spin := &model.FortuneWheelSpin{
				UserID:    req.UserID,
				ProductID: alloc.ProductID,
				PrizeName: alloc.Prize.Name,
				Status:    model.SpinStatusPendingDelivery,
			}
			if alloc.ProductID == nil {
				spin.PointsAwarded = alloc.Prize.Points
				spin.Status = model.SpinStatusCredited
			}
			if err := s.rewardRepo.CreateSpin(ctx, tx, spin); err != nil {
				return fmt.Errorf("记录抽奖失败: %w", err)
			}

			if spin.PointsAwarded > 0 {
				if _, err := s.ledger.Credit(ctx, tx, ledger.Entry{
					UserID:      req.UserID,
					Amount:      spin.PointsAwarded,
					Type:        model.TransactionTypeEarn,
					Description: fmt.Sprintf("幸运转盘-%s", spin.PrizeName),
				}); err != nil {
					return err
				}
			}

			if err := s.actionRepo.Record(ctx, tx, req.UserID, model.ActionFortuneWheelSpin, "fortune_wheel_spin", spin.ID, map[string]interface{}{
				"prize_name":     spin.PrizeName,
				"points_awarded": spin.PointsAwarded,
				"fell_back":      alloc.FellBack,
			}); err != nil {
				return fmt.Errorf("记录用户行为失败: %w", err)
			}

			result = &SpinResult{
				SpinID:         spin.ID,
				ProductID:      spin.ProductID,
				PrizeName:      spin.PrizeName,
				PointsAwarded:  spin.PointsAwarded,
				FellBack:       alloc.FellBack,
				SpinsRemaining: e.SpinsRemaining - 1,
			}
			return nil
		})
	})
	if err != nil {
		return nil, classifyError(err)
	}

	data := map[string]interface{}{
		"spin_id":        result.SpinID,
		"prize_name":     result.PrizeName,
		"points_awarded": result.PointsAwarded,
	}
	if result.ProductID != nil {
		data["product_id"] = *result.ProductID
	}
	s.notifier.Dispatch(newEvent(EventFortuneWheelSpin, req.UserID, data))

	log.Printf("[FortuneWheel] 抽奖: userID=%d, prize=%s, points=%d, fellBack=%v",
		req.UserID, result.PrizeName, result.PointsAwarded, result.FellBack)
	return result, nil
}

func (s *FortuneWheelService) draw(ctx context.Context, tx *gorm.DB, req *SpinRequest) (*allocation, error) {
	if req.ChosenProductID == nil {
		return allocate(ctx, tx, s.allocator, s.productRepo, s.wheel.Table)
	}

	product, err := s.productRepo.GetByID(ctx, tx, *req.ChosenProductID)
	if err != nil {
		return nil, err
	}
	name := req.PrizeName
	if name == "" {
		name = product.Name
	}
	return reserveProduct(ctx, tx, s.productRepo, reward.Prize{ProductID: product.ID, Name: name, Weight: 1}, s.wheel.Table)
}
