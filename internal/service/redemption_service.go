package service

import (
	"context"
	"fmt"
	"log"

	"incentive/internal/infrastructure/lock"
	"incentive/internal/ledger"
	"incentive/internal/model"
	"incentive/internal/repository"
	"incentive/pkg/idgen"

	"gorm.io/gorm"
)

type RedemptionService struct {
	db             *gorm.DB
	locker         *lock.Locker
	ledger         *ledger.Ledger
	notifier       *Notifier
	userRepo       *repository.UserRepository
	productRepo    *repository.ProductRepository
	redemptionRepo *repository.RedemptionRepository
	actionRepo     *repository.UserActionRepository
}

func NewRedemptionService(deps Deps) *RedemptionService {
	return &RedemptionService{
		db:             deps.DB,
		locker:         deps.Locker,
		ledger:         ledger.New(deps.DB),
		notifier:       deps.Notifier,
		userRepo:       repository.NewUserRepository(deps.DB),
		productRepo:    repository.NewProductRepository(deps.DB),
		redemptionRepo: repository.NewRedemptionRepository(deps.DB),
		actionRepo:     repository.NewUserActionRepository(deps.DB),
	}
}

type RedeemRequest struct {
	UserID          int64  `json:"user_id" validate:"required,gt=0"`
	ProductID       int64  `json:"product_id" validate:"required,gt=0"`
	PointsSpent     int64  `json:"points_spent" validate:"required,gt=0"`
	ShippingName    string `json:"shipping_name" validate:"max=64"`
	ShippingPhone   string `json:"shipping_phone" validate:"max=32"`
	ShippingAddress string `json:"shipping_address" validate:"max=256"`
	ContactEmail    string `json:"contact_email" validate:"omitempty,email,max=128"`
	Remark          string `json:"remark" validate:"max=256"`
}

type RedeemResult struct {
	RedemptionID    int64  `json:"redemption_id"`
	RedemptionNo    string `json:"redemption_no"`
	RemainingPoints int64  `json:"remaining_points"`
}

// ============================================================================
// 积分兑换
// ============================================================================
//
// 【关键点】并发控制两层：
//   1. Redis 用户锁：同一用户的兑换、抽奖请求串行
//   2. 事务内行锁：用户行 + 商品行 FOR UPDATE，余额和库存在锁内校验
//
// 扣积分、扣库存、写兑换单、写流水、写审计在同一事务，任何一步失败整体回滚
//
// ============================================================================

func (s *RedemptionService) Redeem(ctx context.Context, req *RedeemRequest) (*RedeemResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var result *RedeemResult
	err := s.locker.WithLock(ctx, s.locker.UserLock(req.UserID), func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			user, err := s.userRepo.GetByIDForUpdate(ctx, tx, req.UserID)
			if err != nil {
				return err
			}

			product, err := s.productRepo.GetByIDForUpdate(ctx, tx, req.ProductID)
			if err != nil {
				return err
			}
			if !product.Active {
				return repository.ErrProductNotFound
			}
			if req.PointsSpent != product.PointsRequired {
				return validationError("兑换积分与商品所需积分不一致: 需要 %d, 提交 %d", product.PointsRequired, req.PointsSpent)
			}

			if user.TotalPoints < req.PointsSpent {
				return fmt.Errorf("%w: 当前积分 %d, 需要 %d", ErrInsufficientBalance, user.TotalPoints, req.PointsSpent)
			}
			if product.StockQuantity <= 0 {
				return ErrOutOfStock
			}

			redemption := &model.Redemption{
				RedemptionNo:    idgen.GenerateRedemptionNo(),
				UserID:          user.ID,
				ProductID:       product.ID,
				PointsSpent:     req.PointsSpent,
				Status:          model.RedemptionStatusActive,
				ShippingName:    req.ShippingName,
				ShippingPhone:   req.ShippingPhone,
				ShippingAddress: req.ShippingAddress,
				ContactEmail:    req.ContactEmail,
				Remark:          req.Remark,
			}
			if err := s.redemptionRepo.Create(ctx, tx, redemption); err != nil {
				return fmt.Errorf("创建兑换单失败: %w", err)
			}

			redemptionID := redemption.ID
			trans, err := s.ledger.Debit(ctx, tx, ledger.Entry{
				UserID:       user.ID,
				Amount:       req.PointsSpent,
				Type:         model.TransactionTypeSpend,
				Description:  fmt.Sprintf("兑换-%s", product.Name),
				RedemptionID: &redemptionID,
			})
			if err != nil {
				return err
			}

			if err := s.productRepo.DecrementStock(ctx, tx, product.ID, 1); err != nil {
				return err
			}

			if err := s.actionRepo.Record(ctx, tx, user.ID, model.ActionRedeem, "redemption", redemption.ID, map[string]interface{}{
				"product_id":   product.ID,
				"points_spent": req.PointsSpent,
			}); err != nil {
				return fmt.Errorf("记录用户行为失败: %w", err)
			}

			result = &RedeemResult{
				RedemptionID:    redemption.ID,
				RedemptionNo:    redemption.RedemptionNo,
				RemainingPoints: trans.BalanceAfter,
			}
			return nil
		})
	})
	if err != nil {
		return nil, classifyError(err)
	}

	s.notifier.Dispatch(newEvent(EventRedemptionCreated, req.UserID, map[string]interface{}{
		"redemption_id":    result.RedemptionID,
		"redemption_no":    result.RedemptionNo,
		"product_id":       req.ProductID,
		"points_spent":     req.PointsSpent,
		"remaining_points": result.RemainingPoints,
	}))

	log.Printf("[Redemption] 兑换成功: redemptionNo=%s, userID=%d, productID=%d, points=%d",
		result.RedemptionNo, req.UserID, req.ProductID, req.PointsSpent)
	return result, nil
}

// ApproveRedemption 审核通过，积分和库存在兑换时已经扣过
func (s *RedemptionService) ApproveRedemption(ctx context.Context, redemptionID int64) (*model.Redemption, error) {
	var redemption *model.Redemption
	err := s.locker.WithLock(ctx, s.locker.RedemptionLock(redemptionID), func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			r, err := s.redemptionRepo.GetByIDForUpdate(ctx, tx, redemptionID)
			if err != nil {
				return err
			}
			if !model.CanRedemptionTransitionTo(r.Status, model.RedemptionStatusApproved) {
				return fmt.Errorf("%w: 兑换单当前状态 %s", ErrInvalidState, r.Status)
			}

			if err := s.redemptionRepo.UpdateStatus(ctx, tx, r.ID, r.Status, model.RedemptionStatusApproved); err != nil {
				return err
			}
			r.Status = model.RedemptionStatusApproved

			if err := s.actionRepo.Record(ctx, tx, r.UserID, model.ActionRedemptionApproved, "redemption", r.ID, nil); err != nil {
				return fmt.Errorf("记录用户行为失败: %w", err)
			}

			redemption = r
			return nil
		})
	})
	if err != nil {
		return nil, classifyError(err)
	}

	s.notifier.Dispatch(newEvent(EventRedemptionApproved, redemption.UserID, map[string]interface{}{
		"redemption_id": redemption.ID,
		"redemption_no": redemption.RedemptionNo,
	}))
	log.Printf("[Redemption] 审核通过: redemptionNo=%s", redemption.RedemptionNo)
	return redemption, nil
}

// RejectRedemption 驳回兑换
//
// 【关键点】补偿在同一事务：
//   - 返还积分记为 adjust 且不计入累计积分，累计积分在兑换时本就没有减少
//   - 回补一件库存
//
// 兑换单必须仍为 active，重复驳回返回 ErrInvalidState，不会二次返还
func (s *RedemptionService) RejectRedemption(ctx context.Context, redemptionID int64) (*model.Redemption, error) {
	var redemption *model.Redemption
	err := s.locker.WithLock(ctx, s.locker.RedemptionLock(redemptionID), func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			r, err := s.redemptionRepo.GetByIDForUpdate(ctx, tx, redemptionID)
			if err != nil {
				return err
			}
			if !model.CanRedemptionTransitionTo(r.Status, model.RedemptionStatusRejected) {
				return fmt.Errorf("%w: 兑换单当前状态 %s", ErrInvalidState, r.Status)
			}

			if err := s.redemptionRepo.UpdateStatus(ctx, tx, r.ID, r.Status, model.RedemptionStatusRejected); err != nil {
				return err
			}
			r.Status = model.RedemptionStatusRejected

			id := r.ID
			if _, err := s.ledger.Credit(ctx, tx, ledger.Entry{
				UserID:            r.UserID,
				Amount:            r.PointsSpent,
				Type:              model.TransactionTypeAdjust,
				Description:       fmt.Sprintf("兑换驳回返还-%s", r.RedemptionNo),
				RedemptionID:      &id,
				ExcludeCumulative: true,
			}); err != nil {
				return err
			}

			if err := s.productRepo.IncrementStock(ctx, tx, r.ProductID, 1); err != nil {
				return fmt.Errorf("回补库存失败: %w", err)
			}

			if err := s.actionRepo.Record(ctx, tx, r.UserID, model.ActionRedemptionRejected, "redemption", r.ID, map[string]interface{}{
				"points_refunded": r.PointsSpent,
			}); err != nil {
				return fmt.Errorf("记录用户行为失败: %w", err)
			}

			redemption = r
			return nil
		})
	})
	if err != nil {
		return nil, classifyError(err)
	}

	s.notifier.Dispatch(newEvent(EventRedemptionRejected, redemption.UserID, map[string]interface{}{
		"redemption_id":   redemption.ID,
		"redemption_no":   redemption.RedemptionNo,
		"points_refunded": redemption.PointsSpent,
	}))
	log.Printf("[Redemption] 驳回并返还: redemptionNo=%s, points=%d", redemption.RedemptionNo, redemption.PointsSpent)
	return redemption, nil
}

func (s *RedemptionService) GetRedemption(ctx context.Context, redemptionID int64) (*model.Redemption, error) {
	return s.redemptionRepo.GetByID(ctx, redemptionID)
}

func (s *RedemptionService) ListUserRedemptions(ctx context.Context, userID int64, page, pageSize int) ([]*model.Redemption, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	return s.redemptionRepo.ListByUserID(ctx, userID, page, pageSize)
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
