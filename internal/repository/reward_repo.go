package repository

import (
	"context"
	"errors"
	"time"

	"incentive/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RewardRepository 盲盒、转盘、推荐里程碑等奖励发放记录
type RewardRepository struct {
	db *gorm.DB
}

func NewRewardRepository(db *gorm.DB) *RewardRepository {
	return &RewardRepository{db: db}
}

// ============================================================
// 盲盒
// ============================================================

// MysteryBoxExists 幂等检查：该用户在该里程碑是否已发放过盲盒
// 必须在持有用户行锁的事务内调用
func (r *RewardRepository) MysteryBoxExists(ctx context.Context, tx *gorm.DB, userID int64, milestone int) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).
		Model(&model.UserMysteryBox{}).
		Clauses(clause.Locking{Strength: "SHARE"}).
		Where("user_id = ? AND milestone_reached = ?", userID, milestone).
		Count(&count).Error
	return count > 0, err
}

func (r *RewardRepository) CreateMysteryBox(ctx context.Context, tx *gorm.DB, box *model.UserMysteryBox) error {
	return tx.WithContext(ctx).Create(box).Error
}

// GetFirstAvailableBox 用户最早一个未领取的盲盒，没有时返回 nil
func (r *RewardRepository) GetFirstAvailableBox(ctx context.Context, userID int64) (*model.UserMysteryBox, error) {
	var box model.UserMysteryBox
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.MysteryBoxStatusAvailable).
		Order("milestone_reached ASC").
		First(&box).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &box, nil
}

func (r *RewardRepository) GetMysteryBoxForUpdate(ctx context.Context, tx *gorm.DB, boxID int64) (*model.UserMysteryBox, error) {
	var box model.UserMysteryBox
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", boxID).
		First(&box).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMysteryBoxNotFound
		}
		return nil, err
	}
	return &box, nil
}

// MarkMysteryBoxClaimed 条件更新 available -> claimed
func (r *RewardRepository) MarkMysteryBoxClaimed(ctx context.Context, tx *gorm.DB, boxID int64, claimedAt time.Time) error {
	result := tx.WithContext(ctx).
		Model(&model.UserMysteryBox{}).
		Where("id = ? AND status = ?", boxID, model.MysteryBoxStatusAvailable).
		Updates(map[string]interface{}{
			"status":     model.MysteryBoxStatusClaimed,
			"claimed_at": claimedAt,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrStatusInvalid
	}

	return nil
}

func (r *RewardRepository) ListMysteryBoxes(ctx context.Context, userID int64) ([]*model.UserMysteryBox, error) {
	var boxes []*model.UserMysteryBox
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("milestone_reached ASC").
		Find(&boxes).Error
	return boxes, err
}

// ============================================================
// 转盘
// ============================================================

func (r *RewardRepository) CountSpins(ctx context.Context, tx *gorm.DB, userID int64) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	var count int64
	err := tx.WithContext(ctx).
		Model(&model.FortuneWheelSpin{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

func (r *RewardRepository) CreateSpin(ctx context.Context, tx *gorm.DB, spin *model.FortuneWheelSpin) error {
	return tx.WithContext(ctx).Create(spin).Error
}

func (r *RewardRepository) ListSpins(ctx context.Context, userID int64) ([]*model.FortuneWheelSpin, error) {
	var spins []*model.FortuneWheelSpin
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&spins).Error
	return spins, err
}

// ============================================================
// 推荐里程碑
// ============================================================

func (r *RewardRepository) ReferralMilestoneExists(ctx context.Context, tx *gorm.DB, referrerID int64, threshold int) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).
		Model(&model.ReferralMilestone{}).
		Clauses(clause.Locking{Strength: "SHARE"}).
		Where("referrer_id = ? AND threshold = ?", referrerID, threshold).
		Count(&count).Error
	return count > 0, err
}

func (r *RewardRepository) CreateReferralMilestone(ctx context.Context, tx *gorm.DB, milestone *model.ReferralMilestone) error {
	return tx.WithContext(ctx).Create(milestone).Error
}
