package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"incentive/internal/model"
	"incentive/internal/repository"

	"gorm.io/gorm"
)

type MysteryBoxService struct {
	db         *gorm.DB
	notifier   *Notifier
	userRepo   *repository.UserRepository
	rewardRepo *repository.RewardRepository
	actionRepo *repository.UserActionRepository
	now        func() time.Time
}

func NewMysteryBoxService(deps Deps) *MysteryBoxService {
	return &MysteryBoxService{
		db:         deps.DB,
		notifier:   deps.Notifier,
		userRepo:   repository.NewUserRepository(deps.DB),
		rewardRepo: repository.NewRewardRepository(deps.DB),
		actionRepo: repository.NewUserActionRepository(deps.DB),
		now:        deps.clock(),
	}
}

type MysteryBoxEligibility struct {
	Eligible bool                  `json:"eligible"`
	Box      *model.UserMysteryBox `json:"box,omitempty"`
}

// CheckEligibility 返回用户最早一个待领取的盲盒
func (s *MysteryBoxService) CheckEligibility(ctx context.Context, userID int64) (*MysteryBoxEligibility, error) {
	if _, err := s.userRepo.GetByID(ctx, nil, userID); err != nil {
		return nil, err
	}

	box, err := s.rewardRepo.GetFirstAvailableBox(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询盲盒失败: %w", err)
	}
	return &MysteryBoxEligibility{Eligible: box != nil, Box: box}, nil
}

func (s *MysteryBoxService) ListBoxes(ctx context.Context, userID int64) ([]*model.UserMysteryBox, error) {
	return s.rewardRepo.ListMysteryBoxes(ctx, userID)
}

// Claim 领取盲盒，只允许 available -> claimed，且盲盒必须属于该用户
func (s *MysteryBoxService) Claim(ctx context.Context, userID, boxID int64, newStatus string) (*model.UserMysteryBox, error) {
	if newStatus != model.MysteryBoxStatusClaimed {
		return nil, validationError("不支持的盲盒状态: %s", newStatus)
	}

	var box *model.UserMysteryBox
	err := s.db.Transaction(func(tx *gorm.DB) error {
		b, err := s.rewardRepo.GetMysteryBoxForUpdate(ctx, tx, boxID)
		if err != nil {
			return err
		}
		if b.UserID != userID {
			return repository.ErrMysteryBoxNotFound
		}
		if b.Status != model.MysteryBoxStatusAvailable {
			return fmt.Errorf("%w: 盲盒当前状态 %s", ErrInvalidState, b.Status)
		}

		now := s.now()
		if err := s.rewardRepo.MarkMysteryBoxClaimed(ctx, tx, b.ID, now); err != nil {
			return err
		}
		b.Status = model.MysteryBoxStatusClaimed
		b.ClaimedAt = &now

		if err := s.actionRepo.Record(ctx, tx, userID, model.ActionMysteryBoxClaimed, "mystery_box", b.ID, map[string]interface{}{
			"milestone": b.MilestoneReached,
		}); err != nil {
			return fmt.Errorf("记录用户行为失败: %w", err)
		}

		box = b
		return nil
	})
	if err != nil {
		return nil, classifyError(err)
	}

	data := map[string]interface{}{
		"box_id":    box.ID,
		"milestone": box.MilestoneReached,
	}
	if box.ProductID != nil {
		data["product_id"] = *box.ProductID
	}
	s.notifier.Dispatch(newEvent(EventMysteryBoxClaimed, userID, data))

	log.Printf("[MysteryBox] 领取: userID=%d, boxID=%d, milestone=%d", userID, box.ID, box.MilestoneReached)
	return box, nil
}
