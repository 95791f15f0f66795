package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"incentive/internal/ledger"
	"incentive/internal/model"
	"incentive/internal/repository"
	"incentive/internal/reward"

	"gorm.io/gorm"
)

const (
	GrantKindMysteryBox    = "mystery_box"
	GrantKindReferralBonus = "referral_bonus"
	GrantKindCampaignBonus = "campaign_bonus"
)

// MilestoneGrant 一次里程碑奖励
type MilestoneGrant struct {
	Kind      string `json:"kind"`
	UserID    int64  `json:"user_id"`
	Threshold int64  `json:"threshold"`
	BoxID     int64  `json:"box_id,omitempty"`
	ProductID *int64 `json:"product_id,omitempty"`
	PrizeName string `json:"prize_name,omitempty"`
	Points    int64  `json:"points,omitempty"`
}

func (g MilestoneGrant) event() Event {
	eventType := EventMysteryBoxGranted
	switch g.Kind {
	case GrantKindReferralBonus:
		eventType = EventReferralBonus
	case GrantKindCampaignBonus:
		eventType = EventCampaignBonus
	}
	data := map[string]interface{}{
		"threshold": g.Threshold,
		"points":    g.Points,
	}
	if g.BoxID > 0 {
		data["box_id"] = g.BoxID
	}
	if g.ProductID != nil {
		data["product_id"] = *g.ProductID
		data["prize_name"] = g.PrizeName
	}
	return newEvent(eventType, g.UserID, data)
}

func grantEvents(grants []MilestoneGrant) []Event {
	events := make([]Event, 0, len(grants))
	for _, g := range grants {
		events = append(events, g.event())
	}
	return events
}

// ============================================================================
// 里程碑
// ============================================================================
//
// 【关键点】里程碑判定必须在调用方事务内、持有用户行锁时执行：
//   - 提交里程碑：审核通过数 >= 阈值且该阈值还没有盲盒记录时发放，
//     (user_id, milestone_reached) 唯一索引兜底
//   - 推荐里程碑：由被推荐用户首次提交触发，先锁推荐人行再计数，
//     多个被推荐用户同时首次提交时在推荐人行锁上排队
//
// ============================================================================

type MilestoneTracker struct {
	settings    *reward.Settings
	allocator   *reward.Allocator
	ledger      *ledger.Ledger
	userRepo    *repository.UserRepository
	formRepo    *repository.FormRepository
	productRepo *repository.ProductRepository
	rewardRepo  *repository.RewardRepository
	actionRepo  *repository.UserActionRepository
	now         func() time.Time
}

func NewMilestoneTracker(deps Deps) *MilestoneTracker {
	return &MilestoneTracker{
		settings:    deps.settings(),
		allocator:   deps.allocator(),
		ledger:      ledger.New(deps.DB),
		userRepo:    repository.NewUserRepository(deps.DB),
		formRepo:    repository.NewFormRepository(deps.DB),
		productRepo: repository.NewProductRepository(deps.DB),
		rewardRepo:  repository.NewRewardRepository(deps.DB),
		actionRepo:  repository.NewUserActionRepository(deps.DB),
		now:         deps.clock(),
	}
}

// GrantSubmissionMilestones 按审核通过数发放盲盒
//
// 抽中的实物有库存时盲盒为 available，等待用户领取；
// 缺货时直接入账兜底积分，盲盒记为 claimed
func (m *MilestoneTracker) GrantSubmissionMilestones(ctx context.Context, tx *gorm.DB, userID int64) ([]MilestoneGrant, error) {
	approved, err := m.formRepo.CountApprovedByUserID(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("统计审核通过数失败: %w", err)
	}

	var grants []MilestoneGrant
	for _, tier := range m.settings.MysteryBoxTiers {
		if approved < int64(tier.Threshold) {
			continue
		}

		exists, err := m.rewardRepo.MysteryBoxExists(ctx, tx, userID, tier.Threshold)
		if err != nil {
			return nil, fmt.Errorf("查询盲盒记录失败: %w", err)
		}
		if exists {
			continue
		}

		alloc, err := allocate(ctx, tx, m.allocator, m.productRepo, tier.Table)
		if err != nil {
			return nil, fmt.Errorf("分配盲盒奖品失败: %w", err)
		}

		box := &model.UserMysteryBox{
			UserID:           userID,
			MilestoneReached: tier.Threshold,
			ProductID:        alloc.ProductID,
			Status:           model.MysteryBoxStatusAvailable,
		}
		if alloc.ProductID == nil {
			now := m.now()
			box.FallbackPoints = alloc.Prize.Points
			box.Status = model.MysteryBoxStatusClaimed
			box.ClaimedAt = &now
		}
		if err := m.rewardRepo.CreateMysteryBox(ctx, tx, box); err != nil {
			return nil, fmt.Errorf("创建盲盒失败: %w", err)
		}

		if box.FallbackPoints > 0 {
			if _, err := m.ledger.Credit(ctx, tx, ledger.Entry{
				UserID:      userID,
				Amount:      box.FallbackPoints,
				Type:        model.TransactionTypeEarn,
				Description: fmt.Sprintf("盲盒奖励-%d 份表单里程碑", tier.Threshold),
			}); err != nil {
				return nil, err
			}
		}

		if err := m.actionRepo.Record(ctx, tx, userID, model.ActionMysteryBoxGranted, "mystery_box", box.ID, map[string]interface{}{
			"milestone":       tier.Threshold,
			"fallback_points": box.FallbackPoints,
		}); err != nil {
			return nil, fmt.Errorf("记录用户行为失败: %w", err)
		}

		grants = append(grants, MilestoneGrant{
			Kind:      GrantKindMysteryBox,
			UserID:    userID,
			Threshold: int64(tier.Threshold),
			BoxID:     box.ID,
			ProductID: box.ProductID,
			PrizeName: alloc.Prize.Name,
			Points:    box.FallbackPoints,
		})
		log.Printf("[Milestone] 发放盲盒: userID=%d, milestone=%d, productID=%v, fallback=%d",
			userID, tier.Threshold, alloc.Prize.ProductID, box.FallbackPoints)
	}

	return grants, nil
}

// GrantReferralMilestones 推荐人里程碑积分
func (m *MilestoneTracker) GrantReferralMilestones(ctx context.Context, tx *gorm.DB, referrerID int64) ([]MilestoneGrant, error) {
	if _, err := m.userRepo.GetByIDForUpdate(ctx, tx, referrerID); err != nil {
		if IsNotFound(err) {
			log.Printf("[Milestone] 推荐人不存在，跳过: referrerID=%d", referrerID)
			return nil, nil
		}
		return nil, err
	}

	count, err := m.userRepo.CountReferredWithSubmissions(ctx, tx, referrerID)
	if err != nil {
		return nil, fmt.Errorf("统计推荐人数失败: %w", err)
	}

	policy := m.settings.ReferralPolicy
	due, err := policy.Due(count, m.settings.ReferralMilestones, func(threshold int) (bool, error) {
		return m.rewardRepo.ReferralMilestoneExists(ctx, tx, referrerID, threshold)
	})
	if err != nil {
		return nil, fmt.Errorf("判定推荐里程碑失败: %w", err)
	}

	var grants []MilestoneGrant
	for _, ms := range due {
		if policy.RecordsGrants() {
			if err := m.rewardRepo.CreateReferralMilestone(ctx, tx, &model.ReferralMilestone{
				ReferrerID: referrerID,
				Threshold:  ms.Threshold,
				Points:     ms.Points,
			}); err != nil {
				return nil, fmt.Errorf("记录推荐里程碑失败: %w", err)
			}
		}

		trans, err := m.ledger.Credit(ctx, tx, ledger.Entry{
			UserID:      referrerID,
			Amount:      ms.Points,
			Type:        model.TransactionTypeEarn,
			Description: fmt.Sprintf("推荐奖励-%d 位推荐用户", ms.Threshold),
		})
		if err != nil {
			return nil, err
		}

		if err := m.actionRepo.Record(ctx, tx, referrerID, model.ActionReferralBonus, "points_transaction", trans.ID, map[string]interface{}{
			"threshold":      ms.Threshold,
			"referred_count": count,
			"points":         ms.Points,
		}); err != nil {
			return nil, fmt.Errorf("记录用户行为失败: %w", err)
		}

		grants = append(grants, MilestoneGrant{
			Kind:      GrantKindReferralBonus,
			UserID:    referrerID,
			Threshold: int64(ms.Threshold),
			Points:    ms.Points,
		})
		log.Printf("[Milestone] 推荐奖励: referrerID=%d, threshold=%d, points=%d", referrerID, ms.Threshold, ms.Points)
	}

	return grants, nil
}
