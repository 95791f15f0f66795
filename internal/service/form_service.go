package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"incentive/internal/ledger"
	"incentive/internal/model"
	"incentive/internal/repository"
	"incentive/internal/reward"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type FormService struct {
	db         *gorm.DB
	rules      *reward.RuleEngine
	ledger     *ledger.Ledger
	milestones *MilestoneTracker
	notifier   *Notifier
	userRepo   *repository.UserRepository
	formRepo   *repository.FormRepository
	actionRepo *repository.UserActionRepository
	now        func() time.Time
}

func NewFormService(deps Deps) *FormService {
	return &FormService{
		db:         deps.DB,
		rules:      deps.settings().Rules,
		ledger:     ledger.New(deps.DB),
		milestones: NewMilestoneTracker(deps),
		notifier:   deps.Notifier,
		userRepo:   repository.NewUserRepository(deps.DB),
		formRepo:   repository.NewFormRepository(deps.DB),
		actionRepo: repository.NewUserActionRepository(deps.DB),
		now:        deps.clock(),
	}
}

type SubmitFormRequest struct {
	UserID           int64                  `json:"user_id" validate:"required,gt=0"`
	ProjectID        int64                  `json:"project_id" validate:"required,gt=0"`
	FormTypeID       int64                  `json:"form_type_id" validate:"required,gt=0"`
	FormData         map[string]interface{} `json:"form_data"`
	IsSpecialEdition bool                   `json:"is_special_edition"`
}

type SubmitFormResult struct {
	FormID         int64            `json:"form_id"`
	FormCompleted  bool             `json:"form_completed"`
	ReferralGrants []MilestoneGrant `json:"referral_grants,omitempty"`
}

type ApproveFormResult struct {
	FormID            int64            `json:"form_id"`
	UserID            int64            `json:"user_id"`
	PointsAwarded     int64            `json:"points_awarded"`
	BonusPoints       int64            `json:"bonus_points"`
	MilestonesGranted []MilestoneGrant `json:"milestones_granted"`
}

// requiredFields 解析表单类型声明的必填字段
func requiredFields(formType *model.FormType) ([]string, error) {
	if len(formType.RequiredFields) == 0 {
		return nil, nil
	}
	var fields []string
	if err := json.Unmarshal(formType.RequiredFields, &fields); err != nil {
		return nil, fmt.Errorf("表单类型必填字段配置错误: formTypeID=%d: %w", formType.ID, err)
	}
	return fields, nil
}

func missingFields(required []string, data map[string]interface{}) []string {
	var missing []string
	for _, field := range required {
		v, ok := data[field]
		if !ok || v == nil {
			missing = append(missing, field)
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// SubmitForm 提交表单
//
// 被推荐用户的第一份表单会触发推荐人里程碑判定，和表单写入在同一事务
func (s *FormService) SubmitForm(ctx context.Context, req *SubmitFormRequest) (*SubmitFormResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	formType, err := s.formRepo.GetFormType(ctx, nil, req.FormTypeID)
	if err != nil {
		return nil, err
	}
	required, err := requiredFields(formType)
	if err != nil {
		return nil, err
	}
	if missing := missingFields(required, req.FormData); len(missing) > 0 {
		return nil, validationError("缺少必填字段: %s", strings.Join(missing, ", "))
	}

	result := &SubmitFormResult{}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		user, err := s.userRepo.GetByIDForUpdate(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		// 推荐人行锁要在本事务第一次普通读之前拿到，推荐计数才能看到其他被推荐人已提交的表单
		if user.ReferrerID != nil {
			if _, err := s.userRepo.GetByIDForUpdate(ctx, tx, *user.ReferrerID); err != nil && !IsNotFound(err) {
				return err
			}
		}
		if _, err := s.formRepo.GetProject(ctx, tx, req.ProjectID); err != nil {
			return err
		}

		form := &model.Form{
			UserID:           user.ID,
			ProjectID:        req.ProjectID,
			FormTypeID:       formType.ID,
			FormData:         datatypes.JSONMap(req.FormData),
			Status:           model.FormStatusSubmitted,
			IsSpecialEdition: req.IsSpecialEdition,
		}
		if err := s.formRepo.Create(ctx, tx, form); err != nil {
			return fmt.Errorf("保存表单失败: %w", err)
		}

		if err := s.actionRepo.Record(ctx, tx, user.ID, model.ActionFormSubmitted, "form", form.ID, map[string]interface{}{
			"form_type_id": formType.ID,
			"project_id":   req.ProjectID,
		}); err != nil {
			return fmt.Errorf("记录用户行为失败: %w", err)
		}

		result.FormID = form.ID
		result.FormCompleted = true

		if user.ReferrerID == nil {
			return nil
		}
		submitted, err := s.formRepo.CountByUserID(ctx, tx, user.ID)
		if err != nil {
			return fmt.Errorf("统计提交数失败: %w", err)
		}
		if submitted != 1 {
			return nil
		}
		result.ReferralGrants, err = s.milestones.GrantReferralMilestones(ctx, tx, *user.ReferrerID)
		return err
	})
	if err != nil {
		return nil, classifyError(err)
	}

	s.notifier.Dispatch(grantEvents(result.ReferralGrants)...)
	log.Printf("[Form] 提交成功: formID=%d, userID=%d, formTypeID=%d", result.FormID, req.UserID, req.FormTypeID)
	return result, nil
}

// ApproveForm 审核通过
//
// 【关键点】以下步骤在同一事务内，先锁表单行再锁用户行：
//   1. 表单必须处于 submitted，条件更新保证只会通过一次
//   2. 基础积分 + 数量阶梯奖励入账
//   3. 活动窗口内按序号判定活动奖励
//   4. 提交里程碑判定并发放盲盒
//
// 任何一步失败整体回滚，通知在提交之后异步发送
func (s *FormService) ApproveForm(ctx context.Context, formID int64, productQuantity int) (*ApproveFormResult, error) {
	if productQuantity < 0 {
		return nil, validationError("产品数量不能为负数: %d", productQuantity)
	}

	var result *ApproveFormResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		form, err := s.formRepo.GetByIDForUpdate(ctx, tx, formID)
		if err != nil {
			return err
		}
		if form.Status != model.FormStatusSubmitted {
			return fmt.Errorf("%w: 表单当前状态 %s", ErrInvalidState, form.Status)
		}

		if _, err := s.userRepo.GetByIDForUpdate(ctx, tx, form.UserID); err != nil {
			return err
		}

		formType, err := s.formRepo.GetFormType(ctx, tx, form.FormTypeID)
		if err != nil {
			return err
		}

		now := s.now()
		bonus := s.rules.BonusPoints(formType.ID, productQuantity, form.IsSpecialEdition)
		awarded := formType.PointReward + bonus

		if err := s.formRepo.UpdateStatus(ctx, tx, form.ID, model.FormStatusSubmitted, model.FormStatusApproved, map[string]interface{}{
			"product_quantity": productQuantity,
			"points_awarded":   awarded,
			"approved_at":      now,
		}); err != nil {
			return fmt.Errorf("更新表单状态失败: %w", err)
		}

		id := form.ID
		if awarded > 0 {
			if _, err := s.ledger.Credit(ctx, tx, ledger.Entry{
				UserID:      form.UserID,
				Amount:      awarded,
				Type:        model.TransactionTypeEarn,
				Description: fmt.Sprintf("表单审核通过-#%d", form.ID),
				FormID:      &id,
			}); err != nil {
				return err
			}
		}

		var grants []MilestoneGrant
		campaign := s.rules.Campaign()
		if campaign.Covers(formType.ID, now) {
			prior, err := s.formRepo.CountApprovedInWindow(ctx, tx, form.UserID, campaign.FormTypeIDs, campaign.Start, campaign.End, form.ID)
			if err != nil {
				return fmt.Errorf("统计活动表单数失败: %w", err)
			}
			ordinal := prior + 1
			if points, ok := s.rules.CampaignBonus(formType.ID, ordinal, now); ok {
				if _, err := s.ledger.Credit(ctx, tx, ledger.Entry{
					UserID:      form.UserID,
					Amount:      points,
					Type:        model.TransactionTypeEarn,
					Description: fmt.Sprintf("活动奖励-第 %d 份表单", ordinal),
					FormID:      &id,
				}); err != nil {
					return err
				}
				grants = append(grants, MilestoneGrant{
					Kind:      GrantKindCampaignBonus,
					UserID:    form.UserID,
					Threshold: ordinal,
					Points:    points,
				})
			}
		}

		boxes, err := s.milestones.GrantSubmissionMilestones(ctx, tx, form.UserID)
		if err != nil {
			return err
		}
		grants = append(grants, boxes...)

		if err := s.actionRepo.Record(ctx, tx, form.UserID, model.ActionFormApproved, "form", form.ID, map[string]interface{}{
			"points_awarded":   awarded,
			"bonus_points":     bonus,
			"product_quantity": productQuantity,
		}); err != nil {
			return fmt.Errorf("记录用户行为失败: %w", err)
		}

		result = &ApproveFormResult{
			FormID:            form.ID,
			UserID:            form.UserID,
			PointsAwarded:     awarded,
			BonusPoints:       bonus,
			MilestonesGranted: grants,
		}
		return nil
	})
	if err != nil {
		return nil, classifyError(err)
	}

	events := []Event{newEvent(EventFormApproved, result.UserID, map[string]interface{}{
		"form_id":        result.FormID,
		"points_awarded": result.PointsAwarded,
	})}
	s.notifier.Dispatch(append(events, grantEvents(result.MilestonesGranted)...)...)

	log.Printf("[Form] 审核通过: formID=%d, userID=%d, points=%d, milestones=%d",
		result.FormID, result.UserID, result.PointsAwarded, len(result.MilestonesGranted))
	return result, nil
}

// RejectForm 驳回表单，不发放积分
func (s *FormService) RejectForm(ctx context.Context, formID int64, reason string) error {
	var userID int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		form, err := s.formRepo.GetByIDForUpdate(ctx, tx, formID)
		if err != nil {
			return err
		}
		if form.Status != model.FormStatusSubmitted {
			return fmt.Errorf("%w: 表单当前状态 %s", ErrInvalidState, form.Status)
		}
		userID = form.UserID

		if err := s.formRepo.UpdateStatus(ctx, tx, form.ID, model.FormStatusSubmitted, model.FormStatusRejected, map[string]interface{}{
			"reject_reason": reason,
		}); err != nil {
			return fmt.Errorf("更新表单状态失败: %w", err)
		}

		return s.actionRepo.Record(ctx, tx, form.UserID, model.ActionFormRejected, "form", form.ID, map[string]interface{}{
			"reason": reason,
		})
	})
	if err != nil {
		return classifyError(err)
	}

	s.notifier.Dispatch(newEvent(EventFormRejected, userID, map[string]interface{}{
		"form_id": formID,
		"reason":  reason,
	}))
	return nil
}

func (s *FormService) GetForm(ctx context.Context, formID int64) (*model.Form, error) {
	return s.formRepo.GetByID(ctx, formID)
}
