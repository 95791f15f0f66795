package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ActionFormSubmitted      = "form_submitted"
	ActionFormApproved       = "form_approved"
	ActionFormRejected       = "form_rejected"
	ActionRedeem             = "redeem"
	ActionRedemptionApproved = "redemption_approved"
	ActionRedemptionRejected = "redemption_rejected"
	ActionMysteryBoxGranted  = "mystery_box_granted"
	ActionMysteryBoxClaimed  = "mystery_box_claimed"
	ActionFortuneWheelSpin   = "fortune_wheel_spin"
	ActionReferralBonus      = "referral_bonus"
	ActionPointsAdjusted     = "points_adjusted"
)

// UserAction 操作审计记录，与业务数据写在同一个事务里
type UserAction struct {
	ID         int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     int64             `gorm:"index;not null" json:"user_id"`
	Action     string            `gorm:"type:varchar(32);index;not null" json:"action"`
	TargetType string            `gorm:"type:varchar(32)" json:"target_type"`
	TargetID   int64             `json:"target_id"`
	Detail     datatypes.JSONMap `json:"detail"`
	CreatedAt  time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
}

func (UserAction) TableName() string {
	return "user_actions"
}
