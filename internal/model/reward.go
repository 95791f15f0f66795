package model

import (
	"time"
)

const (
	MysteryBoxStatusAvailable = "available"
	MysteryBoxStatusClaimed   = "claimed"
)

// UserMysteryBox 盲盒发放记录
// (user_id, milestone_reached) 唯一，防止同一里程碑重复发放
type UserMysteryBox struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID           int64      `gorm:"not null;uniqueIndex:idx_user_milestone,priority:1" json:"user_id"`
	MilestoneReached int        `gorm:"not null;uniqueIndex:idx_user_milestone,priority:2" json:"milestone_reached"`
	ProductID        *int64     `json:"product_id,omitempty"`
	FallbackPoints   int64      `gorm:"not null;default:0" json:"fallback_points"` // 商品缺货时改发的积分
	Status           string     `gorm:"type:varchar(16);index;not null" json:"status"`
	ClaimedAt        *time.Time `json:"claimed_at,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UserMysteryBox) TableName() string {
	return "user_mystery_boxes"
}

const (
	SpinStatusPendingDelivery = "pending_delivery" // 抽中实物，待发货
	SpinStatusCredited        = "credited"         // 积分已入账
)

// FortuneWheelSpin 转盘抽奖记录，行数即为已用次数
type FortuneWheelSpin struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        int64     `gorm:"index;not null" json:"user_id"`
	ProductID     *int64    `json:"product_id,omitempty"`
	PrizeName     string    `gorm:"type:varchar(128);not null" json:"prize_name"`
	PointsAwarded int64     `gorm:"not null;default:0" json:"points_awarded"`
	Status        string    `gorm:"type:varchar(20);not null" json:"status"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (FortuneWheelSpin) TableName() string {
	return "fortune_wheel_spins"
}

// ReferralMilestone 推荐里程碑发放记录，仅 crossing 策略使用
type ReferralMilestone struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ReferrerID int64     `gorm:"not null;uniqueIndex:idx_referrer_threshold,priority:1" json:"referrer_id"`
	Threshold  int       `gorm:"not null;uniqueIndex:idx_referrer_threshold,priority:2" json:"threshold"`
	Points     int64     `gorm:"not null" json:"points"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ReferralMilestone) TableName() string {
	return "referral_milestones"
}
