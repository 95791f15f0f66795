package model

import (
	"time"
)

const (
	RedemptionStatusActive   = "active"
	RedemptionStatusApproved = "approved"
	RedemptionStatusRejected = "rejected"
)

var ValidRedemptionTransitions = map[string][]string{
	RedemptionStatusActive: {RedemptionStatusApproved, RedemptionStatusRejected},
}

func CanRedemptionTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidRedemptionTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// Redemption 积分兑换单
// 创建时同步扣积分、扣库存；驳回时返还积分、回补库存
type Redemption struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RedemptionNo    string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"redemption_no"`
	UserID          int64     `gorm:"index;not null" json:"user_id"`
	ProductID       int64     `gorm:"index;not null" json:"product_id"`
	PointsSpent     int64     `gorm:"not null" json:"points_spent"`
	Status          string    `gorm:"type:varchar(16);index;not null" json:"status"`
	ShippingName    string    `gorm:"type:varchar(64)" json:"shipping_name"`
	ShippingPhone   string    `gorm:"type:varchar(32)" json:"shipping_phone"`
	ShippingAddress string    `gorm:"type:varchar(256)" json:"shipping_address"`
	ContactEmail    string    `gorm:"type:varchar(128)" json:"contact_email"`
	Remark          string    `gorm:"type:varchar(256)" json:"remark"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Redemption) TableName() string {
	return "redemptions"
}
