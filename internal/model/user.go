package model

import (
	"time"
)

// User 用户及其积分账户
//
// 三个积分计数器：
//   - TotalPoints：可用积分，兑换时扣减，任何时刻 >= 0
//   - AccomplishmentTotalPoints：累计获得积分，用于排行，兑换不扣减
//   - LifetimeTotalPoints：历史总积分，只增不减（管理员冲正除外）
//
// 计数器只能通过 ledger 包修改，保证每次变动都有一条流水
type User struct {
	ID                        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name                      string    `gorm:"type:varchar(64);not null" json:"name"`
	Email                     string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"email"`
	CompanyID                 int64     `gorm:"index;not null;default:0" json:"company_id"`
	ReferrerID                *int64    `gorm:"index" json:"referrer_id,omitempty"` // 推荐人
	TotalPoints               int64     `gorm:"not null;default:0" json:"total_points"`
	AccomplishmentTotalPoints int64     `gorm:"not null;default:0" json:"accomplishment_total_points"`
	LifetimeTotalPoints       int64     `gorm:"not null;default:0" json:"lifetime_total_points"`
	CreatedAt                 time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                 time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
