package model

import (
	"time"
)

// ============================================================================
// 积分流水类型常量
// ============================================================================

const (
	TransactionTypeEarn   = "earn"   // 获得积分（表单审核通过、里程碑奖励等）
	TransactionTypeSpend  = "spend"  // 兑换消费
	TransactionTypeAdjust = "adjust" // 调整（驳回返还、管理员冲正）
)

// ============================================================================
// 积分流水实体
// ============================================================================

// PointTransaction 积分流水表
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 仅在整个用户账户删除时级联清理
// 2. 某用户所有流水 points 之和 == users.total_points（对账依据）
// 3. Cumulative 标记该笔流水是否计入累计积分，累计积分 == Cumulative 流水之和
type PointTransaction struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo   string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	UserID          int64     `gorm:"index;not null" json:"user_id"`
	Points          int64     `gorm:"not null" json:"points"` // 正数入账，负数出账
	TransactionType string    `gorm:"type:varchar(16);not null" json:"transaction_type"`
	Cumulative      bool      `gorm:"not null;default:false" json:"cumulative"`
	Description     string    `gorm:"type:varchar(256)" json:"description"`
	FormID          *int64    `gorm:"index" json:"form_id,omitempty"`
	RedemptionID    *int64    `gorm:"index" json:"redemption_id,omitempty"`
	BalanceBefore   int64     `gorm:"not null" json:"balance_before"`
	BalanceAfter    int64     `gorm:"not null" json:"balance_after"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (PointTransaction) TableName() string {
	return "points_transactions"
}
