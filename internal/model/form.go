package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	FormStatusSubmitted = "submitted"
	FormStatusApproved  = "approved"
	FormStatusRejected  = "rejected"
)

type Project struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(128);not null" json:"name"`
	CompanyID int64     `gorm:"index;not null;default:0" json:"company_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Project) TableName() string {
	return "projects"
}

// FormType 表单类型，PointReward 为审核通过的基础积分
type FormType struct {
	ID             int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string         `gorm:"type:varchar(64);not null" json:"name"`
	PointReward    int64          `gorm:"not null;default:0" json:"point_reward"`
	RequiredFields datatypes.JSON `json:"required_fields"` // ["field_a","field_b"]
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (FormType) TableName() string {
	return "form_types"
}

// Form 用户提交的表单，审核通过是积分发放与里程碑判定的触发点
type Form struct {
	ID               int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID           int64             `gorm:"index;not null" json:"user_id"`
	ProjectID        int64             `gorm:"index;not null" json:"project_id"`
	FormTypeID       int64             `gorm:"index;not null" json:"form_type_id"`
	FormData         datatypes.JSONMap `json:"form_data"`
	Status           string            `gorm:"type:varchar(16);index;not null" json:"status"`
	ProductQuantity  int               `gorm:"not null;default:0" json:"product_quantity"`
	IsSpecialEdition bool              `gorm:"not null;default:false" json:"is_special_edition"`
	PointsAwarded    int64             `gorm:"not null;default:0" json:"points_awarded"`
	RejectReason     string            `gorm:"type:varchar(256)" json:"reject_reason,omitempty"`
	ApprovedAt       *time.Time        `gorm:"index" json:"approved_at,omitempty"`
	CreatedAt        time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Form) TableName() string {
	return "forms"
}
