package repository

import (
	"context"

	"incentive/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type UserActionRepository struct {
	db *gorm.DB
}

func NewUserActionRepository(db *gorm.DB) *UserActionRepository {
	return &UserActionRepository{db: db}
}

// Record 写入一条审计记录，与业务写操作共用同一个事务
func (r *UserActionRepository) Record(ctx context.Context, tx *gorm.DB, userID int64, action, targetType string, targetID int64, detail map[string]interface{}) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(&model.UserAction{
		UserID:     userID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Detail:     datatypes.JSONMap(detail),
	}).Error
}

func (r *UserActionRepository) ListByUserID(ctx context.Context, userID int64, limit int) ([]*model.UserAction, error) {
	var actions []*model.UserAction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&actions).Error
	return actions, err
}
