package repository

import (
	"context"
	"errors"
	"time"

	"incentive/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FormRepository struct {
	db *gorm.DB
}

func NewFormRepository(db *gorm.DB) *FormRepository {
	return &FormRepository{db: db}
}

func (r *FormRepository) Create(ctx context.Context, tx *gorm.DB, form *model.Form) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(form).Error
}

func (r *FormRepository) GetByID(ctx context.Context, formID int64) (*model.Form, error) {
	var form model.Form
	err := r.db.WithContext(ctx).Where("id = ?", formID).First(&form).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, err
	}
	return &form, nil
}

func (r *FormRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, formID int64) (*model.Form, error) {
	var form model.Form
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", formID).
		First(&form).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, err
	}
	return &form, nil
}

// UpdateStatus 条件更新状态，只有当前状态为 fromStatus 才会成功
func (r *FormRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, formID int64, fromStatus, toStatus string, extra map[string]interface{}) error {
	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}
	for k, v := range extra {
		updates[k] = v
	}

	result := tx.WithContext(ctx).
		Model(&model.Form{}).
		Where("id = ? AND status = ?", formID, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrStatusInvalid
	}

	return nil
}

// CountByUserID 用户提交的表单总数（不区分状态）
func (r *FormRepository) CountByUserID(ctx context.Context, tx *gorm.DB, userID int64) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	var count int64
	err := tx.WithContext(ctx).Model(&model.Form{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func (r *FormRepository) CountApprovedByUserID(ctx context.Context, tx *gorm.DB, userID int64) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	var count int64
	err := tx.WithContext(ctx).
		Model(&model.Form{}).
		Where("user_id = ? AND status = ?", userID, model.FormStatusApproved).
		Count(&count).Error
	return count, err
}

// CountApprovedInWindow 活动窗口内指定表单类型的已通过数量，excludeFormID 为当前正在审核的表单
func (r *FormRepository) CountApprovedInWindow(ctx context.Context, tx *gorm.DB, userID int64, formTypeIDs []int64, start, end time.Time, excludeFormID int64) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	var count int64
	err := tx.WithContext(ctx).
		Model(&model.Form{}).
		Where("user_id = ? AND status = ? AND id <> ?", userID, model.FormStatusApproved, excludeFormID).
		Where("form_type_id IN ?", formTypeIDs).
		Where("approved_at >= ? AND approved_at < ?", start, end).
		Count(&count).Error
	return count, err
}

func (r *FormRepository) GetFormType(ctx context.Context, tx *gorm.DB, formTypeID int64) (*model.FormType, error) {
	if tx == nil {
		tx = r.db
	}
	var formType model.FormType
	err := tx.WithContext(ctx).Where("id = ?", formTypeID).First(&formType).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFormTypeNotFound
		}
		return nil, err
	}
	return &formType, nil
}

func (r *FormRepository) GetProject(ctx context.Context, tx *gorm.DB, projectID int64) (*model.Project, error) {
	if tx == nil {
		tx = r.db
	}
	var project model.Project
	err := tx.WithContext(ctx).Where("id = ?", projectID).First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return &project, nil
}
