package repository

import (
	"context"
	"errors"

	"incentive/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, tx *gorm.DB, user *model.User) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) GetByID(ctx context.Context, tx *gorm.DB, userID int64) (*model.User, error) {
	if tx == nil {
		tx = r.db
	}
	var user model.User
	err := tx.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetByIDForUpdate 行锁读取用户
//
// 【关键点】同一用户的所有积分事务都先锁用户行：
// 里程碑判定、抽奖次数校验、余额校验都在这把锁下完成，并发请求在这里排队。
//
// REPEATABLE READ 下事务的快照在第一次普通读时建立，
// 所以行锁必须在事务内任何普通读之前获取，否则锁后读到的仍是加锁前的旧快照。
// 锁后依赖其他事务写入的计数查询（推荐人数、里程碑是否已发放）一律用 SHARE 锁读
func (r *UserRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, userID int64) (*model.User, error) {
	var user model.User
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", userID).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ApplyDelta 变更积分计数器
// delta 作用于 total_points，cumulativeDelta 作用于 accomplishment/lifetime
// 扣减时带 total_points >= ? 条件，保证余额不会为负
func (r *UserRepository) ApplyDelta(ctx context.Context, tx *gorm.DB, userID int64, delta, cumulativeDelta int64) error {
	query := tx.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID)
	if delta < 0 {
		query = query.Where("total_points >= ?", -delta)
	}

	updates := map[string]interface{}{
		"total_points": gorm.Expr("total_points + ?", delta),
	}
	if cumulativeDelta != 0 {
		updates["accomplishment_total_points"] = gorm.Expr("accomplishment_total_points + ?", cumulativeDelta)
		updates["lifetime_total_points"] = gorm.Expr("lifetime_total_points + ?", cumulativeDelta)
	}

	result := query.Updates(updates)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, tx, userID); err != nil {
			return err
		}
		return ErrInsufficientBalance
	}

	return nil
}

// CountReferredWithSubmissions 统计推荐人名下至少提交过一份表单的被推荐用户数
// 锁定读，读取最新已提交数据而不是事务快照
func (r *UserRepository) CountReferredWithSubmissions(ctx context.Context, tx *gorm.DB, referrerID int64) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	var count int64
	err := tx.WithContext(ctx).
		Model(&model.User{}).
		Clauses(clause.Locking{Strength: "SHARE"}).
		Joins("JOIN forms ON forms.user_id = users.id").
		Where("users.referrer_id = ?", referrerID).
		Distinct("users.id").
		Count(&count).Error
	return count, err
}

// ListIDsAfter 按主键分批遍历用户，供对账任务使用
func (r *UserRepository) ListIDsAfter(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
