package repository

import (
	"context"

	"incentive/internal/model"

	"gorm.io/gorm"
)

// TransactionRepository 积分流水，只提供追加和查询
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.PointTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

func (r *TransactionRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.PointTransaction, int64, error) {
	var transactions []*model.PointTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.PointTransaction{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}

// SumByUserID 用户全部流水之和，应等于 total_points
func (r *TransactionRepository) SumByUserID(ctx context.Context, tx *gorm.DB, userID int64) (int64, error) {
	return r.sum(ctx, tx, "user_id = ?", userID)
}

// SumCumulativeByUserID 计入累计积分的流水之和，应等于 accomplishment_total_points
func (r *TransactionRepository) SumCumulativeByUserID(ctx context.Context, tx *gorm.DB, userID int64) (int64, error) {
	return r.sum(ctx, tx, "user_id = ? AND cumulative = ?", userID, true)
}

func (r *TransactionRepository) sum(ctx context.Context, tx *gorm.DB, query string, args ...interface{}) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	var total int64
	err := tx.WithContext(ctx).
		Model(&model.PointTransaction{}).
		Where(query, args...).
		Select("COALESCE(SUM(points), 0)").
		Scan(&total).Error
	return total, err
}
