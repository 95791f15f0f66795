package service

import (
	"context"
	"errors"
	"log"

	"incentive/internal/repository"
	"incentive/internal/reward"

	"gorm.io/gorm"
)

// allocation 一次奖品分配结果
type allocation struct {
	Prize     reward.Prize
	FellBack  bool // 实物缺货或奖池为空，已降级为积分
	ProductID *int64
}

// allocate 从奖池抽取一项，实物奖品在同一事务内扣减库存
//
// 【关键点】库存扣减是带条件的原子更新：
// 抽中的商品已无库存（或已下架删除）时不报错，改发奖池的兜底积分
func allocate(ctx context.Context, tx *gorm.DB, allocator *reward.Allocator, productRepo *repository.ProductRepository, table reward.Table) (*allocation, error) {
	prize, err := allocator.Draw(table)
	if err != nil {
		if errors.Is(err, reward.ErrEmptyTable) {
			return &allocation{Prize: table.Fallback(), FellBack: true}, nil
		}
		return nil, err
	}

	if !prize.IsProduct() {
		return &allocation{Prize: prize}, nil
	}

	return reserveProduct(ctx, tx, productRepo, prize, table)
}

// reserveProduct 为指定商品扣减一件库存，缺货时降级
func reserveProduct(ctx context.Context, tx *gorm.DB, productRepo *repository.ProductRepository, prize reward.Prize, table reward.Table) (*allocation, error) {
	err := productRepo.DecrementStock(ctx, tx, prize.ProductID, 1)
	if err != nil {
		if errors.Is(err, repository.ErrOutOfStock) || errors.Is(err, repository.ErrProductNotFound) {
			log.Printf("[Allocator] 奖品不可用，降级为积分: productID=%d, err=%v", prize.ProductID, err)
			return &allocation{Prize: table.Fallback(), FellBack: true}, nil
		}
		return nil, err
	}

	if prize.Name == "" {
		product, err := productRepo.GetByID(ctx, tx, prize.ProductID)
		if err != nil {
			return nil, err
		}
		prize.Name = product.Name
	}

	productID := prize.ProductID
	return &allocation{Prize: prize, ProductID: &productID}, nil
}
