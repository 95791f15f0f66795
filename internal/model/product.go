package model

import (
	"time"
)

// Product 兑换商品，StockQuantity 不允许小于 0
type Product struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string    `gorm:"type:varchar(128);not null" json:"name"`
	PointsRequired int64     `gorm:"not null;default:0" json:"points_required"`
	StockQuantity  int64     `gorm:"not null;default:0" json:"stock_quantity"`
	Active         bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}
