package repository

import (
	"errors"
)

var (
	ErrUserNotFound       = errors.New("用户不存在")
	ErrFormNotFound       = errors.New("表单不存在")
	ErrFormTypeNotFound   = errors.New("表单类型不存在")
	ErrProjectNotFound    = errors.New("项目不存在")
	ErrProductNotFound    = errors.New("商品不存在")
	ErrRedemptionNotFound = errors.New("兑换单不存在")
	ErrMysteryBoxNotFound = errors.New("盲盒不存在")

	ErrInsufficientBalance = errors.New("积分不足")
	ErrOutOfStock          = errors.New("库存不足")
	ErrStatusInvalid       = errors.New("状态不合法")
)

// IsNotFound 判断是否为实体不存在类错误
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrFormNotFound) ||
		errors.Is(err, ErrFormTypeNotFound) ||
		errors.Is(err, ErrProjectNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrRedemptionNotFound) ||
		errors.Is(err, ErrMysteryBoxNotFound)
}
