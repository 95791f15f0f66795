package service

import (
	"errors"
	"fmt"

	"incentive/internal/infrastructure/lock"
	"incentive/internal/repository"

	"github.com/go-sql-driver/mysql"
)

// 错误分类
//
// 资源不存在、余额不足、库存不足、状态不合法直接复用 repository 的哨兵错误，
// 调用方统一用 errors.Is 判断
var (
	ErrValidation          = errors.New("参数校验失败")
	ErrSpinLimitReached    = errors.New("转盘次数已用完")
	ErrConcurrencyConflict = errors.New("系统繁忙，请稍后重试")

	ErrInvalidState        = repository.ErrStatusInvalid
	ErrInsufficientBalance = repository.ErrInsufficientBalance
	ErrOutOfStock          = repository.ErrOutOfStock

	ErrNotEligible = fmt.Errorf("%w: 未满足抽奖条件", ErrInvalidState)
)

// MySQL 死锁 / 锁等待超时
const (
	mysqlErrDeadlock        = 1213
	mysqlErrLockWaitTimeout = 1205
)

// classifyError 把锁竞争类错误统一归为 ErrConcurrencyConflict，客户端可安全重试
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, lock.ErrLockFailed) {
		return fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		if mysqlErr.Number == mysqlErrDeadlock || mysqlErr.Number == mysqlErrLockWaitTimeout {
			return fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
		}
	}

	return err
}

// IsNotFound 资源不存在
func IsNotFound(err error) bool {
	return repository.IsNotFound(err)
}
