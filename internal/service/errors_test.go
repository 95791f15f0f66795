package service

import (
	"errors"
	"fmt"
	"testing"

	"incentive/internal/infrastructure/lock"
	"incentive/internal/repository"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
)

func TestClassifyError(t *testing.T) {
	require.NoError(t, classifyError(nil))

	deadlock := fmt.Errorf("扣减失败: %w", &mysql.MySQLError{Number: 1213, Message: "Deadlock found"})
	require.ErrorIs(t, classifyError(deadlock), ErrConcurrencyConflict)

	timeout := &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}
	require.ErrorIs(t, classifyError(timeout), ErrConcurrencyConflict)

	lockErr := fmt.Errorf("%w: points:lock:user:1", lock.ErrLockFailed)
	require.ErrorIs(t, classifyError(lockErr), ErrConcurrencyConflict)

	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	require.False(t, errors.Is(classifyError(dup), ErrConcurrencyConflict))

	require.ErrorIs(t, classifyError(repository.ErrInsufficientBalance), ErrInsufficientBalance)
}

func TestValidateRequest(t *testing.T) {
	err := validateRequest(&RedeemRequest{UserID: 1, ProductID: 2})
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "PointsSpent")

	require.NoError(t, validateRequest(&RedeemRequest{UserID: 1, ProductID: 2, PointsSpent: 10}))
}
