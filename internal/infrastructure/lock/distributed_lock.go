package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// 分布式锁
// ============================================================================
//
// 数据库行锁已经保证了正确性，这把锁挡在事务之外：
// 同一用户的兑换 / 抽奖、同一兑换单的审核在进入数据库前先排队，
// 减少行锁等待和死锁重试。
//
// 加锁：SET key token NX EX timeout
// 释放：Lua 脚本比对 token 后再 DEL，避免误删别人的锁
//
// ============================================================================

var ErrLockFailed = errors.New("获取分布式锁失败")

const unlockScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	token      string // 持有者标识
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		token:      uuid.NewString(),
		expiration: expiration,
	}
}

func (l *DistributedLock) Key() string {
	return l.key
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.token, l.expiration).Result()
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁，只删除自己持有的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	return l.client.Eval(ctx, unlockScript, []string{l.key}, l.token).Err()
}

// ============================================================================
// 业务锁
// ============================================================================

// Locker 按业务维度创建锁
type Locker struct {
	client        *redis.Client
	expiration    time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewLocker(client *redis.Client, expiration time.Duration) *Locker {
	if expiration <= 0 {
		expiration = 30 * time.Second
	}
	return &Locker{
		client:        client,
		expiration:    expiration,
		retryInterval: 50 * time.Millisecond,
		maxRetries:    int(expiration / (50 * time.Millisecond)),
	}
}

// UserLock 按用户加锁：兑换、抽奖
func (lk *Locker) UserLock(userID int64) *DistributedLock {
	return NewDistributedLock(lk.client, fmt.Sprintf("points:lock:user:%d", userID), lk.expiration)
}

// RedemptionLock 按兑换单加锁：审核通过 / 驳回
func (lk *Locker) RedemptionLock(redemptionID int64) *DistributedLock {
	return NewDistributedLock(lk.client, fmt.Sprintf("points:lock:redemption:%d", redemptionID), lk.expiration)
}

// WithLock 持锁执行 fn，获取失败返回 ErrLockFailed
func (lk *Locker) WithLock(ctx context.Context, l *DistributedLock, fn func() error) error {
	if err := l.Lock(ctx, lk.retryInterval, lk.maxRetries); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrLockFailed, l.Key(), err)
	}
	defer l.Unlock(context.Background())
	return fn()
}
