package service

import (
	"time"

	"incentive/internal/infrastructure/lock"
	"incentive/internal/reward"

	"gorm.io/gorm"
)

// Deps 各业务服务共享的依赖
type Deps struct {
	DB        *gorm.DB
	Locker    *lock.Locker
	Notifier  *Notifier
	Allocator *reward.Allocator
	Settings  *reward.Settings
	Now       func() time.Time // 为空时使用 time.Now
}

func (d Deps) settings() *reward.Settings {
	if d.Settings == nil {
		return reward.DefaultSettings()
	}
	return d.Settings
}

func (d Deps) allocator() *reward.Allocator {
	if d.Allocator == nil {
		return reward.NewSeededAllocator(0)
	}
	return d.Allocator
}

func (d Deps) clock() func() time.Time {
	if d.Now == nil {
		return time.Now
	}
	return d.Now
}
