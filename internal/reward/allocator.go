package reward

import (
	"errors"
	"math/rand"
	"sync"
	"time"
)

var ErrEmptyTable = errors.New("奖池为空")

// Rand 随机源，测试中注入固定序列
type Rand interface {
	Intn(n int) int
}

// Prize 奖池中的一项，ProductID 为 0 表示纯积分奖励
type Prize struct {
	ProductID int64
	Points    int64
	Name      string
	Weight    int
}

func (p Prize) IsProduct() bool {
	return p.ProductID > 0
}

// Table 加权奖池，实物缺货时降级为 FallbackPoints 积分
type Table struct {
	Prizes         []Prize
	FallbackPoints int64
	FallbackName   string
}

// Fallback 缺货兜底奖励，不受库存限制
func (t Table) Fallback() Prize {
	name := t.FallbackName
	if name == "" {
		name = "积分奖励"
	}
	return Prize{Points: t.FallbackPoints, Name: name}
}

// Allocator 加权随机抽取
type Allocator struct {
	mu  sync.Mutex
	rnd Rand
}

func NewAllocator(rnd Rand) *Allocator {
	return &Allocator{rnd: rnd}
}

// NewSeededAllocator seed 为 0 时使用当前时间
func NewSeededAllocator(seed int64) *Allocator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return NewAllocator(rand.New(rand.NewSource(seed)))
}

// Draw 按权重抽取一项
//
// 取 [1, totalWeight] 的随机数，沿累积权重找到第一个覆盖它的奖项。
// 例如权重 60/40：1-60 命中第一项，61-100 命中第二项
func (a *Allocator) Draw(t Table) (Prize, error) {
	totalWeight := 0
	for _, p := range t.Prizes {
		if p.Weight > 0 {
			totalWeight += p.Weight
		}
	}
	if totalWeight <= 0 {
		return Prize{}, ErrEmptyTable
	}

	// rand.Rand 不是并发安全的
	a.mu.Lock()
	pick := a.rnd.Intn(totalWeight) + 1
	a.mu.Unlock()

	acc := 0
	for _, p := range t.Prizes {
		if p.Weight <= 0 {
			continue
		}
		acc += p.Weight
		if pick <= acc {
			return p, nil
		}
	}
	return t.Prizes[len(t.Prizes)-1], nil
}
