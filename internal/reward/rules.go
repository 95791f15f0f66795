package reward

import (
	"time"
)

// BonusTable 按数量分档的奖励积分
//   - Small:  数量 [1, 50]
//   - Medium: 数量 (50, 300]
//   - Large:  数量 > 300
type BonusTable struct {
	Small  int64
	Medium int64
	Large  int64
}

// 特别版倍率，与 BonusTable 三档一一对应，只作用于奖励积分，不作用于表单类型基础积分
var specialEditionMultipliers = [3]int64{5, 7, 10}

// DefaultBonusTables 默认表单类型奖励表
var DefaultBonusTables = map[int64]BonusTable{
	1: {Small: 10, Medium: 30, Large: 60},
	2: {Small: 20, Medium: 50, Large: 100},
	3: {Small: 5, Medium: 15, Large: 30},
}

// Checkpoint 活动期间第 Ordinal 次符合条件的审核通过，一次性奖励 Points
type Checkpoint struct {
	Ordinal int64
	Points  int64
}

var DefaultCheckpoints = []Checkpoint{
	{Ordinal: 31, Points: 6000},
	{Ordinal: 41, Points: 8000},
	{Ordinal: 51, Points: 10000},
}

// Campaign 限时活动，窗口为 [Start, End)
// Start/End 任一为零值视为未开启
type Campaign struct {
	Start       time.Time
	End         time.Time
	FormTypeIDs []int64
	Checkpoints []Checkpoint
}

func (c Campaign) Enabled() bool {
	return !c.Start.IsZero() && !c.End.IsZero() && len(c.FormTypeIDs) > 0 && len(c.Checkpoints) > 0
}

// Covers 表单类型参与活动且 at 落在窗口内
func (c Campaign) Covers(formTypeID int64, at time.Time) bool {
	if !c.Enabled() {
		return false
	}
	if at.Before(c.Start) || !at.Before(c.End) {
		return false
	}
	for _, id := range c.FormTypeIDs {
		if id == formTypeID {
			return true
		}
	}
	return false
}

// RuleEngine 奖励规则，纯函数，不访问存储也不读取系统时间
type RuleEngine struct {
	tables   map[int64]BonusTable
	campaign Campaign
}

func NewRuleEngine(tables map[int64]BonusTable, campaign Campaign) *RuleEngine {
	if len(tables) == 0 {
		tables = DefaultBonusTables
	}
	return &RuleEngine{tables: tables, campaign: campaign}
}

func (e *RuleEngine) Campaign() Campaign {
	return e.campaign
}

func band(quantity int) int {
	switch {
	case quantity <= 50:
		return 0
	case quantity <= 300:
		return 1
	default:
		return 2
	}
}

// BonusPoints 根据表单类型和产品数量计算奖励积分
// 未知表单类型或数量小于 1 返回 0
func (e *RuleEngine) BonusPoints(formTypeID int64, quantity int, isSpecialEdition bool) int64 {
	table, ok := e.tables[formTypeID]
	if !ok || quantity < 1 {
		return 0
	}

	b := band(quantity)
	var bonus int64
	switch b {
	case 0:
		bonus = table.Small
	case 1:
		bonus = table.Medium
	default:
		bonus = table.Large
	}

	if isSpecialEdition {
		bonus *= specialEditionMultipliers[b]
	}
	return bonus
}

// CampaignBonus 活动里程碑奖励
//
// ordinal 由调用方在用户行锁内计算：窗口内此前已通过的符合条件表单数 + 1。
// 只有恰好命中某个 Checkpoint 才发放，之后的审核不会重复命中
func (e *RuleEngine) CampaignBonus(formTypeID int64, ordinal int64, at time.Time) (int64, bool) {
	if !e.campaign.Covers(formTypeID, at) {
		return 0, false
	}
	for _, cp := range e.campaign.Checkpoints {
		if cp.Ordinal == ordinal {
			return cp.Points, true
		}
	}
	return 0, false
}
