package reward

import (
	"fmt"
	"sort"

	"incentive/internal/config"
)

// MaxSpins 每个用户转盘抽奖次数上限
const MaxSpins = 2

// MysteryBoxTier 审核通过数达到 Threshold 时发放一个盲盒
type MysteryBoxTier struct {
	Threshold int
	Table     Table
}

var DefaultMysteryBoxTiers = []MysteryBoxTier{
	{Threshold: 5, Table: Table{
		Prizes:         []Prize{{ProductID: 1, Weight: 60}, {ProductID: 2, Weight: 40}},
		FallbackPoints: 500,
	}},
	{Threshold: 10, Table: Table{
		Prizes:         []Prize{{ProductID: 3, Weight: 30}, {ProductID: 4, Weight: 70}},
		FallbackPoints: 1000,
	}},
	{Threshold: 50, Table: Table{
		Prizes:         []Prize{{ProductID: 5, Weight: 100}},
		FallbackPoints: 5000,
	}},
}

var DefaultFortuneWheelTable = Table{
	Prizes: []Prize{
		{Name: "200 积分", Points: 200, Weight: 50},
		{Name: "500 积分", Points: 500, Weight: 30},
		{Name: "1000 积分", Points: 1000, Weight: 20},
	},
	FallbackPoints: 200,
}

// FortuneWheel 转盘规则
// MinApprovedForms 为 0 时只按次数限制，大于 0 时还要求审核通过表单数达标
type FortuneWheel struct {
	MaxSpins         int
	MinApprovedForms int
	Table            Table
}

// Settings 积分引擎用到的全部奖励规则
type Settings struct {
	Rules              *RuleEngine
	MysteryBoxTiers    []MysteryBoxTier
	ReferralMilestones []ReferralMilestone
	ReferralPolicy     ReferralPolicy
	FortuneWheel       FortuneWheel
}

// DefaultSettings 不配置活动窗口的默认规则
func DefaultSettings() *Settings {
	return &Settings{
		Rules:              NewRuleEngine(nil, Campaign{}),
		MysteryBoxTiers:    DefaultMysteryBoxTiers,
		ReferralMilestones: DefaultReferralMilestones,
		ReferralPolicy:     ExactMatchPolicy{},
		FortuneWheel: FortuneWheel{
			MaxSpins: MaxSpins,
			Table:    DefaultFortuneWheelTable,
		},
	}
}

func prizesFromConfig(items []config.PrizeConfig) []Prize {
	prizes := make([]Prize, 0, len(items))
	for _, p := range items {
		prizes = append(prizes, Prize{ProductID: p.ProductID, Points: p.Points, Name: p.Name, Weight: p.Weight})
	}
	return prizes
}

// SettingsFromConfig 用配置覆盖默认规则，未配置的部分保留默认值
func SettingsFromConfig(cfg config.RewardConfig) (*Settings, error) {
	s := DefaultSettings()

	start, end, err := cfg.CampaignWindow()
	if err != nil {
		return nil, fmt.Errorf("活动时间窗口配置错误: %w", err)
	}
	campaign := Campaign{Start: start, End: end, FormTypeIDs: cfg.CampaignFormTypeIDs, Checkpoints: DefaultCheckpoints}
	if len(cfg.CampaignCheckpoints) > 0 {
		campaign.Checkpoints = make([]Checkpoint, 0, len(cfg.CampaignCheckpoints))
		for _, cp := range cfg.CampaignCheckpoints {
			campaign.Checkpoints = append(campaign.Checkpoints, Checkpoint{Ordinal: int64(cp.Ordinal), Points: cp.Points})
		}
	}
	s.Rules = NewRuleEngine(nil, campaign)

	if len(cfg.MysteryBoxTiers) > 0 {
		tiers := make([]MysteryBoxTier, 0, len(cfg.MysteryBoxTiers))
		for _, t := range cfg.MysteryBoxTiers {
			if t.FallbackPoints <= 0 {
				return nil, fmt.Errorf("盲盒里程碑 %d 未配置缺货兜底积分", t.Threshold)
			}
			tiers = append(tiers, MysteryBoxTier{
				Threshold: t.Threshold,
				Table:     Table{Prizes: prizesFromConfig(t.Prizes), FallbackPoints: t.FallbackPoints},
			})
		}
		sort.Slice(tiers, func(i, j int) bool { return tiers[i].Threshold < tiers[j].Threshold })
		s.MysteryBoxTiers = tiers
	}

	if len(cfg.ReferralMilestones) > 0 {
		milestones := make([]ReferralMilestone, 0, len(cfg.ReferralMilestones))
		for _, m := range cfg.ReferralMilestones {
			milestones = append(milestones, ReferralMilestone{Threshold: m.Threshold, Points: m.Points})
		}
		s.ReferralMilestones = milestones
	}

	if s.ReferralPolicy, err = PolicyByName(cfg.ReferralPolicy); err != nil {
		return nil, err
	}

	wheel := cfg.FortuneWheel
	if wheel.MaxSpins > 0 {
		s.FortuneWheel.MaxSpins = wheel.MaxSpins
	}
	if wheel.MinApprovedForms < 0 {
		return nil, fmt.Errorf("转盘最少审核通过数不能为负: %d", wheel.MinApprovedForms)
	}
	s.FortuneWheel.MinApprovedForms = wheel.MinApprovedForms
	if len(wheel.Prizes) > 0 {
		if wheel.FallbackPoints <= 0 {
			return nil, fmt.Errorf("转盘未配置缺货兜底积分")
		}
		s.FortuneWheel.Table = Table{Prizes: prizesFromConfig(wheel.Prizes), FallbackPoints: wheel.FallbackPoints}
	}

	return s, nil
}
