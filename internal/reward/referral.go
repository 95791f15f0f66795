package reward

import (
	"fmt"
	"sort"
)

// ReferralMilestone 推荐人名下有提交记录的被推荐人数达到 Threshold 时奖励 Points
type ReferralMilestone struct {
	Threshold int
	Points    int64
}

var DefaultReferralMilestones = []ReferralMilestone{
	{Threshold: 8, Points: 1500},
	{Threshold: 16, Points: 3000},
	{Threshold: 21, Points: 5000},
}

// GrantedFunc 查询某个阈值是否已发放
type GrantedFunc func(threshold int) (bool, error)

// ReferralPolicy 推荐里程碑触发策略
type ReferralPolicy interface {
	Name() string
	// Due 返回本次需要发放的里程碑
	Due(count int64, milestones []ReferralMilestone, granted GrantedFunc) ([]ReferralMilestone, error)
	// RecordsGrants 发放后是否需要写入 referral_milestones
	RecordsGrants() bool
}

const (
	ReferralPolicyExact    = "exact"
	ReferralPolicyCrossing = "crossing"
)

// ExactMatchPolicy 人数恰好等于阈值时发放，不落库
//
// 与历史行为一致。依赖计数每次只 +1 且只在被推荐人首次提交时判定；
// 计数一旦跳过或重复某个值，该里程碑会漏发或重发
type ExactMatchPolicy struct{}

func (ExactMatchPolicy) Name() string { return ReferralPolicyExact }

func (ExactMatchPolicy) RecordsGrants() bool { return false }

func (ExactMatchPolicy) Due(count int64, milestones []ReferralMilestone, _ GrantedFunc) ([]ReferralMilestone, error) {
	var due []ReferralMilestone
	for _, m := range milestones {
		if int64(m.Threshold) == count {
			due = append(due, m)
		}
	}
	return due, nil
}

// CrossingPolicy 所有 <= count 且尚未发放的阈值都发放，发放记录落库去重
type CrossingPolicy struct{}

func (CrossingPolicy) Name() string { return ReferralPolicyCrossing }

func (CrossingPolicy) RecordsGrants() bool { return true }

func (CrossingPolicy) Due(count int64, milestones []ReferralMilestone, granted GrantedFunc) ([]ReferralMilestone, error) {
	sorted := make([]ReferralMilestone, len(milestones))
	copy(sorted, milestones)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Threshold < sorted[j].Threshold })

	var due []ReferralMilestone
	for _, m := range sorted {
		if int64(m.Threshold) > count {
			break
		}
		ok, err := granted(m.Threshold)
		if err != nil {
			return nil, err
		}
		if !ok {
			due = append(due, m)
		}
	}
	return due, nil
}

func PolicyByName(name string) (ReferralPolicy, error) {
	switch name {
	case "", ReferralPolicyExact:
		return ExactMatchPolicy{}, nil
	case ReferralPolicyCrossing:
		return CrossingPolicy{}, nil
	default:
		return nil, fmt.Errorf("未知的推荐里程碑策略: %s", name)
	}
}
