package reward

import (
	"testing"

	"incentive/internal/config"

	"github.com/stretchr/testify/require"
)

func neverGranted(int) (bool, error) { return false, nil }

func TestExactMatchPolicy(t *testing.T) {
	p := ExactMatchPolicy{}

	due, err := p.Due(8, DefaultReferralMilestones, neverGranted)
	require.NoError(t, err)
	require.Equal(t, []ReferralMilestone{{Threshold: 8, Points: 1500}}, due)

	due, err = p.Due(9, DefaultReferralMilestones, neverGranted)
	require.NoError(t, err)
	require.Empty(t, due, "skipping past a threshold never grants it")

	require.False(t, p.RecordsGrants())
}

func TestCrossingPolicy(t *testing.T) {
	p := CrossingPolicy{}
	granted := map[int]bool{8: true}
	lookup := func(threshold int) (bool, error) { return granted[threshold], nil }

	due, err := p.Due(17, DefaultReferralMilestones, lookup)
	require.NoError(t, err)
	require.Equal(t, []ReferralMilestone{{Threshold: 16, Points: 3000}}, due)

	due, err = p.Due(7, DefaultReferralMilestones, lookup)
	require.NoError(t, err)
	require.Empty(t, due)

	require.True(t, p.RecordsGrants())
}

func TestPolicyByName(t *testing.T) {
	p, err := PolicyByName("")
	require.NoError(t, err)
	require.Equal(t, ReferralPolicyExact, p.Name())

	p, err = PolicyByName("crossing")
	require.NoError(t, err)
	require.Equal(t, ReferralPolicyCrossing, p.Name())

	_, err = PolicyByName("bogus")
	require.Error(t, err)
}

func TestSettingsFromConfig(t *testing.T) {
	s, err := SettingsFromConfig(config.RewardConfig{
		CampaignStart:       "2024-03-01",
		CampaignEnd:         "2024-07-01",
		CampaignFormTypeIDs: []int64{2},
		ReferralPolicy:      "crossing",
		MysteryBoxTiers: []config.MysteryBoxTierConfig{
			{Threshold: 10, FallbackPoints: 100, Prizes: []config.PrizeConfig{{ProductID: 9, Weight: 1}}},
			{Threshold: 3, FallbackPoints: 50, Prizes: []config.PrizeConfig{{ProductID: 8, Weight: 1}}},
		},
	})
	require.NoError(t, err)

	require.True(t, s.Rules.Campaign().Enabled())
	require.Equal(t, DefaultCheckpoints, s.Rules.Campaign().Checkpoints)
	require.Equal(t, ReferralPolicyCrossing, s.ReferralPolicy.Name())
	require.Len(t, s.MysteryBoxTiers, 2)
	require.Equal(t, 3, s.MysteryBoxTiers[0].Threshold)
	require.Equal(t, DefaultReferralMilestones, s.ReferralMilestones)
	require.Equal(t, MaxSpins, s.FortuneWheel.MaxSpins)

	require.Equal(t, 0, s.FortuneWheel.MinApprovedForms)

	_, err = SettingsFromConfig(config.RewardConfig{CampaignStart: "03/01/2024"})
	require.Error(t, err)
}

func TestSettingsFromConfigFortuneWheel(t *testing.T) {
	s, err := SettingsFromConfig(config.RewardConfig{
		FortuneWheel: config.FortuneWheelConfig{MaxSpins: 3, MinApprovedForms: 2},
	})
	require.NoError(t, err)
	require.Equal(t, 3, s.FortuneWheel.MaxSpins)
	require.Equal(t, 2, s.FortuneWheel.MinApprovedForms)
	require.Equal(t, DefaultFortuneWheelTable, s.FortuneWheel.Table)

	_, err = SettingsFromConfig(config.RewardConfig{
		FortuneWheel: config.FortuneWheelConfig{MinApprovedForms: -1},
	})
	require.Error(t, err)
}

func TestSettingsFromConfigRequiresFallbackPoints(t *testing.T) {
	_, err := SettingsFromConfig(config.RewardConfig{
		MysteryBoxTiers: []config.MysteryBoxTierConfig{
			{Threshold: 5, Prizes: []config.PrizeConfig{{ProductID: 1, Weight: 1}}},
		},
	})
	require.Error(t, err)

	_, err = SettingsFromConfig(config.RewardConfig{
		FortuneWheel: config.FortuneWheelConfig{
			Prizes: []config.PrizeConfig{{Name: "100 积分", Points: 100, Weight: 1}},
		},
	})
	require.Error(t, err)

	s, err := SettingsFromConfig(config.RewardConfig{
		FortuneWheel: config.FortuneWheelConfig{
			FallbackPoints: 50,
			Prizes:         []config.PrizeConfig{{Name: "100 积分", Points: 100, Weight: 1}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, int64(50), s.FortuneWheel.Table.FallbackPoints)
}
