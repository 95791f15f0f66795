package service

import (
	"testing"
	"time"

	"incentive/internal/model"
	"incentive/internal/repository"
	"incentive/internal/testutil"

	"github.com/stretchr/testify/require"
)

func TestMysteryBoxClaim(t *testing.T) {
	f := newFixture(t, nil, nil)
	owner := testutil.CreateUser(t, f.db, "quinn", nil)
	other := testutil.CreateUser(t, f.db, "rupert", nil)
	product := testutil.CreateProduct(t, f.db, "Watch", 0, 1)
	svc := NewMysteryBoxService(f.deps)

	e, err := svc.CheckEligibility(testCtx, owner.ID)
	require.NoError(t, err)
	require.False(t, e.Eligible)

	box := &model.UserMysteryBox{UserID: owner.ID, MilestoneReached: 5, ProductID: &product.ID, Status: model.MysteryBoxStatusAvailable}
	require.NoError(t, f.db.Create(box).Error)

	e, err = svc.CheckEligibility(testCtx, owner.ID)
	require.NoError(t, err)
	require.True(t, e.Eligible)
	require.Equal(t, box.ID, e.Box.ID)

	_, err = svc.Claim(testCtx, owner.ID, box.ID, model.MysteryBoxStatusAvailable)
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Claim(testCtx, other.ID, box.ID, model.MysteryBoxStatusClaimed)
	require.ErrorIs(t, err, repository.ErrMysteryBoxNotFound)

	claimed, err := svc.Claim(testCtx, owner.ID, box.ID, model.MysteryBoxStatusClaimed)
	require.NoError(t, err)
	require.Equal(t, model.MysteryBoxStatusClaimed, claimed.Status)
	require.NotNil(t, claimed.ClaimedAt)

	_, err = svc.Claim(testCtx, owner.ID, box.ID, model.MysteryBoxStatusClaimed)
	require.ErrorIs(t, err, ErrInvalidState)

	e, err = svc.CheckEligibility(testCtx, owner.ID)
	require.NoError(t, err)
	require.False(t, e.Eligible)

	boxes, err := svc.ListBoxes(testCtx, owner.ID)
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	require.Equal(t, int64(1), actionCount(t, f.db, owner.ID, model.ActionMysteryBoxClaimed))
}

func TestMysteryBoxClaimTime(t *testing.T) {
	f := newFixture(t, nil, nil)
	at := time.Date(2024, 5, 20, 10, 30, 0, 0, time.UTC)
	f.deps.Now = func() time.Time { return at }
	owner := testutil.CreateUser(t, f.db, "sybil", nil)
	box := &model.UserMysteryBox{UserID: owner.ID, MilestoneReached: 10, Status: model.MysteryBoxStatusAvailable}
	require.NoError(t, f.db.Create(box).Error)

	claimed, err := NewMysteryBoxService(f.deps).Claim(testCtx, owner.ID, box.ID, model.MysteryBoxStatusClaimed)
	require.NoError(t, err)
	require.NotNil(t, claimed.ClaimedAt)
	require.True(t, claimed.ClaimedAt.Equal(at))

	var stored model.UserMysteryBox
	require.NoError(t, f.db.First(&stored, box.ID).Error)
	require.NotNil(t, stored.ClaimedAt)
	require.Equal(t, at.Unix(), stored.ClaimedAt.Unix())
}
