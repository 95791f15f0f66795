package service

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"incentive/internal/model"
	"incentive/internal/repository"
	"incentive/internal/reward"
	"incentive/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestSubmitFormRequiredFields(t *testing.T) {
	f := newFixture(t, nil, nil)
	user := testutil.CreateUser(t, f.db, "alice", nil)
	project := testutil.CreateProject(t, f.db)
	testutil.CreateFormType(t, f.db, 1, 100, `["customer_name","invoice_no"]`)
	svc := NewFormService(f.deps)

	_, err := svc.SubmitForm(testCtx, &SubmitFormRequest{
		UserID:     user.ID,
		ProjectID:  project.ID,
		FormTypeID: 1,
		FormData:   map[string]interface{}{"customer_name": "ACME", "invoice_no": "  "},
	})
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "invoice_no")
	require.Equal(t, int64(0), countRows(t, f.db, &model.Form{}, "user_id = ?", user.ID))

	res, err := svc.SubmitForm(testCtx, &SubmitFormRequest{
		UserID:     user.ID,
		ProjectID:  project.ID,
		FormTypeID: 1,
		FormData:   map[string]interface{}{"customer_name": "ACME", "invoice_no": "INV-1"},
	})
	require.NoError(t, err)
	require.True(t, res.FormCompleted)
	require.Empty(t, res.ReferralGrants)

	form, err := svc.GetForm(testCtx, res.FormID)
	require.NoError(t, err)
	require.Equal(t, model.FormStatusSubmitted, form.Status)
	require.Equal(t, "ACME", form.FormData["customer_name"])
	require.Equal(t, int64(1), actionCount(t, f.db, user.ID, model.ActionFormSubmitted))
}

func TestSubmitFormUnknownReferences(t *testing.T) {
	f := newFixture(t, nil, nil)
	user := testutil.CreateUser(t, f.db, "bob", nil)
	project := testutil.CreateProject(t, f.db)
	testutil.CreateFormType(t, f.db, 1, 100, "")
	svc := NewFormService(f.deps)

	_, err := svc.SubmitForm(testCtx, &SubmitFormRequest{UserID: user.ID, ProjectID: project.ID, FormTypeID: 7})
	require.ErrorIs(t, err, repository.ErrFormTypeNotFound)

	_, err = svc.SubmitForm(testCtx, &SubmitFormRequest{UserID: user.ID, ProjectID: 999, FormTypeID: 1})
	require.ErrorIs(t, err, repository.ErrProjectNotFound)

	_, err = svc.SubmitForm(testCtx, &SubmitFormRequest{UserID: 999, ProjectID: project.ID, FormTypeID: 1})
	require.ErrorIs(t, err, repository.ErrUserNotFound)

	_, err = svc.SubmitForm(testCtx, &SubmitFormRequest{ProjectID: project.ID, FormTypeID: 1})
	require.ErrorIs(t, err, ErrValidation)
}

func TestApproveFormAwardsPoints(t *testing.T) {
	f := newFixture(t, nil, nil)
	user := testutil.CreateUser(t, f.db, "carol", nil)
	project := testutil.CreateProject(t, f.db)
	testutil.CreateFormType(t, f.db, 1, 100, "")
	svc := NewFormService(f.deps)

	plain := testutil.CreateSubmittedForm(t, f.db, user.ID, project.ID, 1, false)
	res, err := svc.ApproveForm(testCtx, plain.ID, 25)
	require.NoError(t, err)
	require.Equal(t, int64(10), res.BonusPoints)
	require.Equal(t, int64(110), res.PointsAwarded)

	special := testutil.CreateSubmittedForm(t, f.db, user.ID, project.ID, 1, true)
	res, err = svc.ApproveForm(testCtx, special.ID, 25)
	require.NoError(t, err)
	require.Equal(t, int64(50), res.BonusPoints)
	require.Equal(t, int64(150), res.PointsAwarded)

	u := testutil.Points(t, f.db, user.ID)
	require.Equal(t, int64(260), u.TotalPoints)
	require.Equal(t, int64(260), u.AccomplishmentTotalPoints)
	require.Equal(t, int64(260), u.LifetimeTotalPoints)

	form, err := svc.GetForm(testCtx, special.ID)
	require.NoError(t, err)
	require.Equal(t, model.FormStatusApproved, form.Status)
	require.Equal(t, 25, form.ProductQuantity)
	require.NotNil(t, form.ApprovedAt)

	requireBalanced(t, f, user.ID)
}

func TestApproveFormTwice(t *testing.T) {
	f := newFixture(t, nil, nil)
	user := testutil.CreateUser(t, f.db, "dave", nil)
	project := testutil.CreateProject(t, f.db)
	testutil.CreateFormType(t, f.db, 2, 40, "")
	svc := NewFormService(f.deps)

	form := testutil.CreateSubmittedForm(t, f.db, user.ID, project.ID, 2, false)
	_, err := svc.ApproveForm(testCtx, form.ID, 60)
	require.NoError(t, err)
	require.Equal(t, int64(90), testutil.Points(t, f.db, user.ID).TotalPoints)

	_, err = svc.ApproveForm(testCtx, form.ID, 60)
	require.ErrorIs(t, err, ErrInvalidState)
	require.Equal(t, int64(90), testutil.Points(t, f.db, user.ID).TotalPoints)

	err = svc.RejectForm(testCtx, form.ID, "duplicate")
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.ApproveForm(testCtx, form.ID, -1)
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.ApproveForm(testCtx, 9999, 1)
	require.ErrorIs(t, err, repository.ErrFormNotFound)
}

func TestRejectForm(t *testing.T) {
	f := newFixture(t, nil, nil)
	user := testutil.CreateUser(t, f.db, "erin", nil)
	project := testutil.CreateProject(t, f.db)
	testutil.CreateFormType(t, f.db, 1, 100, "")
	svc := NewFormService(f.deps)

	form := testutil.CreateSubmittedForm(t, f.db, user.ID, project.ID, 1, false)
	require.NoError(t, svc.RejectForm(testCtx, form.ID, "blurry invoice"))

	got, err := svc.GetForm(testCtx, form.ID)
	require.NoError(t, err)
	require.Equal(t, model.FormStatusRejected, got.Status)
	require.Equal(t, "blurry invoice", got.RejectReason)

	_, err = svc.ApproveForm(testCtx, form.ID, 10)
	require.ErrorIs(t, err, ErrInvalidState)
	require.Equal(t, int64(0), testutil.Points(t, f.db, user.ID).TotalPoints)
}

func boxSettings(tiers ...reward.MysteryBoxTier) *reward.Settings {
	s := reward.DefaultSettings()
	s.MysteryBoxTiers = tiers
	return s
}

func approveN(t *testing.T, svc *FormService, forms []*model.Form) []*ApproveFormResult {
	t.Helper()

	results := make([]*ApproveFormResult, 0, len(forms))
	for _, form := range forms {
		res, err := svc.ApproveForm(testCtx, form.ID, 0)
		require.NoError(t, err)
		results = append(results, res)
	}
	return results
}

func TestSubmissionMilestoneGrantsMysteryBox(t *testing.T) {
	f := newFixture(t, nil, nil)
	user := testutil.CreateUser(t, f.db, "frank", nil)
	project := testutil.CreateProject(t, f.db)
	testutil.CreateFormType(t, f.db, 1, 10, "")
	prize := testutil.CreateProduct(t, f.db, "Speaker", 0, 3)

	f.deps.Settings = boxSettings(reward.MysteryBoxTier{
		Threshold: 3,
		Table:     reward.Table{Prizes: []reward.Prize{{ProductID: prize.ID, Weight: 1}}, FallbackPoints: 500},
	})
	svc := NewFormService(f.deps)

	forms := make([]*model.Form, 0, 4)
	for i := 0; i < 4; i++ {
		forms = append(forms, testutil.CreateSubmittedForm(t, f.db, user.ID, project.ID, 1, false))
	}
	results := approveN(t, svc, forms)

	require.Empty(t, results[1].MilestonesGranted)
	require.Len(t, results[2].MilestonesGranted, 1)
	grant := results[2].MilestonesGranted[0]
	require.Equal(t, GrantKindMysteryBox, grant.Kind)
	require.Equal(t, int64(3), grant.Threshold)
	require.NotNil(t, grant.ProductID)
	require.Equal(t, prize.ID, *grant.ProductID)
	require.Equal(t, "Speaker", grant.PrizeName)
	require.Empty(t, results[3].MilestonesGranted, "crossing the same threshold again grants nothing")

	require.Equal(t, int64(2), testutil.Stock(t, f.db, prize.ID))
	require.Equal(t, int64(1), countRows(t, f.db, &model.UserMysteryBox{},
		"user_id = ? AND milestone_reached = ? AND status = ?", user.ID, 3, model.MysteryBoxStatusAvailable))
	require.Equal(t, int64(40), testutil.Points(t, f.db, user.ID).TotalPoints)
}

func TestMysteryBoxFallsBackToPoints(t *testing.T) {
	f := newFixture(t, nil, nil)
	user := testutil.CreateUser(t, f.db, "grace", nil)
	project := testutil.CreateProject(t, f.db)
	testutil.CreateFormType(t, f.db, 1, 10, "")
	prize := testutil.CreateProduct(t, f.db, "Drone", 0, 0)

	f.deps.Settings = boxSettings(reward.MysteryBoxTier{
		Threshold: 1,
		Table:     reward.Table{Prizes: []reward.Prize{{ProductID: prize.ID, Weight: 1}}, FallbackPoints: 500},
	})
	svc := NewFormService(f.deps)

	res := approveN(t, svc, []*model.Form{testutil.CreateSubmittedForm(t, f.db, user.ID, project.ID, 1, false)})[0]
	require.Len(t, res.MilestonesGranted, 1)
	require.Nil(t, res.MilestonesGranted[0].ProductID)
	require.Equal(t, int64(500), res.MilestonesGranted[0].Points)

	u := testutil.Points(t, f.db, user.ID)
	require.Equal(t, int64(510), u.TotalPoints)
	require.Equal(t, int64(0), testutil.Stock(t, f.db, prize.ID))
	require.Equal(t, int64(1), countRows(t, f.db, &model.UserMysteryBox{},
		"user_id = ? AND status = ? AND fallback_points = ?", user.ID, model.MysteryBoxStatusClaimed, 500))
	requireBalanced(t, f, user.ID)
}

func TestConcurrentApprovalsGrantOneBoxPerThreshold(t *testing.T) {
	f := newFixture(t, nil, nil)
	user := testutil.CreateUser(t, f.db, "heidi", nil)
	project := testutil.CreateProject(t, f.db)
	testutil.CreateFormType(t, f.db, 1, 10, "")
	prize := testutil.CreateProduct(t, f.db, "Lamp", 0, 10)

	f.deps.Settings = boxSettings(reward.MysteryBoxTier{
		Threshold: 5,
		Table:     reward.Table{Prizes: []reward.Prize{{ProductID: prize.ID, Weight: 1}}, FallbackPoints: 500},
	})
	svc := NewFormService(f.deps)

	forms := make([]*model.Form, 0, 8)
	for i := 0; i < 8; i++ {
		forms = append(forms, testutil.CreateSubmittedForm(t, f.db, user.ID, project.ID, 1, false))
	}

	var wg sync.WaitGroup
	for _, form := range forms {
		wg.Add(1)
		go func(formID int64) {
			defer wg.Done()
			_, err := svc.ApproveForm(testCtx, formID, 0)
			assert.NoError(t, err)
		}(form.ID)
	}
	wg.Wait()

	require.Equal(t, int64(1), countRows(t, f.db, &model.UserMysteryBox{}, "user_id = ? AND milestone_reached = ?", user.ID, 5))
	require.Equal(t, int64(9), testutil.Stock(t, f.db, prize.ID))
	require.Equal(t, int64(80), testutil.Points(t, f.db, user.ID).TotalPoints)
	requireBalanced(t, f, user.ID)
}

func TestCampaignCheckpointBonus(t *testing.T) {
	f := newFixture(t, nil, nil)
	user := testutil.CreateUser(t, f.db, "ivan", nil)
	project := testutil.CreateProject(t, f.db)
	testutil.CreateFormType(t, f.db, 1, 10, "")
	testutil.CreateFormType(t, f.db, 3, 10, "")

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	settings := boxSettings()
	settings.Rules = reward.NewRuleEngine(nil, reward.Campaign{
		Start:       start,
		End:         end,
		FormTypeIDs: []int64{1},
		Checkpoints: []reward.Checkpoint{{Ordinal: 2, Points: 6000}, {Ordinal: 3, Points: 8000}},
	})
	f.deps.Settings = settings

	now := start.Add(24 * time.Hour)
	f.deps.Now = func() time.Time { return now }
	svc := NewFormService(f.deps)

	// 不参与活动的表单类型不计入序号
	approveN(t, svc, []*model.Form{testutil.CreateSubmittedForm(t, f.db, user.ID, project.ID, 3, false)})

	first := approveN(t, svc, []*model.Form{testutil.CreateSubmittedForm(t, f.db, user.ID, project.ID, 1, false)})[0]
	require.Empty(t, first.MilestonesGranted)

	second := approveN(t, svc, []*model.Form{testutil.CreateSubmittedForm(t, f.db, user.ID, project.ID, 1, false)})[0]
	require.Len(t, second.MilestonesGranted, 1)
	require.Equal(t, GrantKindCampaignBonus, second.MilestonesGranted[0].Kind)
	require.Equal(t, int64(2), second.MilestonesGranted[0].Threshold)
	require.Equal(t, int64(6000), second.MilestonesGranted[0].Points)

	// 窗口结束后不再发放
	now = end
	late := approveN(t, svc, []*model.Form{testutil.CreateSubmittedForm(t, f.db, user.ID, project.ID, 1, false)})[0]
	require.Empty(t, late.MilestonesGranted)

	require.Equal(t, int64(6040), testutil.Points(t, f.db, user.ID).TotalPoints)
	requireBalanced(t, f, user.ID)
}

// seedReferrals 创建 n 个已提交过表单的被推荐用户
func seedReferrals(t *testing.T, f *fixture, referrerID, projectID int64, n int) {
	t.Helper()

	for i := 0; i < n; i++ {
		u := testutil.CreateUser(t, f.db, fmt.Sprintf("%s-ref-%d", t.Name(), i), &referrerID)
		testutil.CreateSubmittedForm(t, f.db, u.ID, projectID, 1, false)
	}
}

func submit(t *testing.T, svc *FormService, userID, projectID int64) *SubmitFormResult {
	t.Helper()

	res, err := svc.SubmitForm(testCtx, &SubmitFormRequest{UserID: userID, ProjectID: projectID, FormTypeID: 1})
	require.NoError(t, err)
	return res
}

func TestReferralMilestoneExactMatch(t *testing.T) {
	f := newFixture(t, nil, nil)
	referrer := testutil.CreateUser(t, f.db, "judy", nil)
	project := testutil.CreateProject(t, f.db)
	testutil.CreateFormType(t, f.db, 1, 10, "")
	seedReferrals(t, f, referrer.ID, project.ID, 7)
	svc := NewFormService(f.deps)

	eighth := testutil.CreateUser(t, f.db, "eighth", &referrer.ID)
	res := submit(t, svc, eighth.ID, project.ID)
	require.Len(t, res.ReferralGrants, 1)
	require.Equal(t, referrer.ID, res.ReferralGrants[0].UserID)
	require.Equal(t, int64(1500), res.ReferralGrants[0].Points)

	// 同一被推荐用户再次提交不会重复触发
	res = submit(t, svc, eighth.ID, project.ID)
	require.Empty(t, res.ReferralGrants)

	// 第 9 位不命中任何阈值
	ninth := testutil.CreateUser(t, f.db, "ninth", &referrer.ID)
	res = submit(t, svc, ninth.ID, project.ID)
	require.Empty(t, res.ReferralGrants)

	require.Equal(t, int64(1500), testutil.Points(t, f.db, referrer.ID).TotalPoints)
	require.Equal(t, int64(1), actionCount(t, f.db, referrer.ID, model.ActionReferralBonus))
	requireBalanced(t, f, referrer.ID)
}

func TestReferralMilestoneCrossing(t *testing.T) {
	f := newFixture(t, nil, nil)
	referrer := testutil.CreateUser(t, f.db, "ken", nil)
	project := testutil.CreateProject(t, f.db)
	testutil.CreateFormType(t, f.db, 1, 10, "")
	seedReferrals(t, f, referrer.ID, project.ID, 16)

	settings := reward.DefaultSettings()
	settings.ReferralPolicy = reward.CrossingPolicy{}
	f.deps.Settings = settings
	svc := NewFormService(f.deps)

	// 8 和 16 都被跨过，一次补发
	late := testutil.CreateUser(t, f.db, "late", &referrer.ID)
	res := submit(t, svc, late.ID, project.ID)
	require.Len(t, res.ReferralGrants, 2)
	require.Equal(t, int64(4500), testutil.Points(t, f.db, referrer.ID).TotalPoints)

	next := testutil.CreateUser(t, f.db, "next", &referrer.ID)
	res = submit(t, svc, next.ID, project.ID)
	require.Empty(t, res.ReferralGrants)

	require.Equal(t, int64(2), countRows(t, f.db, &model.ReferralMilestone{}, "referrer_id = ?", referrer.ID))
	requireBalanced(t, f, referrer.ID)
}

func TestConcurrentFirstSubmissionsGrantReferralOnce(t *testing.T) {
	f := newFixture(t, nil, nil)
	referrer := testutil.CreateUser(t, f.db, "leo", nil)
	project := testutil.CreateProject(t, f.db)
	testutil.CreateFormType(t, f.db, 1, 10, "")
	seedReferrals(t, f, referrer.ID, project.ID, 6)
	svc := NewFormService(f.deps)

	users := make([]*model.User, 0, 4)
	for i := 0; i < 4; i++ {
		users = append(users, testutil.CreateUser(t, f.db, fmt.Sprintf("racer%d", i), &referrer.ID))
	}

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := svc.SubmitForm(testCtx, &SubmitFormRequest{UserID: userID, ProjectID: project.ID, FormTypeID: 1})
			assert.NoError(t, err)
		}(u.ID)
	}
	wg.Wait()

	// 计数从 6 走到 10，只有恰好第 8 位触发
	require.Equal(t, int64(1500), testutil.Points(t, f.db, referrer.ID).TotalPoints)
	require.Equal(t, int64(1), actionCount(t, f.db, referrer.ID, model.ActionReferralBonus))
}

// 推荐人行锁必须早于提交事务里的第一次普通读，否则 MySQL 的推荐计数读到的是旧快照
func TestSubmitFormLocksReferrerBeforeFirstRead(t *testing.T) {
	f := newFixture(t, nil, nil)
	referrer := testutil.CreateUser(t, f.db, "quinn", nil)
	project := testutil.CreateProject(t, f.db)
	testutil.CreateFormType(t, f.db, 1, 10, "")
	seedReferrals(t, f, referrer.ID, project.ID, 7)
	referred := testutil.CreateUser(t, f.db, "rory", &referrer.ID)
	svc := NewFormService(f.deps)

	type query struct {
		table    string
		locked   bool
		firstVar interface{}
	}
	var (
		mu      sync.Mutex
		queries []query
	)
	require.NoError(t, f.db.Callback().Query().After("gorm:query").Register("test:trace_queries", func(d *gorm.DB) {
		_, locked := d.Statement.Clauses["FOR"]
		q := query{table: d.Statement.Table, locked: locked}
		if len(d.Statement.Vars) > 0 {
			q.firstVar = d.Statement.Vars[0]
		}
		mu.Lock()
		queries = append(queries, q)
		mu.Unlock()
	}))

	res := submit(t, svc, referred.ID, project.ID)
	require.Len(t, res.ReferralGrants, 1)

	mu.Lock()
	defer mu.Unlock()
	referrerLock, projectRead := -1, -1
	for i, q := range queries {
		if referrerLock < 0 && q.table == "users" && q.locked && q.firstVar == referrer.ID {
			referrerLock = i
		}
		if projectRead < 0 && q.table == "projects" {
			projectRead = i
		}
	}
	require.GreaterOrEqual(t, referrerLock, 0)
	require.Greater(t, projectRead, referrerLock)
}
