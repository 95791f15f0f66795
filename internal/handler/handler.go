package handler

import (
	"strconv"

	"incentive/internal/service"
	"incentive/pkg/response"

	"github.com/gin-gonic/gin"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	accountService      *service.AccountService
	formService         *service.FormService
	redemptionService   *service.RedemptionService
	fortuneWheelService *service.FortuneWheelService
	mysteryBoxService   *service.MysteryBoxService
}

// NewHandler 创建处理器实例
func NewHandler(deps service.Deps) *Handler {
	return &Handler{
		accountService:      service.NewAccountService(deps),
		formService:         service.NewFormService(deps),
		redemptionService:   service.NewRedemptionService(deps),
		fortuneWheelService: service.NewFortuneWheelService(deps),
		mysteryBoxService:   service.NewMysteryBoxService(deps),
	}
}

func queryID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Query(name), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, name+" 参数错误")
		return 0, false
	}
	return id, true
}

func queryPage(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, pageSize
}

// ============================================================
// 积分账户
// ============================================================

// GetBalance 查询积分
// GET /api/v1/account/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := queryID(c, "user_id")
	if !ok {
		return
	}

	balance, err := h.accountService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, balance)
}

// ListTransactions 积分流水
// GET /api/v1/account/transactions?user_id=xxx&page=1&page_size=20
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := queryID(c, "user_id")
	if !ok {
		return
	}
	page, pageSize := queryPage(c)

	list, total, err := h.accountService.ListTransactions(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      list,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ListActions 审计记录
// GET /api/v1/account/actions?user_id=xxx&limit=20
func (h *Handler) ListActions(c *gin.Context) {
	userID, ok := queryID(c, "user_id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	actions, err := h.accountService.ListActions(c.Request.Context(), userID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, actions)
}

// Adjust 人工调账
// POST /api/v1/account/adjust
func (h *Handler) Adjust(c *gin.Context) {
	var req service.AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	trans, err := h.accountService.Adjust(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, trans)
}

// Reconcile 单用户对账
// GET /api/v1/account/reconcile?user_id=xxx
func (h *Handler) Reconcile(c *gin.Context) {
	userID, ok := queryID(c, "user_id")
	if !ok {
		return
	}

	result, err := h.accountService.Reconcile(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"result":   result,
		"balanced": result.Balanced(),
	})
}

// ============================================================
// 表单
// ============================================================

// SubmitForm 提交表单
// POST /api/v1/form/submit
func (h *Handler) SubmitForm(c *gin.Context) {
	var req service.SubmitFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.formService.SubmitForm(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, result)
}

type ApproveFormRequest struct {
	FormID          int64 `json:"form_id" binding:"required"`
	ProductQuantity int   `json:"product_quantity" binding:"min=0"`
}

// ApproveForm 审核通过
// POST /api/v1/form/approve
//
// 【关键点】积分、活动奖励、盲盒在同一事务内发放，重复审核返回状态错误
func (h *Handler) ApproveForm(c *gin.Context) {
	var req ApproveFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.formService.ApproveForm(c.Request.Context(), req.FormID, req.ProductQuantity)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, result)
}

type RejectFormRequest struct {
	FormID int64  `json:"form_id" binding:"required"`
	Reason string `json:"reason" binding:"max=256"`
}

// RejectForm 驳回表单
// POST /api/v1/form/reject
func (h *Handler) RejectForm(c *gin.Context) {
	var req RejectFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.formService.RejectForm(c.Request.Context(), req.FormID, req.Reason); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"form_id": req.FormID})
}

// GetForm 表单详情
// GET /api/v1/form/detail?form_id=xxx
func (h *Handler) GetForm(c *gin.Context) {
	formID, ok := queryID(c, "form_id")
	if !ok {
		return
	}

	form, err := h.formService.GetForm(c.Request.Context(), formID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, form)
}

// ============================================================
// 兑换
// ============================================================

// Redeem 积分兑换商品
// POST /api/v1/redemption/redeem
//
// 【关键点】余额、库存在行锁内校验，扣积分和扣库存同时成功或同时失败
func (h *Handler) Redeem(c *gin.Context) {
	var req service.RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.redemptionService.Redeem(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, result)
}

type RedemptionIDRequest struct {
	RedemptionID int64 `json:"redemption_id" binding:"required"`
}

// ApproveRedemption 兑换审核通过
// POST /api/v1/redemption/approve
func (h *Handler) ApproveRedemption(c *gin.Context) {
	var req RedemptionIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	redemption, err := h.redemptionService.ApproveRedemption(c.Request.Context(), req.RedemptionID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, redemption)
}

// RejectRedemption 驳回兑换并返还积分
// POST /api/v1/redemption/reject
func (h *Handler) RejectRedemption(c *gin.Context) {
	var req RedemptionIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	redemption, err := h.redemptionService.RejectRedemption(c.Request.Context(), req.RedemptionID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, redemption)
}

// GetRedemption 兑换单详情
// GET /api/v1/redemption/detail?redemption_id=xxx
func (h *Handler) GetRedemption(c *gin.Context) {
	redemptionID, ok := queryID(c, "redemption_id")
	if !ok {
		return
	}

	redemption, err := h.redemptionService.GetRedemption(c.Request.Context(), redemptionID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, redemption)
}

// ListRedemptions 用户兑换列表
// GET /api/v1/redemption/list?user_id=xxx&page=1&page_size=20
func (h *Handler) ListRedemptions(c *gin.Context) {
	userID, ok := queryID(c, "user_id")
	if !ok {
		return
	}
	page, pageSize := queryPage(c)

	list, total, err := h.redemptionService.ListUserRedemptions(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      list,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 幸运转盘
// ============================================================

// CheckFortuneWheelEligibility 查询抽奖资格
// GET /api/v1/fortune-wheel/eligibility?user_id=xxx
func (h *Handler) CheckFortuneWheelEligibility(c *gin.Context) {
	userID, ok := queryID(c, "user_id")
	if !ok {
		return
	}

	e, err := h.fortuneWheelService.CheckEligibility(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, e)
}

// Spin 抽奖
// POST /api/v1/fortune-wheel/spin
func (h *Handler) Spin(c *gin.Context) {
	var req service.SpinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.fortuneWheelService.Spin(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, result)
}

// ListSpins 抽奖记录
// GET /api/v1/fortune-wheel/history?user_id=xxx
func (h *Handler) ListSpins(c *gin.Context) {
	userID, ok := queryID(c, "user_id")
	if !ok {
		return
	}

	spins, err := h.fortuneWheelService.ListSpins(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, spins)
}

// ============================================================
// 盲盒
// ============================================================

// CheckMysteryBoxEligibility 查询待领取盲盒
// GET /api/v1/mystery-box/eligibility?user_id=xxx
func (h *Handler) CheckMysteryBoxEligibility(c *gin.Context) {
	userID, ok := queryID(c, "user_id")
	if !ok {
		return
	}

	e, err := h.mysteryBoxService.CheckEligibility(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, e)
}

// ListMysteryBoxes 用户全部盲盒
// GET /api/v1/mystery-box/list?user_id=xxx
func (h *Handler) ListMysteryBoxes(c *gin.Context) {
	userID, ok := queryID(c, "user_id")
	if !ok {
		return
	}

	boxes, err := h.mysteryBoxService.ListBoxes(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, boxes)
}

type ClaimMysteryBoxRequest struct {
	UserID int64  `json:"user_id" binding:"required"`
	BoxID  int64  `json:"box_id" binding:"required"`
	Status string `json:"status" binding:"required"`
}

// ClaimMysteryBox 领取盲盒
// POST /api/v1/mystery-box/claim
func (h *Handler) ClaimMysteryBox(c *gin.Context) {
	var req ClaimMysteryBoxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	box, err := h.mysteryBoxService.Claim(c.Request.Context(), req.UserID, req.BoxID, req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, box)
}
