package handler

import (
	"incentive/internal/service"

	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由
func SetupRouter(deps service.Deps) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(deps)

	api := r.Group("/api/v1")
	{
		account := api.Group("/account")
		{
			account.GET("/balance", h.GetBalance)
			account.GET("/transactions", h.ListTransactions)
			account.GET("/actions", h.ListActions)
			account.GET("/reconcile", h.Reconcile)
			account.POST("/adjust", h.Adjust)
		}

		form := api.Group("/form")
		{
			form.POST("/submit", h.SubmitForm)
			form.POST("/approve", h.ApproveForm)
			form.POST("/reject", h.RejectForm)
			form.GET("/detail", h.GetForm)
		}

		redemption := api.Group("/redemption")
		{
			redemption.POST("/redeem", h.Redeem)
			redemption.POST("/approve", h.ApproveRedemption)
			redemption.POST("/reject", h.RejectRedemption)
			redemption.GET("/detail", h.GetRedemption)
			redemption.GET("/list", h.ListRedemptions)
		}

		wheel := api.Group("/fortune-wheel")
		{
			wheel.GET("/eligibility", h.CheckFortuneWheelEligibility)
			wheel.POST("/spin", h.Spin)
			wheel.GET("/history", h.ListSpins)
		}

		box := api.Group("/mystery-box")
		{
			box.GET("/eligibility", h.CheckMysteryBoxEligibility)
			box.GET("/list", h.ListMysteryBoxes)
			box.POST("/claim", h.ClaimMysteryBox)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
