package handler

import (
	"errors"
	"log"

	"incentive/internal/service"
	"incentive/pkg/response"

	"github.com/gin-gonic/gin"
)

// writeError 按错误类型映射业务码
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		response.ParamError(c, err.Error())
	case service.IsNotFound(err):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrInsufficientBalance):
		response.BusinessError(c, response.CodeInsufficientBalance, err.Error())
	case errors.Is(err, service.ErrOutOfStock):
		response.BusinessError(c, response.CodeOutOfStock, err.Error())
	case errors.Is(err, service.ErrSpinLimitReached):
		response.BusinessError(c, response.CodeSpinLimitReached, err.Error())
	case errors.Is(err, service.ErrInvalidState):
		response.BusinessError(c, response.CodeInvalidState, err.Error())
	case errors.Is(err, service.ErrConcurrencyConflict):
		response.BusinessError(c, response.CodeConcurrencyConflict, err.Error())
	default:
		log.Printf("[HTTP] 内部错误: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		response.ServerError(c, "服务器内部错误")
	}
}
