package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeServerError   = 500
	CodeBusinessError = 1000
)

// 业务错误码
const (
	CodeInsufficientPoints = 2001 // 积分不足
	CodeVoucherNotFound    = 2002 // 优惠券不存在
	CodeVoucherRedeemed    = 2003 // 优惠券已被使用
	CodeVoucherExpired     = 2004 // 优惠券已过期
	CodeQuotaExceeded      = 2005 // 本月交易配额已用完
	CodePlaceNotFound      = 2006 // 门店不存在
	CodeTariffNotFound     = 2007 // 套餐不存在
	CodeDuplicateRequest   = 2008 // 重复请求
	CodeUserNotFound       = 2009 // 用户不存在
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}
