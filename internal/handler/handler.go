package handler

import (
	"errors"
	"strconv"
	"time"

	"loyaltysystem/internal/config"
	"loyaltysystem/internal/repository"
	"loyaltysystem/internal/service"
	"loyaltysystem/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	ledgerService  *service.LedgerService
	saleService    *service.SaleService
	voucherService *service.VoucherService
	tariffService  *service.TariffService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	return &Handler{
		ledgerService:  service.NewLedgerService(db, cfg),
		saleService:    service.NewSaleService(db, rdb, cfg),
		voucherService: service.NewVoucherService(db, cfg),
		tariffService:  service.NewTariffService(db, cfg),
	}
}

// businessError 把核心层的错误翻译为对外的业务码和简短文案。
// 没有命中的错误一律按基础设施故障处理，对外只说"请稍后重试"
func businessError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrPointsNotEnough):
		response.BusinessError(c, response.CodeInsufficientPoints, "积分不足")
	case errors.Is(err, repository.ErrVoucherNotFound):
		response.BusinessError(c, response.CodeVoucherNotFound, "优惠券不存在")
	case errors.Is(err, repository.ErrVoucherRedeemed):
		response.BusinessError(c, response.CodeVoucherRedeemed, "优惠券已被使用")
	case errors.Is(err, repository.ErrVoucherExpired):
		response.BusinessError(c, response.CodeVoucherExpired, "优惠券已过期")
	case errors.Is(err, repository.ErrTokenTaken):
		response.BusinessError(c, response.CodeDuplicateRequest, "token 已存在")
	case errors.Is(err, service.ErrQuotaExceeded):
		response.BusinessError(c, response.CodeQuotaExceeded, "本月交易次数已达套餐上限")
	case errors.Is(err, repository.ErrPlaceNotFound):
		response.BusinessError(c, response.CodePlaceNotFound, "门店不存在")
	case errors.Is(err, repository.ErrTariffNotFound):
		response.BusinessError(c, response.CodeTariffNotFound, "套餐不存在")
	case errors.Is(err, repository.ErrUserNotFound):
		response.BusinessError(c, response.CodeUserNotFound, "用户不存在")
	case errors.Is(err, repository.ErrWelcomeBonusIssued):
		response.BusinessError(c, response.CodeDuplicateRequest, "欢迎积分已发放")
	case errors.Is(err, service.ErrInvalidAmount), errors.Is(err, service.ErrPlaceMismatch):
		response.ParamError(c, err.Error())
	default:
		response.ServerError(c, "系统繁忙，请稍后重试")
	}
}

// ============================================================
// 积分相关接口
// ============================================================

// GetBalance 查询用户积分余额
// GET /api/v1/points/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return
	}

	balance, err := h.ledgerService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id": userID,
		"balance": balance,
	})
}

// GetHistory 查询积分流水
// GET /api/v1/points/history?user_id=xxx&limit=20
func (h *Handler) GetHistory(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	entries, err := h.ledgerService.GetHistory(c.Request.Context(), userID, limit)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id": userID,
		"list":    entries,
	})
}

// WelcomeBonusRequest 欢迎积分请求
type WelcomeBonusRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

// GrantWelcomeBonus 发放一次性欢迎积分
// POST /api/v1/points/welcome
func (h *Handler) GrantWelcomeBonus(c *gin.Context) {
	var req WelcomeBonusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	bonus, err := h.ledgerService.GrantWelcomeBonus(c.Request.Context(), req.UserID)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id": req.UserID,
		"bonus":   bonus,
	})
}

// AdjustRequest 手工调整请求
type AdjustRequest struct {
	UserID  int64  `json:"user_id" binding:"required"`
	Delta   int64  `json:"delta" binding:"required"`
	Reason  string `json:"reason" binding:"required"`
	AdminID int64  `json:"admin_id" binding:"required"`
}

// ManualAdjust 管理员手工调整积分
// POST /api/v1/points/adjust
func (h *Handler) ManualAdjust(c *gin.Context) {
	var req AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.ledgerService.ManualAdjust(c.Request.Context(), req.UserID, req.Delta, req.Reason, req.AdminID); err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"message": "调整成功",
	})
}

// ============================================================
// 销售结算接口
// ============================================================

// ProcessSale 结算一笔销售
// POST /api/v1/sale/process
//
// 【关键点】销售结算是整个系统最核心的操作，需要保证：
// 1. 幂等性：相同的 request_id 只会结算一次
// 2. 原子性：销售记录、积分流水、优惠券核销、通知同时成功或同时失败
// 3. 抵扣和返积分在一笔销售里互斥
func (h *Handler) ProcessSale(c *gin.Context) {
	var req service.ProcessSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.saleService.ProcessSale(c.Request.Context(), &req)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, result)
}

// ============================================================
// 优惠券接口
// ============================================================

// CreateVoucherRequest 发布优惠券请求
type CreateVoucherRequest struct {
	CardID    int64  `json:"card_id" binding:"required"`
	Token     string `json:"token"`      // 可选，缺省自动生成
	ExpiresAt string `json:"expires_at"` // 可选，RFC3339
}

// CreateVoucher 发布优惠券
// POST /api/v1/voucher/create
func (h *Handler) CreateVoucher(c *gin.Context) {
	var req CreateVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	var expiresAt *time.Time
	if req.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			response.ParamError(c, "expires_at 格式错误，应为 RFC3339")
			return
		}
		expiresAt = &t
	}

	voucher, err := h.voucherService.Create(c.Request.Context(), req.CardID, req.Token, expiresAt)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, voucher)
}

// RedeemVoucherRequest 核销请求
type RedeemVoucherRequest struct {
	Token      string `json:"token" binding:"required"`
	RedeemedBy int64  `json:"redeemed_by" binding:"required"`
}

// RedeemVoucher 核销优惠券
// POST /api/v1/voucher/redeem
//
// 并发核销同一 token 时只有一个请求成功，
// 其余拿到"优惠券已被使用"
func (h *Handler) RedeemVoucher(c *gin.Context) {
	var req RedeemVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.voucherService.Redeem(c.Request.Context(), req.Token, req.RedeemedBy); err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"token":    req.Token,
		"redeemed": true,
	})
}

// ============================================================
// 套餐接口
// ============================================================

// GetCurrentTariff 查询商户当前套餐
// GET /api/v1/tariff/current?partner_id=xxx
func (h *Handler) GetCurrentTariff(c *gin.Context) {
	partnerID, err := strconv.ParseInt(c.Query("partner_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "partner_id 参数错误")
		return
	}

	tariff, err := h.tariffService.CurrentTariff(c.Request.Context(), partnerID)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"tariff":          tariff,
		"commission_rate": h.tariffService.CommissionRate(c.Request.Context(), partnerID),
	})
}

// CheckQuota 查询商户本月配额
// GET /api/v1/tariff/quota?partner_id=xxx
func (h *Handler) CheckQuota(c *gin.Context) {
	partnerID, err := strconv.ParseInt(c.Query("partner_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "partner_id 参数错误")
		return
	}

	quota, err := h.tariffService.CheckQuota(c.Request.Context(), partnerID)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, quota)
}

// SubscribeRequest 换套餐请求
type SubscribeRequest struct {
	PartnerID  int64  `json:"partner_id" binding:"required"`
	TariffType string `json:"tariff_type" binding:"required"`
	Days       int    `json:"days"` // 可选，缺省按配置
}

// Subscribe 商户换套餐
// POST /api/v1/tariff/subscribe
func (h *Handler) Subscribe(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	sub, err := h.tariffService.Subscribe(c.Request.Context(), req.PartnerID, req.TariffType, req.Days)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, sub)
}
