package handler

import (
	"loyaltysystem/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, rdb, cfg)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 积分相关
		points := api.Group("/points")
		{
			points.GET("/balance", h.GetBalance)
			points.GET("/history", h.GetHistory)
			points.POST("/welcome", h.GrantWelcomeBonus)
			points.POST("/adjust", h.ManualAdjust)
		}

		// 销售结算
		sale := api.Group("/sale")
		{
			sale.POST("/process", h.ProcessSale)
		}

		// 优惠券相关
		voucher := api.Group("/voucher")
		{
			voucher.POST("/create", h.CreateVoucher)
			voucher.POST("/redeem", h.RedeemVoucher)
		}

		// 套餐相关
		tariff := api.Group("/tariff")
		{
			tariff.GET("/current", h.GetCurrentTariff)
			tariff.GET("/quota", h.CheckQuota)
			tariff.POST("/subscribe", h.Subscribe)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
