package service

import (
	"fmt"
	"sync/atomic"
	"testing"

	"loyaltysystem/internal/config"
	"loyaltysystem/internal/infrastructure/database"
	"loyaltysystem/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBSeq int64

// newTestDB 每个测试一个独立的内存 SQLite 库，
// 建表和基础数据沿用生产迁移逻辑。
// 单连接池：既避免内存库的并发写锁，又让"事务外误用 db 句柄"
// 在测试里直接死锁暴露出来
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:loyalty_svc_%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("打开测试库失败: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取底层 DB 失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("迁移表结构失败: %v", err)
	}
	if err := database.Seed(db); err != nil {
		t.Fatalf("初始化基础数据失败: %v", err)
	}

	return db
}

func newTestConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{Notification: "loyalty-notification"},
		},
		Loyalty: config.LoyaltyConfig{
			WelcomeBonusPoints:      10,
			SubscriptionDefaultDays: 30,
			VoucherDefaultTTLHours:  0,
			MaxRetryCount:           5,
		},
	}
}

// createTestPlace 典型门店：九折，返5%，满10000返，积分最多抵一半账单
func createTestPlace(t *testing.T, db *gorm.DB, partnerID int64) *model.Place {
	t.Helper()

	place := &model.Place{
		PartnerID:                 partnerID,
		Name:                      "测试门店",
		BaseDiscountPct:           10,
		LoyaltyAccrualPct:         5,
		MinPurchaseForAccrual:     10000,
		MaxPointDiscountPctOfBill: 50,
	}
	if err := db.Create(place).Error; err != nil {
		t.Fatalf("创建门店失败: %v", err)
	}
	return place
}
