package database

import (
	"errors"
	"fmt"
	"log"
	"time"

	"loyaltysystem/internal/config"
	"loyaltysystem/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitMySQL 初始化 MySQL 连接
func InitMySQL(cfg *config.MySQLConfig) *gorm.DB {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
		// 把驱动的唯一索引冲突翻译成 gorm.ErrDuplicatedKey，
		// 仓库层靠它识别 token 重复
		TranslateError: true,
	})
	if err != nil {
		log.Fatalf("连接 MySQL 失败: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("获取底层 DB 失败: %v", err)
	}

	// 连接池配置
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		log.Fatalf("自动迁移表结构失败: %v", err)
	}

	if err := Seed(db); err != nil {
		log.Fatalf("初始化基础数据失败: %v", err)
	}

	log.Println("MySQL 连接成功")
	return db
}

// Migrate 自动迁移表结构
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.PointsHistory{},
		&model.Place{},
		&model.Sale{},
		&model.Voucher{},
		&model.PlatformLoyaltyConfig{},
		&model.Tariff{},
		&model.TariffSubscription{},
		&model.OutboxMessage{},
	)
}

// Seed 初始化套餐目录和平台配置单例，已存在时不覆盖
func Seed(db *gorm.DB) error {
	tariffs := []model.Tariff{
		{
			Type:                    model.TariffTypeFree,
			Name:                    "免费档",
			MonthlyPrice:            0,
			MaxTransactionsPerMonth: 15,
			CommissionRate:          0.10,
		},
		{
			Type:                    model.TariffTypeStandard,
			Name:                    "标准档",
			MonthlyPrice:            990000,
			MaxTransactionsPerMonth: 100,
			CommissionRate:          0.07,
			AllowVouchers:           true,
		},
		{
			Type:                    model.TariffTypePremium,
			Name:                    "高级档",
			MonthlyPrice:            2990000,
			MaxTransactionsPerMonth: model.UnlimitedTransactions,
			CommissionRate:          0.05,
			AllowVouchers:           true,
			AllowAnalytics:          true,
		},
	}

	for _, t := range tariffs {
		var existing model.Tariff
		err := db.Where("type = ?", t.Type).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		tariff := t
		if err := db.Create(&tariff).Error; err != nil {
			return err
		}
	}

	var cfg model.PlatformLoyaltyConfig
	err := db.Where("id = ?", model.PlatformConfigID).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cfg = model.PlatformLoyaltyConfig{
			ID:                model.PlatformConfigID,
			RedeemRate:        model.DefaultRedeemRate,
			MaxAccrualPercent: model.DefaultMaxAccrualPercent,
		}
		return db.Create(&cfg).Error
	}
	return err
}
