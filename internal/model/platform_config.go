package model

import (
	"time"
)

// 平台配置缺失时的兜底默认值
// 折扣计算必须持续可用，配置暂时不可达时按默认值执行
const (
	DefaultRedeemRate        = int64(5000) // 1积分的货币价值
	DefaultMaxAccrualPercent = 20          // 平台级返积分比例上限
)

// PlatformConfigID 平台配置单例行的固定主键
const PlatformConfigID = int64(1)

// PlatformLoyaltyConfig 平台忠诚度配置（单例行）
//
// 积分的取整规则不做配置：返积分一律向下取整（平台不多发），
// 抵扣积分成本一律向上取整（平台不少收），是固定的安全口径
type PlatformLoyaltyConfig struct {
	ID                int64     `gorm:"primaryKey" json:"id"`
	RedeemRate        int64     `gorm:"not null" json:"redeem_rate"`         // 1积分的货币价值
	MaxAccrualPercent int       `gorm:"not null" json:"max_accrual_percent"` // 返积分比例上限，门店配置超出时按此值截断
	UpdatedBy         int64     `gorm:"not null;default:0" json:"updated_by"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PlatformLoyaltyConfig) TableName() string {
	return "platform_loyalty_config"
}
