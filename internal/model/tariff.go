package model

import (
	"time"
)

// ============================================================================
// 套餐类型常量
// ============================================================================

const (
	TariffTypeFree     = "FREE"     // 免费档，默认套餐
	TariffTypeStandard = "STANDARD" // 标准档
	TariffTypePremium  = "PREMIUM"  // 高级档，不限交易次数
)

// UnlimitedTransactions 月交易次数不限的哨兵值
const UnlimitedTransactions = -1

// Tariff 商户套餐表
// 套餐决定商户的佣金率、每月交易配额和功能开关
type Tariff struct {
	ID                      int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Type                    string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"type"`   // 套餐类型
	Name                    string    `gorm:"type:varchar(64);not null" json:"name"`               // 套餐名称
	MonthlyPrice            int64     `gorm:"not null;default:0" json:"monthly_price"`             // 月费
	MaxTransactionsPerMonth int       `gorm:"not null;default:0" json:"max_transactions_per_month"` // 每月最大交易数（-1 不限）
	CommissionRate          float64   `gorm:"not null;default:0" json:"commission_rate"`           // 平台佣金率
	AllowVouchers           bool      `gorm:"not null;default:false" json:"allow_vouchers"`        // 是否允许发布优惠券
	AllowAnalytics          bool      `gorm:"not null;default:false" json:"allow_analytics"`       // 是否开放数据报表
	CreatedAt               time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Tariff) TableName() string {
	return "tariff"
}

// TariffSubscription 商户订阅表
//
// 【重要】任一时刻每个商户至多一条生效订阅。
// 换套餐时旧订阅置为失效、新订阅插入，两步必须在同一事务内完成；
// 历史订阅保留不删，便于追溯
type TariffSubscription struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PartnerID int64     `gorm:"index;not null" json:"partner_id"` // 合作商户ID
	TariffID  int64     `gorm:"not null" json:"tariff_id"`        // 套餐ID
	StartedAt time.Time `gorm:"not null" json:"started_at"`       // 生效时间
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`       // 到期时间
	IsActive  bool      `gorm:"index;not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (TariffSubscription) TableName() string {
	return "tariff_subscription"
}
