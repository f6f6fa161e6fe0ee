package model

import (
	"time"
)

// Place 商户门店表
// 门店级折扣配置由合作商户维护，本引擎只读取
type Place struct {
	ID                        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PartnerID                 int64     `gorm:"index;not null" json:"partner_id"`                          // 所属合作商户ID
	Name                      string    `gorm:"type:varchar(128);not null" json:"name"`                    // 门店名称
	BaseDiscountPct           int       `gorm:"not null;default:0" json:"base_discount_pct"`               // 基础折扣百分比（商户承担）
	LoyaltyAccrualPct         int       `gorm:"not null;default:0" json:"loyalty_accrual_pct"`             // 积分返还百分比
	MinPurchaseForAccrual     int64     `gorm:"not null;default:0" json:"min_purchase_for_accrual"`        // 返积分最低消费额
	MaxPointDiscountPctOfBill int       `gorm:"not null;default:0" json:"max_point_discount_pct_of_bill"` // 单笔账单积分抵扣上限百分比
	CreatedAt                 time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                 time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Place) TableName() string {
	return "place"
}
