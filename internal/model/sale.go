package model

import (
	"time"
)

// Sale 销售记录表
//
// 【重要】销售记录一经提交不可修改、不可删除（审计要求）。
// 事后更正通过补偿性积分流水完成，不在本引擎范围内。
//
// RedeemRateSnapshot 冻结交易时刻的积分兑换率，
// 之后平台配置变更不会影响历史销售的金额口径
type Sale struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SaleNo             string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"sale_no"`    // 销售单号（全局唯一）
	RequestID          string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_id"` // 幂等ID，客户端生成
	PartnerID          int64     `gorm:"index;not null" json:"partner_id"`                        // 合作商户ID
	PlaceID            int64     `gorm:"index;not null" json:"place_id"`                          // 门店ID
	OperatorID         int64     `gorm:"not null" json:"operator_id"`                             // 收银操作员ID
	UserID             int64     `gorm:"index;not null" json:"user_id"`                           // 用户ID
	AmountGross        int64     `gorm:"not null" json:"amount_gross"`                            // 账单原始金额
	BaseDiscountPct    int       `gorm:"not null" json:"base_discount_pct"`                       // 基础折扣百分比（快照）
	ExtraDiscountPct   int       `gorm:"not null" json:"extra_discount_pct"`                      // 积分折扣占账单百分比
	ExtraValue         int64     `gorm:"not null" json:"extra_value"`                             // 积分抵扣金额（平台承担）
	AmountPartnerDue   int64     `gorm:"not null" json:"amount_partner_due"`                      // 商户应收金额
	AmountUserSubsidy  int64     `gorm:"not null" json:"amount_user_subsidy"`                     // 平台补贴金额
	PointsSpent        int64     `gorm:"not null" json:"points_spent"`                            // 本单抵扣积分
	PointsEarned       int64     `gorm:"not null" json:"points_earned"`                           // 本单返还积分
	RedeemRateSnapshot int64     `gorm:"not null" json:"redeem_rate_snapshot"`                    // 交易时刻积分兑换率快照
	VoucherToken       string    `gorm:"type:varchar(64)" json:"voucher_token,omitempty"`         // 本单核销的优惠券token
	CreatedAt          time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Sale) TableName() string {
	return "sale"
}
