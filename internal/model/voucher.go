package model

import (
	"time"
)

// Voucher 优惠券表
//
// 【重要】IsRedeemed 只允许 false -> true 发生一次。
// 并发核销的正确性完全由存储层的条件更新保证
// （WHERE is_redeemed = false ...，见 VoucherRepository.Redeem），
// 不依赖任何应用层锁
type Voucher struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	CardID     int64      `gorm:"index;not null" json:"card_id"`                        // 所属商户卡片ID
	Token      string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"token"`   // 核销token（全局唯一）
	IsRedeemed bool       `gorm:"not null;default:false" json:"is_redeemed"`            // 是否已核销
	RedeemedAt *time.Time `json:"redeemed_at,omitempty"`                                // 核销时间
	RedeemedBy *int64     `json:"redeemed_by,omitempty"`                                // 核销操作者ID
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`                                 // 过期时间（空表示永久有效）
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (Voucher) TableName() string {
	return "voucher"
}
