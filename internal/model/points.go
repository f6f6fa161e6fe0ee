package model

import (
	"time"
)

// ============================================================================
// 积分变动类型常量
// ============================================================================

const (
	PointsKindEarned       = "EARNED"            // 消费返积分
	PointsKindSpent        = "SPENT"             // 消费抵扣积分
	PointsKindWelcomeBonus = "WELCOME_BONUS"     // 欢迎积分
	PointsKindManualAdjust = "MANUAL_ADJUSTMENT" // 管理员手工调整
)

// ============================================================================
// 积分流水实体
// ============================================================================

// PointsHistory 积分流水表
// 记录账户的每一笔积分变动，是对账的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. 由销售产生的流水必须关联销售单号 —— 便于对账
// 3. 用户余额 == 该用户全部流水 change_amount 之和 —— 余额一致性校验依据
type PointsHistory struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"` // 流水号（全局唯一）
	UserID        int64     `gorm:"index;not null" json:"user_id"`                               // 用户ID
	ChangeAmount  int64     `gorm:"not null" json:"change_amount"`                               // 变动积分（正数入账，负数出账）
	Reason        string    `gorm:"type:varchar(256)" json:"reason"`                             // 变动原因
	Kind          string    `gorm:"type:varchar(32);not null" json:"kind"`                       // 变动类型
	SaleNo        string    `gorm:"type:varchar(64);index" json:"sale_no,omitempty"`             // 关联销售单号（销售产生的流水必填）
	AdminID       *int64    `json:"admin_id,omitempty"`                                         // 操作管理员ID（手工调整时必填）
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (PointsHistory) TableName() string {
	return "points_history"
}
