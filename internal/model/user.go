package model

import (
	"time"
)

// 欢迎礼流程阶段
const (
	WelcomeStageNone    = 0 // 尚未发放欢迎积分
	WelcomeStageGranted = 1 // 欢迎积分已发放
)

// User 用户积分账户表
// 记录用户的积分余额，是整个忠诚度系统的核心数据
//
// 【重要】PointsBalance 是缓存余额，必须时刻等于该用户
// points_history 表中 change_amount 的总和，任何余额变动
// 都必须和流水写入在同一事务内完成
type User struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        int64     `gorm:"uniqueIndex;not null" json:"user_id"`        // 用户ID，业务方（聊天层）传入
	PointsBalance int64     `gorm:"not null;default:0" json:"points_balance"`   // 当前积分余额（缓存值）
	WelcomeStage  int       `gorm:"not null;default:0" json:"welcome_stage"`    // 欢迎礼阶段
	Version       int       `gorm:"not null;default:0" json:"version"`          // 乐观锁版本号
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "user_account"
}
