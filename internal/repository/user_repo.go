package repository

import (
	"context"
	"errors"

	"loyaltysystem/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUserNotFound       = errors.New("用户不存在")
	ErrPointsNotEnough    = errors.New("积分不足")
	ErrWelcomeBonusIssued = errors.New("欢迎积分已发放，请勿重复领取")
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByUserID(ctx context.Context, userID int64) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetOrCreate 获取账户，不存在则创建零余额账户
// OnConflict DoNothing 保证并发首购时不会因唯一索引冲突报错
func (r *UserRepository) GetOrCreate(ctx context.Context, userID int64) (*model.User, error) {
	user, err := r.GetByUserID(ctx, userID)
	if err == nil {
		return user, nil
	}

	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	newUser := &model.User{
		UserID:        userID,
		PointsBalance: 0,
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(newUser).Error

	if err != nil {
		return nil, err
	}

	return r.GetByUserID(ctx, userID)
}

// ChangeBalance 按增量更新缓存余额
//
// 【关键点】出账（delta < 0）用条件更新：
//
//	UPDATE user_account SET points_balance = points_balance + delta
//	WHERE user_id = ? AND points_balance >= -delta
//
// 读改写两步在数据库内一次完成，同一用户两笔并发销售
// 也不会丢失更新或把余额扣成负数。RowsAffected == 0 时
// 再查询一次区分是余额不足还是账户不存在
func (r *UserRepository) ChangeBalance(ctx context.Context, tx *gorm.DB, userID int64, delta int64) error {
	if tx == nil {
		tx = r.db
	}

	query := tx.WithContext(ctx).Model(&model.User{})
	if delta < 0 {
		query = query.Where("user_id = ? AND points_balance >= ?", userID, -delta)
	} else {
		query = query.Where("user_id = ?", userID)
	}

	result := query.Updates(map[string]interface{}{
		"points_balance": gorm.Expr("points_balance + ?", delta),
		"version":        gorm.Expr("version + 1"),
	})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		// 在同一事务句柄上再查询一次，区分余额不足和账户不存在
		var user model.User
		err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if user.PointsBalance < -delta {
			return ErrPointsNotEnough
		}
		return ErrUserNotFound
	}

	return nil
}

// AdvanceWelcomeStage 推进欢迎礼阶段
// 条件更新保证同一用户并发领取时只有一次成功
func (r *UserRepository) AdvanceWelcomeStage(ctx context.Context, tx *gorm.DB, userID int64, fromStage, toStage int) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("user_id = ? AND welcome_stage = ?", userID, fromStage).
		Updates(map[string]interface{}{
			"welcome_stage": toStage,
			"version":       gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		var user model.User
		err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		return ErrWelcomeBonusIssued
	}

	return nil
}
