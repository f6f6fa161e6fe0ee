package repository

import (
	"context"
	"errors"
	"time"

	"loyaltysystem/internal/model"

	"gorm.io/gorm"
)

var (
	ErrVoucherNotFound = errors.New("优惠券不存在")
	ErrVoucherRedeemed = errors.New("优惠券已被使用")
	ErrVoucherExpired  = errors.New("优惠券已过期")
	ErrTokenTaken      = errors.New("token 已存在")
)

type VoucherRepository struct {
	db *gorm.DB
}

func NewVoucherRepository(db *gorm.DB) *VoucherRepository {
	return &VoucherRepository{db: db}
}

// Create 创建优惠券，token 唯一性由唯一索引保证
func (r *VoucherRepository) Create(ctx context.Context, voucher *model.Voucher) error {
	err := r.db.WithContext(ctx).Create(voucher).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrTokenTaken
	}
	return err
}

func (r *VoucherRepository) GetByToken(ctx context.Context, token string) (*model.Voucher, error) {
	var voucher model.Voucher
	err := r.db.WithContext(ctx).Where("token = ?", token).First(&voucher).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVoucherNotFound
		}
		return nil, err
	}
	return &voucher, nil
}

// Redeem 核销优惠券
//
// 【关键点】核销的唯一正确性机制是这一条条件更新：
//
//	UPDATE voucher SET is_redeemed = true, ...
//	WHERE token = ? AND is_redeemed = false
//	  AND (expires_at IS NULL OR expires_at > now)
//
// 并发核销同一 token 时，数据库保证只有一个更新命中
// （RowsAffected == 1），其余请求命中 0 行。
// 命中 0 行后再查询一次，区分不存在 / 已过期 / 已被使用
func (r *VoucherRepository) Redeem(ctx context.Context, tx *gorm.DB, token string, redeemedBy int64) error {
	if tx == nil {
		tx = r.db
	}

	now := time.Now()
	result := tx.WithContext(ctx).
		Model(&model.Voucher{}).
		Where("token = ? AND is_redeemed = ? AND (expires_at IS NULL OR expires_at > ?)", token, false, now).
		Updates(map[string]interface{}{
			"is_redeemed": true,
			"redeemed_at": &now,
			"redeemed_by": redeemedBy,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		// 在同一事务句柄上再查询一次，区分失败原因
		var voucher model.Voucher
		err := tx.WithContext(ctx).Where("token = ?", token).First(&voucher).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrVoucherNotFound
			}
			return err
		}
		if voucher.IsRedeemed {
			return ErrVoucherRedeemed
		}
		if voucher.ExpiresAt != nil && !voucher.ExpiresAt.After(now) {
			return ErrVoucherExpired
		}
		// 条件更新没命中但再查询又看似可用，说明竞争窗口内
		// 状态刚被别人改过，按已使用处理
		return ErrVoucherRedeemed
	}

	return nil
}

func (r *VoucherRepository) ListByCard(ctx context.Context, cardID int64, limit int) ([]*model.Voucher, error) {
	var vouchers []*model.Voucher
	err := r.db.WithContext(ctx).
		Where("card_id = ?", cardID).
		Order("id DESC").
		Limit(limit).
		Find(&vouchers).Error
	return vouchers, err
}
