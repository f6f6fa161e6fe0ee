package repository

import (
	"context"
	"errors"
	"time"

	"loyaltysystem/internal/model"

	"gorm.io/gorm"
)

var (
	ErrTariffNotFound       = errors.New("套餐不存在")
	ErrSubscriptionNotFound = errors.New("商户没有生效中的订阅")
)

type TariffRepository struct {
	db *gorm.DB
}

func NewTariffRepository(db *gorm.DB) *TariffRepository {
	return &TariffRepository{db: db}
}

func (r *TariffRepository) GetByType(ctx context.Context, tariffType string) (*model.Tariff, error) {
	var tariff model.Tariff
	err := r.db.WithContext(ctx).Where("type = ?", tariffType).First(&tariff).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTariffNotFound
		}
		return nil, err
	}
	return &tariff, nil
}

func (r *TariffRepository) GetByID(ctx context.Context, tariffID int64) (*model.Tariff, error) {
	var tariff model.Tariff
	err := r.db.WithContext(ctx).Where("id = ?", tariffID).First(&tariff).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTariffNotFound
		}
		return nil, err
	}
	return &tariff, nil
}

// MaxCommissionRate 套餐目录里的最高佣金率
// 套餐解析失败时的保守兜底：宁可按最高档收，不可按零收
func (r *TariffRepository) MaxCommissionRate(ctx context.Context) (float64, error) {
	var rate float64
	err := r.db.WithContext(ctx).
		Model(&model.Tariff{}).
		Select("COALESCE(MAX(commission_rate), 0)").
		Scan(&rate).Error
	return rate, err
}

// GetActiveSubscription 查询商户当前生效的订阅
func (r *TariffRepository) GetActiveSubscription(ctx context.Context, partnerID int64) (*model.TariffSubscription, error) {
	var sub model.TariffSubscription
	err := r.db.WithContext(ctx).
		Where("partner_id = ? AND is_active = ?", partnerID, true).
		Order("id DESC").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// DeactivateActive 将商户当前生效的订阅全部置为失效
// 必须和 CreateSubscription 在同一事务内调用（见 TariffService.Subscribe）
func (r *TariffRepository) DeactivateActive(ctx context.Context, tx *gorm.DB, partnerID int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.TariffSubscription{}).
		Where("partner_id = ? AND is_active = ?", partnerID, true).
		Update("is_active", false).Error
}

func (r *TariffRepository) CreateSubscription(ctx context.Context, tx *gorm.DB, sub *model.TariffSubscription) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(sub).Error
}

// DeactivateExpired 将到期的订阅批量置为失效，后台任务定期调用
func (r *TariffRepository) DeactivateExpired(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.TariffSubscription{}).
		Where("is_active = ? AND expires_at < ?", true, before).
		Update("is_active", false)
	return result.RowsAffected, result.Error
}
