package repository

import (
	"context"
	"errors"
	"time"

	"loyaltysystem/internal/model"

	"gorm.io/gorm"
)

var (
	ErrSaleNotFound  = errors.New("销售记录不存在")
	ErrPlaceNotFound = errors.New("门店不存在")
)

type SaleRepository struct {
	db *gorm.DB
}

func NewSaleRepository(db *gorm.DB) *SaleRepository {
	return &SaleRepository{db: db}
}

// Create 写入销售记录
// 销售记录不可修改，本仓库不提供更新方法
func (r *SaleRepository) Create(ctx context.Context, tx *gorm.DB, sale *model.Sale) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(sale).Error
}

func (r *SaleRepository) GetBySaleNo(ctx context.Context, saleNo string) (*model.Sale, error) {
	var sale model.Sale
	err := r.db.WithContext(ctx).Where("sale_no = ?", saleNo).First(&sale).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSaleNotFound
		}
		return nil, err
	}
	return &sale, nil
}

func (r *SaleRepository) GetByRequestID(ctx context.Context, requestID string) (*model.Sale, error) {
	var sale model.Sale
	err := r.db.WithContext(ctx).Where("request_id = ?", requestID).First(&sale).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sale, nil
}

// CountByPartnerSince 统计商户自 since 起的销售笔数，配额检查用
func (r *SaleRepository) CountByPartnerSince(ctx context.Context, partnerID int64, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Sale{}).
		Where("partner_id = ? AND created_at >= ?", partnerID, since).
		Count(&count).Error
	return count, err
}

func (r *SaleRepository) ListByPartner(ctx context.Context, partnerID int64, page, pageSize int) ([]*model.Sale, int64, error) {
	var sales []*model.Sale
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Sale{}).Where("partner_id = ?", partnerID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&sales).Error

	return sales, total, err
}

// PlaceRepository 门店配置只读访问
type PlaceRepository struct {
	db *gorm.DB
}

func NewPlaceRepository(db *gorm.DB) *PlaceRepository {
	return &PlaceRepository{db: db}
}

func (r *PlaceRepository) GetByID(ctx context.Context, placeID int64) (*model.Place, error) {
	var place model.Place
	err := r.db.WithContext(ctx).Where("id = ?", placeID).First(&place).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlaceNotFound
		}
		return nil, err
	}
	return &place, nil
}
