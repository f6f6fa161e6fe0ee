package repository

import (
	"context"

	"loyaltysystem/internal/model"

	"gorm.io/gorm"
)

type PointsRepository struct {
	db *gorm.DB
}

func NewPointsRepository(db *gorm.DB) *PointsRepository {
	return &PointsRepository{db: db}
}

// Create 追加一条积分流水
// 流水只追加，本仓库不提供任何更新或删除方法
func (r *PointsRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.PointsHistory) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

func (r *PointsRepository) ListByUserID(ctx context.Context, userID int64, limit int) ([]*model.PointsHistory, error) {
	var entries []*model.PointsHistory
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// SumByUserID 全量流水求和，对账时和缓存余额比对
func (r *PointsRepository) SumByUserID(ctx context.Context, userID int64) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&model.PointsHistory{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(change_amount), 0)").
		Scan(&sum).Error
	return sum, err
}

func (r *PointsRepository) GetBySaleNo(ctx context.Context, saleNo string) (*model.PointsHistory, error) {
	var entry model.PointsHistory
	err := r.db.WithContext(ctx).Where("sale_no = ?", saleNo).First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}
