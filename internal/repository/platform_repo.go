package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"loyaltysystem/internal/model"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const (
	platformConfigCacheKey = "loyalty:config:platform"
	platformConfigCacheTTL = 10 * time.Minute
)

// PlatformConfigRepository 平台配置单例的读写入口
//
// 配置读多写少，读路径走 Redis 旁路缓存；
// 【重要】写入后同步删除缓存 —— 过期的资金配置不可接受，
// 绝不允许"等缓存自己过期"。cache 传 nil 时退化为直连数据库
type PlatformConfigRepository struct {
	db    *gorm.DB
	cache *redis.Client
}

func NewPlatformConfigRepository(db *gorm.DB, cache *redis.Client) *PlatformConfigRepository {
	return &PlatformConfigRepository{db: db, cache: cache}
}

// Get 读取平台配置
// 数据库里没有单例行时返回内置默认值（兑换率 5000、返积分上限 20%），
// 折扣计算不允许因为配置缺失而停摆
func (r *PlatformConfigRepository) Get(ctx context.Context) (*model.PlatformLoyaltyConfig, error) {
	if cfg := r.fromCache(ctx); cfg != nil {
		return cfg, nil
	}

	var cfg model.PlatformLoyaltyConfig
	err := r.db.WithContext(ctx).Where("id = ?", model.PlatformConfigID).First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return defaultPlatformConfig(), nil
		}
		return nil, err
	}

	r.toCache(ctx, &cfg)
	return &cfg, nil
}

// GetOrDefault 读取平台配置，任何失败都按默认值执行
func (r *PlatformConfigRepository) GetOrDefault(ctx context.Context) *model.PlatformLoyaltyConfig {
	cfg, err := r.Get(ctx)
	if err != nil {
		log.Printf("[PlatformConfig] 读取配置失败，使用默认值: %v", err)
		return defaultPlatformConfig()
	}
	return cfg
}

// Update 更新平台配置并同步失效缓存
func (r *PlatformConfigRepository) Update(ctx context.Context, redeemRate int64, maxAccrualPercent int, updatedBy int64) error {
	err := r.db.WithContext(ctx).
		Model(&model.PlatformLoyaltyConfig{}).
		Where("id = ?", model.PlatformConfigID).
		Updates(map[string]interface{}{
			"redeem_rate":         redeemRate,
			"max_accrual_percent": maxAccrualPercent,
			"updated_by":          updatedBy,
		}).Error
	if err != nil {
		return err
	}

	// 同步失效，失败则报错：带着旧配置继续算钱比一次更新失败更糟
	if r.cache != nil {
		if err := r.cache.Del(ctx, platformConfigCacheKey).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (r *PlatformConfigRepository) fromCache(ctx context.Context) *model.PlatformLoyaltyConfig {
	if r.cache == nil {
		return nil
	}
	data, err := r.cache.Get(ctx, platformConfigCacheKey).Bytes()
	if err != nil {
		return nil
	}
	var cfg model.PlatformLoyaltyConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil
	}
	return &cfg
}

func (r *PlatformConfigRepository) toCache(ctx context.Context, cfg *model.PlatformLoyaltyConfig) {
	if r.cache == nil {
		return
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, platformConfigCacheKey, data, platformConfigCacheTTL).Err(); err != nil {
		log.Printf("[PlatformConfig] 写缓存失败: %v", err)
	}
}

func defaultPlatformConfig() *model.PlatformLoyaltyConfig {
	return &model.PlatformLoyaltyConfig{
		ID:                model.PlatformConfigID,
		RedeemRate:        model.DefaultRedeemRate,
		MaxAccrualPercent: model.DefaultMaxAccrualPercent,
	}
}
