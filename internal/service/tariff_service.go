package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"loyaltysystem/internal/config"
	"loyaltysystem/internal/model"
	"loyaltysystem/internal/repository"

	"gorm.io/gorm"
)

var ErrQuotaExceeded = errors.New("本月交易次数已达套餐上限")

// TariffService 套餐引擎
// 解析商户当前套餐、检查月度交易配额、处理换套餐
type TariffService struct {
	db         *gorm.DB
	cfg        *config.Config
	tariffRepo *repository.TariffRepository
	saleRepo   *repository.SaleRepository
}

func NewTariffService(db *gorm.DB, cfg *config.Config) *TariffService {
	return &TariffService{
		db:         db,
		cfg:        cfg,
		tariffRepo: repository.NewTariffRepository(db),
		saleRepo:   repository.NewSaleRepository(db),
	}
}

// QuotaStatus 配额检查结果
type QuotaStatus struct {
	Allowed   bool  `json:"allowed"`
	Used      int64 `json:"used"`
	Remaining int64 `json:"remaining"` // 不限额时为 -1
	Limit     int   `json:"limit"`     // -1 表示不限
}

// CurrentTariff 商户当前套餐
//
// 没有生效订阅（从未订阅、或订阅已过期被置为失效）时
// 回落到免费档，调用方永远能拿到一个套餐
func (s *TariffService) CurrentTariff(ctx context.Context, partnerID int64) (*model.Tariff, error) {
	sub, err := s.tariffRepo.GetActiveSubscription(ctx, partnerID)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return s.tariffRepo.GetByType(ctx, model.TariffTypeFree)
		}
		return nil, err
	}

	// 订阅已过期但后台任务还没来得及置为失效，按免费档处理
	if sub.ExpiresAt.Before(time.Now()) {
		return s.tariffRepo.GetByType(ctx, model.TariffTypeFree)
	}

	return s.tariffRepo.GetByID(ctx, sub.TariffID)
}

// CheckQuota 检查商户本自然月的交易配额
func (s *TariffService) CheckQuota(ctx context.Context, partnerID int64) (*QuotaStatus, error) {
	tariff, err := s.CurrentTariff(ctx, partnerID)
	if err != nil {
		return nil, fmt.Errorf("解析套餐失败: %w", err)
	}

	if tariff.MaxTransactionsPerMonth == model.UnlimitedTransactions {
		return &QuotaStatus{
			Allowed:   true,
			Remaining: -1,
			Limit:     model.UnlimitedTransactions,
		}, nil
	}

	used, err := s.saleRepo.CountByPartnerSince(ctx, partnerID, monthStart(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("统计本月销售失败: %w", err)
	}

	limit := int64(tariff.MaxTransactionsPerMonth)
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}

	return &QuotaStatus{
		Allowed:   used < limit,
		Used:      used,
		Remaining: remaining,
		Limit:     tariff.MaxTransactionsPerMonth,
	}, nil
}

// Subscribe 商户换套餐
//
// 【关键点】旧订阅置失效和新订阅插入必须在同一事务内完成，
// 否则崩溃窗口会留下"零条生效订阅"或"两条生效订阅"的脏状态，
// 违反"任一时刻至多一条生效订阅"的不变式
func (s *TariffService) Subscribe(ctx context.Context, partnerID int64, tariffType string, days int) (*model.TariffSubscription, error) {
	tariff, err := s.tariffRepo.GetByType(ctx, tariffType)
	if err != nil {
		return nil, err
	}

	if days <= 0 {
		days = s.cfg.Loyalty.SubscriptionDefaultDays
		if days <= 0 {
			days = 30
		}
	}

	now := time.Now()
	sub := &model.TariffSubscription{
		PartnerID: partnerID,
		TariffID:  tariff.ID,
		StartedAt: now,
		ExpiresAt: now.AddDate(0, 0, days),
		IsActive:  true,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.tariffRepo.DeactivateActive(ctx, tx, partnerID); err != nil {
			return fmt.Errorf("停用旧订阅失败: %w", err)
		}
		if err := s.tariffRepo.CreateSubscription(ctx, tx, sub); err != nil {
			return fmt.Errorf("创建订阅失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Tariff] 订阅成功: partnerID=%d, tariff=%s, expiresAt=%s",
		partnerID, tariff.Type, sub.ExpiresAt.Format(time.RFC3339))
	return sub, nil
}

// CommissionRate 商户当前佣金率
// 套餐解析失败时返回目录里的最高佣金率：宁可多算，不可按零算
func (s *TariffService) CommissionRate(ctx context.Context, partnerID int64) float64 {
	tariff, err := s.CurrentTariff(ctx, partnerID)
	if err == nil {
		return tariff.CommissionRate
	}

	log.Printf("[Tariff] 解析套餐失败，按最高佣金率兜底: partnerID=%d, err=%v", partnerID, err)
	rate, maxErr := s.tariffRepo.MaxCommissionRate(ctx)
	if maxErr != nil || rate <= 0 {
		// 目录也读不到时的硬兜底，取免费档的默认佣金率
		return 0.10
	}
	return rate
}

// monthStart 自然月起点
func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
