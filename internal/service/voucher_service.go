package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"loyaltysystem/internal/config"
	"loyaltysystem/internal/model"
	"loyaltysystem/internal/repository"
	"loyaltysystem/pkg/idgen"

	"gorm.io/gorm"
)

// VoucherService 优惠券核销闸口
//
// 核销的至多一次语义完全由 VoucherRepository.Redeem 的
// 条件更新保证，这里不加任何应用层锁
type VoucherService struct {
	db          *gorm.DB
	cfg         *config.Config
	voucherRepo *repository.VoucherRepository
}

func NewVoucherService(db *gorm.DB, cfg *config.Config) *VoucherService {
	return &VoucherService{
		db:          db,
		cfg:         cfg,
		voucherRepo: repository.NewVoucherRepository(db),
	}
}

// Create 为商户卡片发布一张优惠券
// token 为空时自动生成；expiresAt 为空时按配置的默认有效期
func (s *VoucherService) Create(ctx context.Context, cardID int64, token string, expiresAt *time.Time) (*model.Voucher, error) {
	if cardID <= 0 {
		return nil, fmt.Errorf("card_id 不合法")
	}

	if token == "" {
		token = idgen.GenerateVoucherToken()
	}

	if expiresAt == nil && s.cfg.Loyalty.VoucherDefaultTTLHours > 0 {
		t := time.Now().Add(time.Duration(s.cfg.Loyalty.VoucherDefaultTTLHours) * time.Hour)
		expiresAt = &t
	}

	voucher := &model.Voucher{
		CardID:    cardID,
		Token:     token,
		ExpiresAt: expiresAt,
	}
	if err := s.voucherRepo.Create(ctx, voucher); err != nil {
		return nil, err
	}

	log.Printf("[Voucher] 优惠券创建成功: id=%d, cardID=%d, token=%s", voucher.ID, cardID, token)
	return voucher, nil
}

// Redeem 核销优惠券（独立入口，销售流程内核销走销售事务）
func (s *VoucherService) Redeem(ctx context.Context, token string, redeemedBy int64) error {
	if token == "" {
		return fmt.Errorf("token 不能为空")
	}
	return s.voucherRepo.Redeem(ctx, nil, token, redeemedBy)
}

// Get 查询优惠券
func (s *VoucherService) Get(ctx context.Context, token string) (*model.Voucher, error) {
	return s.voucherRepo.GetByToken(ctx, token)
}
