package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"loyaltysystem/internal/config"
	"loyaltysystem/internal/infrastructure/lock"
	"loyaltysystem/internal/model"
	"loyaltysystem/internal/repository"
	"loyaltysystem/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

var (
	ErrInvalidAmount = errors.New("金额必须大于0")
	ErrPlaceMismatch = errors.New("门店不属于该商户")
)

// NotificationKindSale 销售回执通知
const NotificationKindSale = "SALE_RECEIPT"

// SaleService 销售结算协调器
//
// 一笔销售的完整编排：校验 -> 配额 -> 计算 -> 原子提交。
//
// 【关键点】提交阶段的四件事必须同生共死：
//  1. 销售记录落库（含兑换率快照）
//  2. 至多一条积分流水 + 缓存余额更新（抵扣/返还互斥）
//  3. 优惠券核销（如果带了 token）
//  4. 通知写入发件箱
//
// 任何一步失败整个事务回滚 —— 不允许存在
// 没有对应积分/优惠券状态的销售记录
type SaleService struct {
	db           *gorm.DB
	redisClient  *redis.Client
	cfg          *config.Config
	saleRepo     *repository.SaleRepository
	placeRepo    *repository.PlaceRepository
	userRepo     *repository.UserRepository
	voucherRepo  *repository.VoucherRepository
	outboxRepo   *repository.OutboxRepository
	platformRepo *repository.PlatformConfigRepository
	ledger       *LedgerService
	tariff       *TariffService
}

func NewSaleService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *SaleService {
	return &SaleService{
		db:           db,
		redisClient:  redisClient,
		cfg:          cfg,
		saleRepo:     repository.NewSaleRepository(db),
		placeRepo:    repository.NewPlaceRepository(db),
		userRepo:     repository.NewUserRepository(db),
		voucherRepo:  repository.NewVoucherRepository(db),
		outboxRepo:   repository.NewOutboxRepository(db),
		platformRepo: repository.NewPlatformConfigRepository(db, redisClient),
		ledger:       NewLedgerService(db, cfg),
		tariff:       NewTariffService(db, cfg),
	}
}

// ProcessSaleRequest 一笔销售请求
type ProcessSaleRequest struct {
	RequestID     string `json:"request_id" binding:"required"` // 幂等ID，收银端生成
	PartnerID     int64  `json:"partner_id" binding:"required"`
	PlaceID       int64  `json:"place_id" binding:"required"`
	OperatorID    int64  `json:"operator_id" binding:"required"`
	UserID        int64  `json:"user_id" binding:"required"`
	AmountGross   int64  `json:"amount_gross" binding:"required,gt=0"`
	PointsToSpend int64  `json:"points_to_spend"` // 0 表示自动最大化抵扣
	VoucherToken  string `json:"voucher_token"`   // 可选，随单核销的优惠券
}

// SaleResult 销售结算结果
type SaleResult struct {
	SaleNo           string      `json:"sale_no"`
	Calculation      Calculation `json:"calculation"`
	PointsChange     int64       `json:"points_change"`
	BalanceAfter     int64       `json:"balance_after"`
	NotificationText string      `json:"notification_text"`
	Duplicate        bool        `json:"duplicate,omitempty"` // 幂等命中已有销售
}

// ProcessSale 处理一笔销售
func (s *SaleService) ProcessSale(ctx context.Context, req *ProcessSaleRequest) (*SaleResult, error) {
	// 前置校验，全部在任何写操作之前完成
	if req.AmountGross <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.PointsToSpend < 0 {
		return nil, fmt.Errorf("points_to_spend 不能为负数")
	}

	// 幂等校验
	if existing, err := s.saleRepo.GetByRequestID(ctx, req.RequestID); err != nil {
		return nil, fmt.Errorf("查询销售记录失败: %w", err)
	} else if existing != nil {
		return s.resultFromExisting(ctx, existing), nil
	}

	place, err := s.placeRepo.GetByID(ctx, req.PlaceID)
	if err != nil {
		return nil, err
	}
	if place.PartnerID != req.PartnerID {
		return nil, ErrPlaceMismatch
	}

	// 配额检查：超额在任何变更之前拒绝
	quota, err := s.tariff.CheckQuota(ctx, req.PartnerID)
	if err != nil {
		return nil, err
	}
	if !quota.Allowed {
		return nil, ErrQuotaExceeded
	}

	// 按用户维度加锁：同一用户两笔并发销售串行化，
	// 后一笔基于前一笔之后的余额计算。
	// 未配置 Redis 时跳过，正确性仍由数据库条件更新兜底
	if s.redisClient != nil {
		saleLock := lock.NewSaleLock(s.redisClient, req.UserID, req.RequestID)
		if err := saleLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
			return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
		}
		defer saleLock.Unlock(ctx)

		// 获取锁后再次检查幂等
		if existing, err := s.saleRepo.GetByRequestID(ctx, req.RequestID); err != nil {
			return nil, fmt.Errorf("查询销售记录失败: %w", err)
		} else if existing != nil {
			return s.resultFromExisting(ctx, existing), nil
		}
	}

	user, err := s.userRepo.GetOrCreate(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("获取账户失败: %w", err)
	}

	// 指定抵扣数量超过余额：直接拒绝而不是悄悄截断，
	// 收银端拿着过期余额时应该得到明确报错
	if req.PointsToSpend > user.PointsBalance {
		return nil, repository.ErrPointsNotEnough
	}

	// 平台配置读取失败时按默认值计算，折扣功能不停摆
	platformCfg := s.platformRepo.GetOrDefault(ctx)

	calc := CalculateBenefit(BenefitInput{
		AmountGross:               req.AmountGross,
		Balance:                   user.PointsBalance,
		PointsToSpend:             req.PointsToSpend,
		BaseDiscountPct:           place.BaseDiscountPct,
		LoyaltyAccrualPct:         place.LoyaltyAccrualPct,
		MinPurchaseForAccrual:     place.MinPurchaseForAccrual,
		MaxPointDiscountPctOfBill: place.MaxPointDiscountPctOfBill,
		RedeemRate:                platformCfg.RedeemRate,
		MaxAccrualPercent:         platformCfg.MaxAccrualPercent,
	})

	saleNo := idgen.GenerateSaleNo()
	sale := &model.Sale{
		SaleNo:             saleNo,
		RequestID:          req.RequestID,
		PartnerID:          req.PartnerID,
		PlaceID:            req.PlaceID,
		OperatorID:         req.OperatorID,
		UserID:             req.UserID,
		AmountGross:        req.AmountGross,
		BaseDiscountPct:    place.BaseDiscountPct,
		ExtraDiscountPct:   calc.ExtraDiscountPct,
		ExtraValue:         calc.ExtraValue,
		AmountPartnerDue:   calc.AmountPartnerDue,
		AmountUserSubsidy:  calc.AmountUserSubsidy,
		PointsSpent:        calc.PointsSpent,
		PointsEarned:       calc.PointsEarned,
		RedeemRateSnapshot: calc.RedeemRate,
		VoucherToken:       req.VoucherToken,
	}

	notification := buildSaleNotification(req.AmountGross, calc, user.PointsBalance+calc.NetPointsChange)

	// 执行结算事务
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.saleRepo.Create(ctx, tx, sale); err != nil {
			return fmt.Errorf("创建销售记录失败: %w", err)
		}

		// 互斥规则保证至多写一条流水
		switch {
		case calc.PointsSpent > 0:
			if err := s.ledger.AppendInTx(ctx, tx, &AppendRequest{
				UserID: req.UserID,
				Delta:  -calc.PointsSpent,
				Reason: fmt.Sprintf("消费抵扣-%s", saleNo),
				Kind:   model.PointsKindSpent,
				SaleNo: saleNo,
			}); err != nil {
				return err
			}
		case calc.PointsEarned > 0:
			if err := s.ledger.AppendInTx(ctx, tx, &AppendRequest{
				UserID: req.UserID,
				Delta:  calc.PointsEarned,
				Reason: fmt.Sprintf("消费返积分-%s", saleNo),
				Kind:   model.PointsKindEarned,
				SaleNo: saleNo,
			}); err != nil {
				return err
			}
		}

		if req.VoucherToken != "" {
			if err := s.voucherRepo.Redeem(ctx, tx, req.VoucherToken, req.OperatorID); err != nil {
				return err
			}
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"user_id": req.UserID,
			"message": notification,
			"kind":    NotificationKindSale,
		})
		outboxMsg := &model.OutboxMessage{
			MessageKey: saleNo,
			Topic:      s.cfg.Kafka.Topic.Notification,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
			return fmt.Errorf("写入通知失败: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Sale] 结算成功: saleNo=%s, userID=%d, gross=%d, final=%d, spent=%d, earned=%d",
		saleNo, req.UserID, req.AmountGross, calc.FinalUserPrice, calc.PointsSpent, calc.PointsEarned)

	return &SaleResult{
		SaleNo:           saleNo,
		Calculation:      calc,
		PointsChange:     calc.NetPointsChange,
		BalanceAfter:     user.PointsBalance + calc.NetPointsChange,
		NotificationText: notification,
	}, nil
}

// resultFromExisting 用已提交的销售快照重放计算结果
//
// 计算器是纯函数，重放结果和首次提交完全一致；
// 余额和回执文案按当前余额补齐，重试的收银端
// 拿到和首次响应同样形状的完整结果
func (s *SaleService) resultFromExisting(ctx context.Context, sale *model.Sale) *SaleResult {
	calc := Calculation{
		BaseDiscountAmount: sale.AmountGross * int64(sale.BaseDiscountPct) / 100,
		ExtraValue:         sale.ExtraValue,
		ExtraDiscountPct:   sale.ExtraDiscountPct,
		PointsSpent:        sale.PointsSpent,
		PointsEarned:       sale.PointsEarned,
		AmountPartnerDue:   sale.AmountPartnerDue,
		AmountUserSubsidy:  sale.AmountUserSubsidy,
		NetPointsChange:    sale.PointsEarned - sale.PointsSpent,
		RedeemRate:         sale.RedeemRateSnapshot,
	}
	calc.FinalUserPrice = sale.AmountGross - calc.BaseDiscountAmount - sale.ExtraValue

	balance, err := s.ledger.GetBalance(ctx, sale.UserID)
	if err != nil {
		log.Printf("[Sale] 幂等重放查询余额失败: saleNo=%s, err=%v", sale.SaleNo, err)
	}

	return &SaleResult{
		SaleNo:           sale.SaleNo,
		Calculation:      calc,
		PointsChange:     calc.NetPointsChange,
		BalanceAfter:     balance,
		NotificationText: buildSaleNotification(sale.AmountGross, calc, balance),
		Duplicate:        true,
	}
}

// buildSaleNotification 生成面向用户的结算回执文案
func buildSaleNotification(amountGross int64, calc Calculation, balanceAfter int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "消费金额 %d，实付 %d。", amountGross, calc.FinalUserPrice)
	if calc.BaseDiscountAmount > 0 {
		fmt.Fprintf(&b, "门店折扣 %d。", calc.BaseDiscountAmount)
	}
	if calc.PointsSpent > 0 {
		fmt.Fprintf(&b, "积分抵扣 %d（消耗 %d 积分）。", calc.ExtraValue, calc.PointsSpent)
	}
	if calc.PointsEarned > 0 {
		fmt.Fprintf(&b, "本单返 %d 积分。", calc.PointsEarned)
	}
	fmt.Fprintf(&b, "当前积分余额 %d。", balanceAfter)
	return b.String()
}
