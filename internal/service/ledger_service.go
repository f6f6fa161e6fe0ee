package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"loyaltysystem/internal/config"
	"loyaltysystem/internal/model"
	"loyaltysystem/internal/repository"
	"loyaltysystem/pkg/idgen"

	"gorm.io/gorm"
)

// LedgerService 积分台账
//
// 【重要】余额和流水的一致性铁律：
// 任何余额变动必须伴随恰好一条流水，且两者在同一事务内落库。
// 没有流水的余额变动和没有余额变动的流水都是对账事故
type LedgerService struct {
	db         *gorm.DB
	cfg        *config.Config
	userRepo   *repository.UserRepository
	pointsRepo *repository.PointsRepository
}

func NewLedgerService(db *gorm.DB, cfg *config.Config) *LedgerService {
	return &LedgerService{
		db:         db,
		cfg:        cfg,
		userRepo:   repository.NewUserRepository(db),
		pointsRepo: repository.NewPointsRepository(db),
	}
}

// AppendRequest 一笔积分变动
type AppendRequest struct {
	UserID  int64
	Delta   int64 // 正数入账，负数出账
	Reason  string
	Kind    string
	SaleNo  string
	AdminID *int64
}

// GetBalance 查询当前积分余额，账户不存在按 0 处理
func (s *LedgerService) GetBalance(ctx context.Context, userID int64) (int64, error) {
	user, err := s.userRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return user.PointsBalance, nil
}

// GetHistory 查询积分流水（新到旧）
func (s *LedgerService) GetHistory(ctx context.Context, userID int64, limit int) ([]*model.PointsHistory, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.pointsRepo.ListByUserID(ctx, userID, limit)
}

// Append 追加一笔积分变动（独立事务）
func (s *LedgerService) Append(ctx context.Context, req *AppendRequest) error {
	if _, err := s.userRepo.GetOrCreate(ctx, req.UserID); err != nil {
		return fmt.Errorf("获取账户失败: %w", err)
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		return s.AppendInTx(ctx, tx, req)
	})
}

// AppendInTx 在调用方事务内追加一笔积分变动
//
// 条件更新扣减余额（出账时余额不足直接失败），
// 然后写入流水行；两步任一失败整个事务回滚。
// 调用方负责保证账户已存在（GetOrCreate 在事务外完成）
func (s *LedgerService) AppendInTx(ctx context.Context, tx *gorm.DB, req *AppendRequest) error {
	if req.Delta == 0 {
		return nil
	}

	if err := s.userRepo.ChangeBalance(ctx, tx, req.UserID, req.Delta); err != nil {
		return err
	}

	entry := &model.PointsHistory{
		TransactionNo: idgen.GeneratePointsNo(),
		UserID:        req.UserID,
		ChangeAmount:  req.Delta,
		Reason:        req.Reason,
		Kind:          req.Kind,
		SaleNo:        req.SaleNo,
		AdminID:       req.AdminID,
	}
	if err := s.pointsRepo.Create(ctx, tx, entry); err != nil {
		return fmt.Errorf("记录积分流水失败: %w", err)
	}

	return nil
}

// GrantWelcomeBonus 发放一次性欢迎积分
// welcome_stage 的条件更新保证并发领取只成功一次
func (s *LedgerService) GrantWelcomeBonus(ctx context.Context, userID int64) (int64, error) {
	bonus := s.cfg.Loyalty.WelcomeBonusPoints
	if bonus <= 0 {
		return 0, nil
	}

	if _, err := s.userRepo.GetOrCreate(ctx, userID); err != nil {
		return 0, fmt.Errorf("获取账户失败: %w", err)
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.userRepo.AdvanceWelcomeStage(ctx, tx, userID, model.WelcomeStageNone, model.WelcomeStageGranted); err != nil {
			return err
		}
		return s.AppendInTx(ctx, tx, &AppendRequest{
			UserID: userID,
			Delta:  bonus,
			Reason: "注册欢迎积分",
			Kind:   model.PointsKindWelcomeBonus,
		})
	})
	if err != nil {
		return 0, err
	}

	log.Printf("[Ledger] 欢迎积分发放成功: userID=%d, bonus=%d", userID, bonus)
	return bonus, nil
}

// ManualAdjust 管理员手工调整积分
func (s *LedgerService) ManualAdjust(ctx context.Context, userID, delta int64, reason string, adminID int64) error {
	if delta == 0 {
		return fmt.Errorf("调整数量不能为0")
	}
	if reason == "" {
		return fmt.Errorf("调整原因不能为空")
	}

	if _, err := s.userRepo.GetOrCreate(ctx, userID); err != nil {
		return fmt.Errorf("获取账户失败: %w", err)
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		return s.AppendInTx(ctx, tx, &AppendRequest{
			UserID:  userID,
			Delta:   delta,
			Reason:  reason,
			Kind:    model.PointsKindManualAdjust,
			AdminID: &adminID,
		})
	})
	if err != nil {
		return err
	}

	log.Printf("[Ledger] 手工调整成功: userID=%d, delta=%d, adminID=%d", userID, delta, adminID)
	return nil
}
