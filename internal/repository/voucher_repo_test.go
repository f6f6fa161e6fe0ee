package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"loyaltysystem/internal/infrastructure/database"
	"loyaltysystem/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var repoTestDBSeq int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:loyalty_repo_%d?mode=memory&cache=shared", atomic.AddInt64(&repoTestDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("打开测试库失败: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取底层 DB 失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("迁移表结构失败: %v", err)
	}

	return db
}

// 核销至多一次：N 个并发只有一个命中条件更新
func TestVoucherRedeemConcurrent(t *testing.T) {
	db := newTestDB(t)
	repo := NewVoucherRepository(db)
	ctx := context.Background()
	const token = "VCH-CONCURRENT"
	const n = 20

	if err := repo.Create(ctx, &model.Voucher{CardID: 1, Token: token}); err != nil {
		t.Fatalf("创建优惠券失败: %v", err)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(operatorID int64) {
			defer wg.Done()
			errCh <- repo.Redeem(ctx, nil, token, operatorID)
		}(int64(i + 1))
	}
	wg.Wait()
	close(errCh)

	var success, redeemed int
	for err := range errCh {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrVoucherRedeemed):
			redeemed++
		default:
			t.Fatalf("并发核销出现意外错误: %v", err)
		}
	}
	if success != 1 {
		t.Errorf("核销成功次数 = %d, want 1", success)
	}
	if redeemed != n-1 {
		t.Errorf("已使用报错次数 = %d, want %d", redeemed, n-1)
	}

	voucher, err := repo.GetByToken(ctx, token)
	if err != nil {
		t.Fatalf("查询优惠券失败: %v", err)
	}
	if !voucher.IsRedeemed || voucher.RedeemedAt == nil || voucher.RedeemedBy == nil {
		t.Errorf("核销后状态不完整: %+v", voucher)
	}
}

func TestVoucherCreateDuplicateToken(t *testing.T) {
	db := newTestDB(t)
	repo := NewVoucherRepository(db)
	ctx := context.Background()

	if err := repo.Create(ctx, &model.Voucher{CardID: 1, Token: "VCH-DUP"}); err != nil {
		t.Fatalf("创建优惠券失败: %v", err)
	}

	err := repo.Create(ctx, &model.Voucher{CardID: 2, Token: "VCH-DUP"})
	if !errors.Is(err, ErrTokenTaken) {
		t.Fatalf("重复 token err = %v, want ErrTokenTaken", err)
	}
}

func TestVoucherRedeemExpired(t *testing.T) {
	db := newTestDB(t)
	repo := NewVoucherRepository(db)
	ctx := context.Background()

	expired := time.Now().Add(-time.Hour)
	if err := repo.Create(ctx, &model.Voucher{CardID: 1, Token: "VCH-EXPIRED", ExpiresAt: &expired}); err != nil {
		t.Fatalf("创建优惠券失败: %v", err)
	}

	if err := repo.Redeem(ctx, nil, "VCH-EXPIRED", 1); !errors.Is(err, ErrVoucherExpired) {
		t.Fatalf("err = %v, want ErrVoucherExpired", err)
	}

	// 过期核销失败不改状态
	voucher, _ := repo.GetByToken(ctx, "VCH-EXPIRED")
	if voucher.IsRedeemed {
		t.Error("过期券不应被标记为已核销")
	}
}

func TestVoucherRedeemNotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewVoucherRepository(db)

	if err := repo.Redeem(context.Background(), nil, "VCH-MISSING", 1); !errors.Is(err, ErrVoucherNotFound) {
		t.Fatalf("err = %v, want ErrVoucherNotFound", err)
	}
}

func TestVoucherRedeemTwiceSequential(t *testing.T) {
	db := newTestDB(t)
	repo := NewVoucherRepository(db)
	ctx := context.Background()

	if err := repo.Create(ctx, &model.Voucher{CardID: 1, Token: "VCH-TWICE"}); err != nil {
		t.Fatalf("创建优惠券失败: %v", err)
	}
	if err := repo.Redeem(ctx, nil, "VCH-TWICE", 1); err != nil {
		t.Fatalf("首次核销失败: %v", err)
	}
	if err := repo.Redeem(ctx, nil, "VCH-TWICE", 2); !errors.Is(err, ErrVoucherRedeemed) {
		t.Fatalf("二次核销 err = %v, want ErrVoucherRedeemed", err)
	}
}
