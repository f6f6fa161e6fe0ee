package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"loyaltysystem/internal/model"
	"loyaltysystem/internal/repository"
)

func TestLedgerAppendAndBalance(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedgerService(db, newTestConfig())
	ctx := context.Background()
	const userID = int64(100)

	deltas := []int64{10, -3, 5}
	for _, delta := range deltas {
		kind := model.PointsKindEarned
		if delta < 0 {
			kind = model.PointsKindSpent
		}
		if err := ledger.Append(ctx, &AppendRequest{
			UserID: userID,
			Delta:  delta,
			Reason: "测试",
			Kind:   kind,
		}); err != nil {
			t.Fatalf("Append(%d) 失败: %v", delta, err)
		}
	}

	balance, err := ledger.GetBalance(ctx, userID)
	if err != nil {
		t.Fatalf("GetBalance 失败: %v", err)
	}
	if balance != 12 {
		t.Errorf("balance = %d, want 12", balance)
	}

	// 余额铁律：缓存余额等于全部流水之和
	sum, err := repository.NewPointsRepository(db).SumByUserID(ctx, userID)
	if err != nil {
		t.Fatalf("SumByUserID 失败: %v", err)
	}
	if sum != balance {
		t.Errorf("流水之和 %d != 缓存余额 %d", sum, balance)
	}

	entries, err := ledger.GetHistory(ctx, userID, 10)
	if err != nil {
		t.Fatalf("GetHistory 失败: %v", err)
	}
	if len(entries) != len(deltas) {
		t.Errorf("流水条数 = %d, want %d", len(entries), len(deltas))
	}
}

func TestLedgerAppendInsufficientBalance(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedgerService(db, newTestConfig())
	ctx := context.Background()
	const userID = int64(101)

	err := ledger.Append(ctx, &AppendRequest{
		UserID: userID,
		Delta:  -5,
		Reason: "超扣",
		Kind:   model.PointsKindSpent,
	})
	if !errors.Is(err, repository.ErrPointsNotEnough) {
		t.Fatalf("err = %v, want ErrPointsNotEnough", err)
	}

	// 失败的扣减不能留下任何流水
	sum, err := repository.NewPointsRepository(db).SumByUserID(ctx, userID)
	if err != nil {
		t.Fatalf("SumByUserID 失败: %v", err)
	}
	if sum != 0 {
		t.Errorf("失败扣减后流水之和 = %d, want 0", sum)
	}

	balance, _ := ledger.GetBalance(ctx, userID)
	if balance != 0 {
		t.Errorf("balance = %d, want 0", balance)
	}
}

// 同一用户并发入账不丢更新
func TestLedgerConcurrentAppend(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedgerService(db, newTestConfig())
	ctx := context.Background()
	const userID = int64(102)
	const n = 20

	var wg sync.WaitGroup
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- ledger.Append(ctx, &AppendRequest{
				UserID: userID,
				Delta:  1,
				Reason: "并发入账",
				Kind:   model.PointsKindEarned,
			})
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("并发 Append 失败: %v", err)
		}
	}

	balance, err := ledger.GetBalance(ctx, userID)
	if err != nil {
		t.Fatalf("GetBalance 失败: %v", err)
	}
	if balance != n {
		t.Errorf("并发入账后 balance = %d, want %d", balance, n)
	}
}

func TestLedgerWelcomeBonusOnce(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedgerService(db, newTestConfig())
	ctx := context.Background()
	const userID = int64(103)

	bonus, err := ledger.GrantWelcomeBonus(ctx, userID)
	if err != nil {
		t.Fatalf("首次发放失败: %v", err)
	}
	if bonus != 10 {
		t.Errorf("bonus = %d, want 10", bonus)
	}

	if _, err := ledger.GrantWelcomeBonus(ctx, userID); !errors.Is(err, repository.ErrWelcomeBonusIssued) {
		t.Fatalf("重复发放 err = %v, want ErrWelcomeBonusIssued", err)
	}

	balance, _ := ledger.GetBalance(ctx, userID)
	if balance != 10 {
		t.Errorf("balance = %d, want 10", balance)
	}
}

func TestLedgerManualAdjust(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedgerService(db, newTestConfig())
	ctx := context.Background()
	const userID = int64(104)
	const adminID = int64(9)

	if err := ledger.ManualAdjust(ctx, userID, 7, "活动补偿", adminID); err != nil {
		t.Fatalf("ManualAdjust 失败: %v", err)
	}

	entries, err := ledger.GetHistory(ctx, userID, 10)
	if err != nil {
		t.Fatalf("GetHistory 失败: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("流水条数 = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Kind != model.PointsKindManualAdjust {
		t.Errorf("kind = %s, want %s", entry.Kind, model.PointsKindManualAdjust)
	}
	if entry.AdminID == nil || *entry.AdminID != adminID {
		t.Errorf("admin_id = %v, want %d", entry.AdminID, adminID)
	}

	if err := ledger.ManualAdjust(ctx, userID, 0, "零调整", adminID); err == nil {
		t.Error("零调整应该报错")
	}
}
