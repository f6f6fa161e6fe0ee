package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"loyaltysystem/internal/model"
	"loyaltysystem/internal/repository"

	"gorm.io/gorm"
)

func saleRequest(place *model.Place, userID int64, amountGross int64) *ProcessSaleRequest {
	return &ProcessSaleRequest{
		RequestID:   fmt.Sprintf("REQ-%d-%d", userID, time.Now().UnixNano()),
		PartnerID:   place.PartnerID,
		PlaceID:     place.ID,
		OperatorID:  1,
		UserID:      userID,
		AmountGross: amountGross,
	}
}

func countSales(t *testing.T, db *gorm.DB, userID int64) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&model.Sale{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		t.Fatalf("统计销售记录失败: %v", err)
	}
	return count
}

func TestProcessSaleAutoEarn(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	saleSvc := NewSaleService(db, nil, cfg)
	ledger := NewLedgerService(db, cfg)
	ctx := context.Background()
	const userID = int64(200)

	place := createTestPlace(t, db, 600)
	req := saleRequest(place, userID, 200000)

	result, err := saleSvc.ProcessSale(ctx, req)
	if err != nil {
		t.Fatalf("ProcessSale 失败: %v", err)
	}

	// 九折 + 返积分：实付 180000，返 2 分
	if result.Calculation.FinalUserPrice != 180000 {
		t.Errorf("final = %d, want 180000", result.Calculation.FinalUserPrice)
	}
	if result.PointsChange != 2 || result.BalanceAfter != 2 {
		t.Errorf("change=%d balance=%d, want 2/2", result.PointsChange, result.BalanceAfter)
	}

	balance, _ := ledger.GetBalance(ctx, userID)
	if balance != 2 {
		t.Errorf("落库余额 = %d, want 2", balance)
	}

	// 销售记录、返积分流水、发件箱通知三者齐备
	sale, err := repository.NewSaleRepository(db).GetBySaleNo(ctx, result.SaleNo)
	if err != nil {
		t.Fatalf("查询销售记录失败: %v", err)
	}
	if sale.RedeemRateSnapshot != 5000 || sale.PointsEarned != 2 {
		t.Errorf("销售快照 rate=%d earned=%d, want 5000/2", sale.RedeemRateSnapshot, sale.PointsEarned)
	}

	entries, _ := ledger.GetHistory(ctx, userID, 10)
	if len(entries) != 1 {
		t.Fatalf("流水条数 = %d, want 1", len(entries))
	}
	if entries[0].Kind != model.PointsKindEarned || entries[0].SaleNo != result.SaleNo {
		t.Errorf("流水 kind=%s saleNo=%s, want EARNED/%s", entries[0].Kind, entries[0].SaleNo, result.SaleNo)
	}

	var outboxCount int64
	db.Model(&model.OutboxMessage{}).Where("message_key = ?", result.SaleNo).Count(&outboxCount)
	if outboxCount != 1 {
		t.Errorf("发件箱消息数 = %d, want 1", outboxCount)
	}
	if !strings.Contains(result.NotificationText, "180000") {
		t.Errorf("回执文案缺少实付金额: %s", result.NotificationText)
	}
}

func TestProcessSaleAutoSpend(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	saleSvc := NewSaleService(db, nil, cfg)
	ledger := NewLedgerService(db, cfg)
	ctx := context.Background()
	const userID = int64(201)

	if err := ledger.ManualAdjust(ctx, userID, 10, "测试预存", 1); err != nil {
		t.Fatalf("预存积分失败: %v", err)
	}

	place := createTestPlace(t, db, 601)
	result, err := saleSvc.ProcessSale(ctx, saleRequest(place, userID, 200000))
	if err != nil {
		t.Fatalf("ProcessSale 失败: %v", err)
	}

	// 自动模式全额抵扣：10 分值 50000，实付 130000，不返积分
	if result.Calculation.FinalUserPrice != 130000 {
		t.Errorf("final = %d, want 130000", result.Calculation.FinalUserPrice)
	}
	if result.Calculation.PointsSpent != 10 || result.Calculation.PointsEarned != 0 {
		t.Errorf("spent=%d earned=%d, want 10/0", result.Calculation.PointsSpent, result.Calculation.PointsEarned)
	}
	if result.BalanceAfter != 0 {
		t.Errorf("BalanceAfter = %d, want 0", result.BalanceAfter)
	}

	balance, _ := ledger.GetBalance(ctx, userID)
	if balance != 0 {
		t.Errorf("落库余额 = %d, want 0", balance)
	}

	entries, _ := ledger.GetHistory(ctx, userID, 10)
	if len(entries) != 2 || entries[0].Kind != model.PointsKindSpent {
		t.Fatalf("最新流水应为 SPENT，得到 %d 条: %+v", len(entries), entries)
	}
	if entries[0].ChangeAmount != -10 {
		t.Errorf("抵扣流水金额 = %d, want -10", entries[0].ChangeAmount)
	}
}

func TestProcessSaleBelowAccrualMin(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	saleSvc := NewSaleService(db, nil, cfg)
	ledger := NewLedgerService(db, cfg)
	ctx := context.Background()
	const userID = int64(202)

	place := createTestPlace(t, db, 602)
	result, err := saleSvc.ProcessSale(ctx, saleRequest(place, userID, 5000))
	if err != nil {
		t.Fatalf("ProcessSale 失败: %v", err)
	}

	// 低于返积分门槛：有销售记录，无积分流水
	if result.PointsChange != 0 {
		t.Errorf("PointsChange = %d, want 0", result.PointsChange)
	}
	entries, _ := ledger.GetHistory(ctx, userID, 10)
	if len(entries) != 0 {
		t.Errorf("流水条数 = %d, want 0", len(entries))
	}
	if got := countSales(t, db, userID); got != 1 {
		t.Errorf("销售记录数 = %d, want 1", got)
	}
}

func TestProcessSaleQuotaExceeded(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	saleSvc := NewSaleService(db, nil, cfg)
	ctx := context.Background()
	const userID = int64(203)

	place := createTestPlace(t, db, 603)

	// 免费档 15 笔打满
	for i := 0; i < 15; i++ {
		req := saleRequest(place, userID, 20000)
		req.RequestID = fmt.Sprintf("REQ-QUOTA-%d", i)
		if _, err := saleSvc.ProcessSale(ctx, req); err != nil {
			t.Fatalf("第 %d 笔销售失败: %v", i+1, err)
		}
	}

	_, err := saleSvc.ProcessSale(ctx, saleRequest(place, userID, 20000))
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("第 16 笔 err = %v, want ErrQuotaExceeded", err)
	}
	if got := countSales(t, db, userID); got != 15 {
		t.Errorf("超额拒绝后销售记录数 = %d, want 15", got)
	}
}

func TestProcessSaleVoucherRollback(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	saleSvc := NewSaleService(db, nil, cfg)
	ledger := NewLedgerService(db, cfg)
	voucherSvc := NewVoucherService(db, cfg)
	ctx := context.Background()
	const userID = int64(204)

	voucher, err := voucherSvc.Create(ctx, 1, "", nil)
	if err != nil {
		t.Fatalf("创建优惠券失败: %v", err)
	}
	// 先独立核销掉
	if err := voucherSvc.Redeem(ctx, voucher.Token, 1); err != nil {
		t.Fatalf("预核销失败: %v", err)
	}

	place := createTestPlace(t, db, 604)
	req := saleRequest(place, userID, 200000)
	req.VoucherToken = voucher.Token

	_, err = saleSvc.ProcessSale(ctx, req)
	if !errors.Is(err, repository.ErrVoucherRedeemed) {
		t.Fatalf("err = %v, want ErrVoucherRedeemed", err)
	}

	// 整个事务回滚：没有销售记录、没有流水、余额不变
	if got := countSales(t, db, userID); got != 0 {
		t.Errorf("回滚后销售记录数 = %d, want 0", got)
	}
	entries, _ := ledger.GetHistory(ctx, userID, 10)
	if len(entries) != 0 {
		t.Errorf("回滚后流水条数 = %d, want 0", len(entries))
	}
	balance, _ := ledger.GetBalance(ctx, userID)
	if balance != 0 {
		t.Errorf("回滚后余额 = %d, want 0", balance)
	}
}

func TestProcessSaleIdempotent(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	saleSvc := NewSaleService(db, nil, cfg)
	ledger := NewLedgerService(db, cfg)
	ctx := context.Background()
	const userID = int64(205)

	place := createTestPlace(t, db, 605)
	req := saleRequest(place, userID, 200000)

	first, err := saleSvc.ProcessSale(ctx, req)
	if err != nil {
		t.Fatalf("首次 ProcessSale 失败: %v", err)
	}

	// 同一 request_id 重放：返回首次结果，不重复记账
	second, err := saleSvc.ProcessSale(ctx, req)
	if err != nil {
		t.Fatalf("重放 ProcessSale 失败: %v", err)
	}
	if !second.Duplicate {
		t.Error("重放结果 Duplicate = false, want true")
	}
	if second.SaleNo != first.SaleNo {
		t.Errorf("重放 saleNo = %s, want %s", second.SaleNo, first.SaleNo)
	}
	if second.Calculation != first.Calculation {
		t.Errorf("重放计算结果不一致: %+v != %+v", second.Calculation, first.Calculation)
	}
	// 重放响应的形状和首次一致：余额、回执文案都补齐
	if second.BalanceAfter != first.BalanceAfter {
		t.Errorf("重放余额 = %d, want %d", second.BalanceAfter, first.BalanceAfter)
	}
	if second.NotificationText != first.NotificationText {
		t.Errorf("重放回执 = %q, want %q", second.NotificationText, first.NotificationText)
	}

	if got := countSales(t, db, userID); got != 1 {
		t.Errorf("销售记录数 = %d, want 1", got)
	}
	balance, _ := ledger.GetBalance(ctx, userID)
	if balance != 2 {
		t.Errorf("重放后余额 = %d, want 2", balance)
	}
}

func TestProcessSaleSpendOverBalance(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	saleSvc := NewSaleService(db, nil, cfg)
	ctx := context.Background()
	const userID = int64(206)

	place := createTestPlace(t, db, 606)
	req := saleRequest(place, userID, 200000)
	req.PointsToSpend = 5 // 余额为 0

	_, err := saleSvc.ProcessSale(ctx, req)
	if !errors.Is(err, repository.ErrPointsNotEnough) {
		t.Fatalf("err = %v, want ErrPointsNotEnough", err)
	}
	if got := countSales(t, db, userID); got != 0 {
		t.Errorf("拒绝后销售记录数 = %d, want 0", got)
	}
}

func TestProcessSaleValidation(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	saleSvc := NewSaleService(db, nil, cfg)
	ctx := context.Background()

	place := createTestPlace(t, db, 607)

	req := saleRequest(place, 207, 0)
	if _, err := saleSvc.ProcessSale(ctx, req); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("零金额 err = %v, want ErrInvalidAmount", err)
	}

	req = saleRequest(place, 207, 10000)
	req.PartnerID = place.PartnerID + 1
	if _, err := saleSvc.ProcessSale(ctx, req); !errors.Is(err, ErrPlaceMismatch) {
		t.Errorf("商户不匹配 err = %v, want ErrPlaceMismatch", err)
	}

	req = saleRequest(place, 207, 10000)
	req.PlaceID = 99999
	if _, err := saleSvc.ProcessSale(ctx, req); !errors.Is(err, repository.ErrPlaceNotFound) {
		t.Errorf("门店不存在 err = %v, want ErrPlaceNotFound", err)
	}
}
