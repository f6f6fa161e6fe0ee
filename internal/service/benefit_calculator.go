package service

import (
	"loyaltysystem/internal/model"
)

// ============================================================================
// 购买优惠计算器
// ============================================================================
//
// 纯函数：同样的输入永远得到同样的输出，不读库、不写库。
// 销售记录里存了全部输入快照（含 redeem_rate_snapshot），
// 任何时候都可以用历史快照重放出完全一致的金额。
//
// 【核心规则】一笔销售里"返积分"和"抵扣积分"互斥：
//   - 用户指定了抵扣（points_to_spend > 0）的销售不返积分，
//     即使抵扣金额被上限封顶成了零
//   - 自动模式下发生了抵扣（points_spent > 0）的销售不返积分
//   - 返了积分的销售一定没有抵扣
//
// 【取整规则】固定不可配置：
//   - 返积分向下取整 —— 平台不多发
//   - 抵扣积分成本向上取整 —— 平台给出的抵扣价值不少收积分
//
// 【资金口径】基础折扣由商户承担（从商户应收里扣），
// 积分抵扣由平台补贴（商户应收不受影响）
//
// ============================================================================

// BenefitInput 计算输入，全部来自交易时刻的快照
type BenefitInput struct {
	AmountGross   int64 // 账单原始金额
	Balance       int64 // 用户当前积分余额
	PointsToSpend int64 // 用户指定抵扣的积分数，0 表示自动最大化抵扣

	// 门店配置
	BaseDiscountPct           int
	LoyaltyAccrualPct         int
	MinPurchaseForAccrual     int64
	MaxPointDiscountPctOfBill int

	// 平台配置
	RedeemRate        int64
	MaxAccrualPercent int
}

// Calculation 计算结果
type Calculation struct {
	BaseDiscountAmount int64 `json:"base_discount_amount"` // 基础折扣金额（商户承担）
	ExtraValue         int64 `json:"extra_value"`          // 积分抵扣金额（平台承担）
	ExtraDiscountPct   int   `json:"extra_discount_pct"`   // 积分抵扣占账单百分比
	PointsSpent        int64 `json:"points_spent"`         // 抵扣消耗的积分
	PointsEarned       int64 `json:"points_earned"`        // 本单返还的积分
	AmountPartnerDue   int64 `json:"amount_partner_due"`   // 商户应收金额
	AmountUserSubsidy  int64 `json:"amount_user_subsidy"`  // 平台补贴金额
	FinalUserPrice     int64 `json:"final_user_price"`     // 用户实付金额
	NetPointsChange    int64 `json:"net_points_change"`    // 本单积分净变动
	RedeemRate         int64 `json:"redeem_rate"`          // 参与计算的兑换率
}

// CalculateBenefit 计算一笔销售的折扣和积分变动
func CalculateBenefit(in BenefitInput) Calculation {
	rate := in.RedeemRate
	if rate <= 0 {
		rate = model.DefaultRedeemRate
	}

	// 单笔账单积分抵扣上限
	maxExtraByBill := in.AmountGross * int64(in.MaxPointDiscountPctOfBill) / 100
	// 余额能覆盖的抵扣上限
	maxExtraByBalance := in.Balance * rate

	var extraValue int64
	if in.PointsToSpend > 0 {
		// 用户指定抵扣数量，三重封顶
		extraValue = minInt64(in.PointsToSpend*rate, maxExtraByBill, maxExtraByBalance)
	} else {
		// 自动模式：尽可能多地抵扣
		extraValue = minInt64(maxExtraByBalance, maxExtraByBill)
	}

	// 抵扣成本向上取整；extraValue <= balance*rate 保证结果不超过余额
	pointsSpent := ceilDiv(extraValue, rate)

	// 返积分：仅在用户没有指定抵扣、且本单确实没有抵扣时发生。
	// 指定抵扣被上限封顶为零的销售同样不返 —— 用户要求花积分
	// 的那一单不能反过来多拿积分。
	// 账单金额还需达到门店返积分门槛；比例受平台上限截断；向下取整
	var pointsEarned int64
	if in.PointsToSpend == 0 && pointsSpent == 0 && in.AmountGross >= in.MinPurchaseForAccrual {
		accrualPct := in.LoyaltyAccrualPct
		if in.MaxAccrualPercent > 0 && accrualPct > in.MaxAccrualPercent {
			accrualPct = in.MaxAccrualPercent
		}
		pointsEarned = in.AmountGross * int64(accrualPct) / 100 / rate
	}

	baseDiscountAmount := in.AmountGross * int64(in.BaseDiscountPct) / 100

	var extraDiscountPct int
	if in.AmountGross > 0 {
		extraDiscountPct = int(extraValue * 100 / in.AmountGross)
	}

	return Calculation{
		BaseDiscountAmount: baseDiscountAmount,
		ExtraValue:         extraValue,
		ExtraDiscountPct:   extraDiscountPct,
		PointsSpent:        pointsSpent,
		PointsEarned:       pointsEarned,
		AmountPartnerDue:   in.AmountGross - baseDiscountAmount,
		AmountUserSubsidy:  extraValue,
		FinalUserPrice:     in.AmountGross - baseDiscountAmount - extraValue,
		NetPointsChange:    pointsEarned - pointsSpent,
		RedeemRate:         rate,
	}
}

func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

func minInt64(values ...int64) int64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
