package service

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ComputeVAT 计算消费记录的增值税额（最小货币单位）
// 未启用增值税时为 0；显式给出税额时以其为准；否则按 amount*rate 四舍五入（远离零）
func ComputeVAT(amount int64, applied bool, explicit *int64, rate float64) int64 {
	if !applied {
		return 0
	}
	if explicit != nil {
		return *explicit
	}
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromFloat(rate)).
		Round(0).
		IntPart()
}

// FormatAmount 把最小货币单位格式化为两位小数并附带币种，如 "10.50 EUR"
func FormatAmount(amount int64, currency string) string {
	s := decimal.New(amount, -2).StringFixed(2)
	currency = strings.TrimSpace(currency)
	if currency == "" {
		return s
	}
	return s + " " + currency
}
