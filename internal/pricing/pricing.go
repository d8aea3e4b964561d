// Package pricing 计算结算页的总价、积分折扣价与订单摘要。
package pricing

import (
	"fmt"

	"giftshop/internal/model"

	"github.com/shopspring/decimal"
)

// PointDiscountRate 积分支付时的折扣系数。
var PointDiscountRate = decimal.RequireFromString("0.95")

// Quote 结算页展示用的价格信息。
type Quote struct {
	TotalPrice       int64    `json:"totalPrice"`
	DiscountedPrice  int64    `json:"discountedPrice"`
	Points           int64    `json:"points"`
	PointsSufficient bool     `json:"pointsSufficient"`
	PointsAfter      int64    `json:"pointsAfter"`
	Lines            []string `json:"lines"`
}

// TotalPrice 计算 Σ 单价 × 数量。
// 选项带价格时用选项价，否则用 fallbackUnitPrice（商品价）；找不到选项的订单行计 0。
func TotalPrice(drafts []model.OrderLineDraft, options []model.ProductOption, fallbackUnitPrice int64) int64 {
	byID := indexOptions(options)
	var total int64
	for _, d := range drafts {
		opt, ok := byID[d.OptionID]
		if !ok {
			continue
		}
		unit := fallbackUnitPrice
		if opt.Price != nil {
			unit = *opt.Price
		}
		total += unit * int64(d.Quantity)
	}
	return total
}

// DiscountedPrice 返回 round_half_up(total × 0.95)。
func DiscountedPrice(total int64) int64 {
	return decimal.NewFromInt(total).Mul(PointDiscountRate).Round(0).IntPart()
}

// Calculate 汇总价格、积分与每行摘要，无副作用。
func Calculate(drafts []model.OrderLineDraft, options []model.ProductOption, fallbackUnitPrice int64, points model.MemberPoints) Quote {
	total := TotalPrice(drafts, options, fallbackUnitPrice)
	discounted := DiscountedPrice(total)

	q := Quote{
		TotalPrice:       total,
		DiscountedPrice:  discounted,
		Points:           points.Point,
		PointsSufficient: points.Point >= discounted,
		Lines:            Lines(drafts, options),
	}
	if q.PointsSufficient {
		q.PointsAfter = points.Point - discounted
	}
	return q
}

// Lines 生成 "{选项名} X {数量}" 形式的订单摘要，没有匹配选项时为 "no option"。
func Lines(drafts []model.OrderLineDraft, options []model.ProductOption) []string {
	byID := indexOptions(options)
	out := make([]string, 0, len(drafts))
	for _, d := range drafts {
		opt, ok := byID[d.OptionID]
		if !ok {
			out = append(out, "no option")
			continue
		}
		out = append(out, fmt.Sprintf("%s X %d", opt.Name, d.Quantity))
	}
	return out
}

func indexOptions(options []model.ProductOption) map[int64]model.ProductOption {
	byID := make(map[int64]model.ProductOption, len(options))
	for _, o := range options {
		byID[o.ID] = o
	}
	return byID
}
