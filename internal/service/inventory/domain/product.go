package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product 是 variant 的父记录。TotalStock / MinPrice / MaxPrice 是冗余的汇总字段，
// 只由聚合同步器写入，并且总是带着 Version 做条件更新。
type Product struct {
	ID             string
	Slug           string
	Name           string
	BasePrice      decimal.Decimal
	Discount       decimal.Decimal // 百分比，0-100
	CompareAtPrice decimal.Decimal
	TotalStock     int
	MinPrice       decimal.Decimal
	MaxPrice       decimal.Decimal
	Active         bool
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SellingPrice 返回折扣后的价格。
func (p *Product) SellingPrice() decimal.Decimal {
	if p.Discount.IsZero() {
		return p.BasePrice
	}
	hundred := decimal.NewFromInt(100)
	return p.BasePrice.Mul(hundred.Sub(p.Discount)).Div(hundred).Round(2)
}

// Aggregates 是从 variant 集合推导出的汇总值。
type Aggregates struct {
	TotalStock int
	MinPrice   decimal.Decimal
	MaxPrice   decimal.Decimal
}

// ComputeAggregates 总库存是所有 variant 之和；价格区间只看开启库存跟踪的 variant，
// 一个都没有时为 0。
func ComputeAggregates(variants []*Variant) Aggregates {
	var agg Aggregates
	first := true
	for _, v := range variants {
		agg.TotalStock += v.Quantity
		if !v.TrackStock {
			continue
		}
		if first {
			agg.MinPrice, agg.MaxPrice = v.Price, v.Price
			first = false
			continue
		}
		if v.Price.LessThan(agg.MinPrice) {
			agg.MinPrice = v.Price
		}
		if v.Price.GreaterThan(agg.MaxPrice) {
			agg.MaxPrice = v.Price
		}
	}
	return agg
}

// Matches 判断汇总字段是否已经收敛。
func (p *Product) Matches(agg Aggregates) bool {
	return p.TotalStock == agg.TotalStock && p.MinPrice.Equal(agg.MinPrice) && p.MaxPrice.Equal(agg.MaxPrice)
}

// Apply 写入汇总值并重新计算划线价。
func (p *Product) Apply(agg Aggregates) {
	p.TotalStock = agg.TotalStock
	p.MinPrice = agg.MinPrice
	p.MaxPrice = agg.MaxPrice
	p.CompareAtPrice = p.BasePrice
	if p.Discount.IsZero() {
		p.CompareAtPrice = decimal.Zero
	}
}
