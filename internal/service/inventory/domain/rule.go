package domain

// LowStockRule 判断一个 variant 是否需要低库存告警。
type LowStockRule interface {
	Evaluate(v *Variant) (bool, error)
}
