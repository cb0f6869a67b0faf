// internal/service/inventory/infrastructure/rule/cel_rule.go
package rule

import (
	"fmt"

	"inventory-core/internal/service/inventory/domain"

	"github.com/google/cel-go/cel"
)

// DefaultLowStockExpression 库存跟踪开启且数量不高于阈值时告警。
const DefaultLowStockExpression = "track_stock && quantity <= low_stock_threshold"

// CELLowStockRule 是 domain.LowStockRule 的 CEL 实现。
// 表达式在构造时编译一次，之后的 Evaluate 只做求值，可以并发调用。
type CELLowStockRule struct {
	expression string
	program    cel.Program
}

// NewCELLowStockRule 编译表达式。可用变量：
// track_stock, quantity, low_stock_threshold, price, sku, product_id, variant_id。
func NewCELLowStockRule(expression string) (*CELLowStockRule, error) {
	if expression == "" {
		expression = DefaultLowStockExpression
	}

	env, err := cel.NewEnv(
		cel.Variable("track_stock", cel.BoolType),
		cel.Variable("quantity", cel.IntType),
		cel.Variable("low_stock_threshold", cel.IntType),
		cel.Variable("price", cel.DoubleType),
		cel.Variable("sku", cel.StringType),
		cel.Variable("product_id", cel.StringType),
		cel.Variable("variant_id", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	ast, iss := env.Compile(expression)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile low stock rule %q: %w", expression, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("low stock rule %q must evaluate to bool, got %s", expression, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build low stock program: %w", err)
	}
	return &CELLowStockRule{expression: expression, program: prg}, nil
}

func (r *CELLowStockRule) Expression() string { return r.expression }

func (r *CELLowStockRule) Evaluate(v *domain.Variant) (bool, error) {
	price, _ := v.Price.Float64()
	out, _, err := r.program.Eval(map[string]any{
		"track_stock":         v.TrackStock,
		"quantity":            int64(v.Quantity),
		"low_stock_threshold": int64(v.LowStockThreshold),
		"price":               price,
		"sku":                 v.SKU,
		"product_id":          v.ProductID,
		"variant_id":          v.ID,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate low stock rule: %w", err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("low stock rule returned %T", out.Value())
	}
	return matched, nil
}
