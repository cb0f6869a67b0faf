package domain

import "errors"

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrVariantNotFound   = errors.New("variant not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrProductInactive   = errors.New("product is inactive")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	// ErrVersionConflict 只在内部使用：条件更新时版本号已经变了。
	ErrVersionConflict = errors.New("version conflict")
)
