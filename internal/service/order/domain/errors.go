package domain

import "errors"

var (
	ErrOrderNotFound          = errors.New("order not found")
	ErrInvalidStateTransition = errors.New("invalid order state transition")
	ErrInvalidOrder           = errors.New("invalid order")
	ErrUnknownState           = errors.New("unknown order state")
	// ErrVersionConflict 仓储在乐观锁版本不一致时返回，应用层重新读取后重试。
	ErrVersionConflict = errors.New("order version conflict")
	// ErrSystem 表示下单过程中的基础设施故障，占用的库存已经归还。
	ErrSystem = errors.New("system error")
)
