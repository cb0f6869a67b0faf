package port

import (
	"context"

	"inventory-core/internal/pkg/eventbus"
)

// EventDispatcher 只应在事务提交之后调用。
type EventDispatcher interface {
	Dispatch(ctx context.Context, ev eventbus.Event) error
}
