package port

import (
	"context"

	"inventory-core/internal/pkg/eventbus"
)

// EventDispatcher 是进程内异步边界。只能在变更提交之后调用。
type EventDispatcher interface {
	Dispatch(ctx context.Context, ev eventbus.Event) error
}
