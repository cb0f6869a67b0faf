package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"inventory-core/internal/pkg/eventbus"
	"inventory-core/internal/pkg/events"
	"inventory-core/internal/pkg/mq"
)

// EventKafkaAdapter 把进程内事件转发到 Kafka，供下游（搜索、报表等）消费。
// 作为 dispatcher 的订阅者运行，失败只影响下游，不影响库存和订单。
type EventKafkaAdapter struct {
	writer mq.MessageWriter
}

func NewEventKafkaAdapter(writer mq.MessageWriter) *EventKafkaAdapter {
	return &EventKafkaAdapter{writer: writer}
}

type envelope struct {
	Name    string         `json:"name"`
	Payload eventbus.Event `json:"payload"`
}

// Publish 以 product id 或 order id 作为分区 key，保证同一聚合的事件有序。
func (a *EventKafkaAdapter) Publish(ctx context.Context, ev eventbus.Event) error {
	var key string
	switch e := ev.(type) {
	case events.StockChanged:
		key = e.ProductID
	case events.OrderCancelled:
		key = e.OrderID
	default:
		return fmt.Errorf("event kafka adapter: unsupported event %T", ev)
	}

	value, err := json.Marshal(envelope{Name: ev.EventName(), Payload: ev})
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", ev.EventName(), err)
	}
	return mq.ProduceMessage(ctx, a.writer, []byte(key), value)
}

// Close 关闭底层的Kafka writer。
func (a *EventKafkaAdapter) Close() error {
	return a.writer.Close()
}
