package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"inventory-core/internal/pkg/logger"
	"inventory-core/internal/pkg/mq"
	"inventory-core/internal/service/order/application"
	"inventory-core/internal/service/order/domain"
	"inventory-core/internal/service/order/domain/port"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// MessageReader 是 *kafka.Reader 中消费者用到的部分。
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Config() kafka.ReaderConfig
	Close() error
}

// FailureHandler 接收处理失败的消息，通常是 mq.FailureHandler（转发到 DLT）。
type FailureHandler interface {
	Handle(ctx context.Context, msg kafka.Message, cause error)
}

// OrderPlacementConsumer 是一个驱动适配器，它监听下单请求主题并驱动应用服务。
type OrderPlacementConsumer struct {
	reader         MessageReader
	appSvc         *application.OrderApplicationService
	failureHandler FailureHandler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewOrderPlacementConsumer(reader MessageReader, appSvc *application.OrderApplicationService, failureHandler FailureHandler) *OrderPlacementConsumer {
	return &OrderPlacementConsumer{reader: reader, appSvc: appSvc, failureHandler: failureHandler}
}

// Start 在后台 goroutine 中开始消费。
func (a *OrderPlacementConsumer) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		topic := a.reader.Config().Topic
		logger.Ctx(ctx).Info().Str("topic", topic).Msg("✅ Order placement consumer started")
		for {
			// 使用 FetchMessage 而不是 ReadMessage，处理完（或移交 DLT）之后再手动提交
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Str("topic", topic).Msg("🛑 Order placement consumer shutting down")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("Could not read message, retrying")
				time.Sleep(time.Second)
				continue
			}

			msgCtx := mq.ExtractTraceContext(ctx, msg.Headers)
			if err := a.processMessage(msgCtx, msg); err != nil {
				a.failureHandler.Handle(msgCtx, msg, err)
			}

			// 无论成功或失败（已移交），都提交Offset
			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("Failed to commit messages")
			}
		}
	}()
	return nil
}

// Stop 优雅地停止消费者。
func (a *OrderPlacementConsumer) Stop(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	if err := a.reader.Close(); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("Failed to close placement reader")
	}
	logger.Ctx(ctx).Info().Msg("✅ Order placement consumer stopped")
}

// processMessage 反序列化消息并调用应用服务。业务拒绝（库存不足、商品下架等）
// 是正常结果，只有无法解析的消息和系统错误才交给 FailureHandler。
func (a *OrderPlacementConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var req application.PlaceOrderRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		return errors.Wrap(err, "decode placement request")
	}

	order, err := a.appSvc.PlaceOrder(ctx, &req)
	switch {
	case err == nil:
		logger.Ctx(ctx).Info().Str("order_id", order.ID).Str("user_id", req.UserID).Msg("Order placed from queue")
		return nil
	case isBusinessRejection(err):
		logger.Ctx(ctx).Info().Err(err).Str("user_id", req.UserID).Msg("Order placement rejected")
		return nil
	default:
		return err
	}
}

func isBusinessRejection(err error) bool {
	return errors.Is(err, port.ErrInsufficientStock) ||
		errors.Is(err, port.ErrProductInactive) ||
		errors.Is(err, port.ErrVariantNotFound) ||
		errors.Is(err, domain.ErrInvalidOrder)
}
