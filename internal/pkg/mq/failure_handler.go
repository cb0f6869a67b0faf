package mq

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"inventory-core/internal/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// 死信消息上携带的原始位置和失败原因。
const (
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderExceptionFqcn     = "x-exception-fqcn"
	HeaderExceptionMessage  = "x-exception-message"

	DLTSuffix = ".DLT"
)

// FailureHandler 把处理失败的消息转发到 <topic>.DLT。
type FailureHandler struct {
	newWriter func(topic string) MessageWriter

	mu      sync.Mutex
	writers map[string]MessageWriter
}

func NewFailureHandler(brokers []string) *FailureHandler {
	return NewFailureHandlerWithWriters(func(topic string) MessageWriter {
		return NewKafkaWriter(brokers, topic)
	})
}

// NewFailureHandlerWithWriters 自定义 writer 的创建方式。
func NewFailureHandlerWithWriters(newWriter func(topic string) MessageWriter) *FailureHandler {
	return &FailureHandler{newWriter: newWriter, writers: make(map[string]MessageWriter)}
}

func (h *FailureHandler) writer(topic string) MessageWriter {
	h.mu.Lock()
	defer h.mu.Unlock()
	w, ok := h.writers[topic]
	if !ok {
		w = h.newWriter(topic)
		h.writers[topic] = w
	}
	return w
}

// Handle 转发失败消息。转发本身失败只记日志，不会阻塞消费。
func (h *FailureHandler) Handle(ctx context.Context, msg kafka.Message, cause error) {
	dltTopic := msg.Topic + DLTSuffix

	dlt := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: []kafka.Header{
			{Key: HeaderOriginalTopic, Value: []byte(msg.Topic)},
			{Key: HeaderOriginalPartition, Value: []byte(strconv.Itoa(msg.Partition))},
			{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
			{Key: HeaderExceptionFqcn, Value: []byte(fmt.Sprintf("%T", cause))},
			{Key: HeaderExceptionMessage, Value: []byte(cause.Error())},
		},
	}
	InjectTraceContext(ctx, &dlt.Headers)

	if err := h.writer(dltTopic).WriteMessages(ctx, dlt); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("dlt_topic", dltTopic).
			Int64("offset", msg.Offset).
			Msg("Failed to forward message to DLT")
		return
	}
	logger.Ctx(ctx).Warn().
		Err(cause).
		Str("dlt_topic", dltTopic).
		Int64("offset", msg.Offset).
		Msg("Message forwarded to DLT")
}

func (h *FailureHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var firstErr error
	for topic, w := range h.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close dlt writer %s: %w", topic, err)
		}
	}
	h.writers = make(map[string]MessageWriter)
	return firstErr
}
