// internal/pkg/tracing/tracer.go
package tracing

import (
	"context"

	"inventory-core/internal/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Provider 抽象出 TracerProvider 的关停能力，未配置 Jaeger 时返回一个空实现。
type Provider interface {
	trace.TracerProvider
	Shutdown(ctx context.Context) error
}

type noopProvider struct {
	noop.TracerProvider
}

func (noopProvider) Shutdown(context.Context) error { return nil }

// InitTracerProvider initializes and registers a Jaeger TraceProvider.
// jaegerEndpoint 为空时只注册 propagator，tracer 为 noop。
func InitTracerProvider(serviceName, jaegerEndpoint string) (Provider, error) {
	// 设置全局的 TextMapPropagator，用于在服务间（HTTP / Kafka header）传递上下文
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	if jaegerEndpoint == "" {
		logger.L().Warn().Str("service", serviceName).Msg("JAEGER_ENDPOINT not set, tracing disabled")
		return noopProvider{}, nil
	}

	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	)
	otel.SetTracerProvider(tp)

	logger.L().Info().Str("service", serviceName).Str("endpoint", jaegerEndpoint).Msg("Tracing initialized")
	return tp, nil
}

// Detach 把 ctx 中的 span 信息挂到一个新的 background context 上：
// 保留链路关联，但不继承上游的取消和超时。异步任务都应该用它。
func Detach(ctx context.Context) context.Context {
	spanContext := trace.SpanContextFromContext(ctx)
	if !spanContext.IsValid() {
		return context.Background()
	}
	return trace.ContextWithRemoteSpanContext(context.Background(), spanContext)
}
