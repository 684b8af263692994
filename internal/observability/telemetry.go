// Package observability трассировка фоновых задач чанков и HTTP-запросов.
package observability

import (
	"context"
	"time"

	"github.com/annel0/chunk-engine/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// InitTelemetry настраивает OTLP экспортер и устанавливает глобальный TracerProvider,
// из которого берут трассировщики диспетчер задач чанков и otelgin.
// Возвращает функцию shutdown, которую нужно вызвать при завершении приложения.
func InitTelemetry(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	// OTLP HTTP экспортер (по умолчанию localhost:4318)
	exp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	shutdown, err := Install(ctx, serviceName, trace.WithBatcher(exp))
	if err != nil {
		return nil, err
	}
	logging.GetServerLogger().Info("📡 OpenTelemetry инициализирован (OTLP → 4318, service=%s)", serviceName)
	return shutdown, nil
}

// Install устанавливает глобальный TracerProvider с ресурсом сервиса и
// переданными опциями (экспортёр, сэмплер)
func Install(ctx context.Context, serviceName string, opts ...trace.TracerProviderOption) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, err
	}

	tp := trace.NewTracerProvider(append(opts, trace.WithResource(res))...)
	otel.SetTracerProvider(tp)

	shutdown := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}
	return shutdown, nil
}
