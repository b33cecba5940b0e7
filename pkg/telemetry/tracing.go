// Package telemetry はトレースとメトリクスの初期化を提供する。
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/nao1215/estatehub/pkg/config"
)

// Setup はサービスのOpenTelemetryトレースを初期化する。
//
// OTLPEndpointが空の場合は何もせず、no-opのshutdown関数を返す。
// 返されたshutdown関数は未送信のスパンをフラッシュするため、呼び出し側でdeferすること。
func Setup(ctx context.Context, cfg config.Telemetry, serviceName string) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if cfg.OTLPEndpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.OTLPEndpoint))
	if err != nil {
		return noop, fmt.Errorf("OTLPエクスポーターの作成に失敗: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return noop, fmt.Errorf("リソースの作成に失敗: %w", err)
	}

	ratio := cfg.SampleRatio
	if ratio < 0 || ratio > 1 {
		ratio = 1
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
	)
	return tp.Shutdown, nil
}

// Tracer は計装ライブラリ名に対応するトレーサーを返す。
// Setup前やトレース無効時はグローバルのno-opプロバイダーが使われる。
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
