// Package tracing wraps OpenTelemetry span creation for ARServer's dispatcher
// and execution bridge.
//
// Real tracing requires an OTLP endpoint to be configured. Without it the
// default no-op tracer provider is used.
package tracing

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "arserver"

var dispatcherTracer = otel.Tracer("arserver/dispatcher")
var bridgeTracer = otel.Tracer("arserver/execbridge")

var sdkProvider *sdktrace.TracerProvider

// Init installs an OTLP-exporting tracer provider when endpoint is
// non-empty. With an empty endpoint it is a no-op and span creation stays
// zero-overhead.
func Init(ctx context.Context, endpoint string) error {
	if endpoint == "" {
		return nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpointHost(endpoint)),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		res = resource.Default()
	}

	sdkProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(sdkProvider)
	dispatcherTracer = otel.Tracer("arserver/dispatcher")
	bridgeTracer = otel.Tracer("arserver/execbridge")
	return nil
}

// Shutdown flushes pending spans and shuts down the provider.
func Shutdown(ctx context.Context) error {
	if sdkProvider != nil {
		return sdkProvider.Shutdown(ctx)
	}
	return nil
}

// endpointHost strips the scheme from the endpoint URL for otlptracehttp.
func endpointHost(endpoint string) string {
	for _, prefix := range []string{"https://", "http://"} {
		if strings.HasPrefix(endpoint, prefix) {
			return endpoint[len(prefix):]
		}
	}
	return endpoint
}

// StartRPC opens a span for an incoming RPC request.
func StartRPC(ctx context.Context, requestName string) (context.Context, trace.Span) {
	return dispatcherTracer.Start(ctx, "rpc."+requestName,
		trace.WithAttributes(attribute.String("arserver.request", requestName)))
}

// StartBridgeCall opens a span for an outgoing execution-bridge call.
func StartBridgeCall(ctx context.Context, method string) (context.Context, trace.Span) {
	return bridgeTracer.Start(ctx, "execbridge."+method,
		trace.WithAttributes(attribute.String("arserver.execution_method", method)))
}

// End records err (if any) on span and closes it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
