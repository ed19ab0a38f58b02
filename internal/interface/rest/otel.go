package restservice

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	metricExport "go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	traceExport "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	meterName  = "pco.rest"
	tracerName = "pco.rest"
)

func initOpenTelemetry(ctx context.Context, otelCollectorUrl string) (func(context.Context) error, error) {
	otelCollectorUrl = strings.TrimSuffix(otelCollectorUrl, "/")
	traceExp, err := traceExport.New(
		ctx,
		traceExport.WithEndpoint(strings.TrimPrefix(otelCollectorUrl, "http://")),
		traceExport.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	metricExp, err := metricExport.New(
		ctx,
		metricExport.WithEndpoint(strings.TrimPrefix(otelCollectorUrl, "http://")),
		metricExport.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("pcod"),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)

	reader := sdkmetric.NewPeriodicReader(
		metricExp,
		sdkmetric.WithInterval(5*time.Second),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	shutdown := func(ctx context.Context) error {
		err1 := tp.Shutdown(ctx)
		err2 := mp.Shutdown(ctx)
		if err1 != nil {
			return err1
		}
		return err2
	}

	log.Info("otel sdk initialized")

	return shutdown, nil
}

// tracingMiddleware opens a server span for every request, continuing the
// trace of the caller if any.
func tracingMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer(tracerName)
	propagator := otel.GetTextMapPropagator()

	return func(c *gin.Context) {
		ctx := propagator.Extract(
			c.Request.Context(), propagation.HeaderCarrier(c.Request.Header),
		)
		spanName := c.FullPath()
		if spanName == "" {
			spanName = "unmatched route"
		}

		ctx, span := tracer.Start(
			ctx, fmt.Sprintf("%s %s", c.Request.Method, spanName),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPMethod(c.Request.Method),
				semconv.HTTPRoute(spanName),
			),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(semconv.HTTPStatusCode(status))
		if status >= 500 {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

// metricsMiddleware counts requests and records their latency, labelled by
// route and status code.
func metricsMiddleware() (gin.HandlerFunc, error) {
	meter := otel.Meter(meterName)

	requests, err := meter.Int64Counter(
		"pco_http_requests_total",
		metric.WithDescription("number of handled http requests"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"pco_http_request_duration_seconds",
		metric.WithDescription("latency of handled http requests"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("route", c.FullPath()),
			attribute.String("status", strconv.Itoa(c.Writer.Status())),
		)
		requests.Add(c.Request.Context(), 1, attrs)
		latency.Record(c.Request.Context(), time.Since(start).Seconds(), attrs)
	}, nil
}
