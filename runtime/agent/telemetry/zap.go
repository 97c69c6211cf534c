package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type (
	// ZapLogger wraps go.uber.org/zap for structured runtime logging.
	ZapLogger struct {
		l *zap.Logger
	}

	// OtelMetrics wraps OTEL metrics for runtime instrumentation.
	OtelMetrics struct {
		meter metric.Meter
	}

	// OtelTracer wraps OTEL tracing for runtime tracing.
	OtelTracer struct {
		tracer trace.Tracer
	}

	// otelSpan wraps an OTEL trace span.
	otelSpan struct {
		span trace.Span
	}
)

// NewZapLogger constructs a Logger backed by a production zap.Logger.
func NewZapLogger(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapLogger{l: l}
}

// NewOtelMetrics constructs a Metrics recorder that delegates to OTEL metrics.
// Uses the global MeterProvider; configure it via otel.SetMeterProvider before
// invoking runtime methods.
func NewOtelMetrics() Metrics {
	meter := otel.Meter("github.com/cascadekit/cascade/runtime/agent")
	return &OtelMetrics{meter: meter}
}

// NewOtelTracer constructs a Tracer that delegates to OTEL tracing. Uses the
// global TracerProvider; configure it via otel.SetTracerProvider before
// invoking runtime methods (e.g. via OTEL_EXPORTER_OTLP_ENDPOINT).
func NewOtelTracer() Tracer {
	tracer := otel.Tracer("github.com/cascadekit/cascade/runtime/agent")
	return &OtelTracer{tracer: tracer}
}

func (z *ZapLogger) Debug(_ context.Context, msg string, keyvals ...any) {
	z.l.Debug(msg, kvSliceToZap(keyvals)...)
}

func (z *ZapLogger) Info(_ context.Context, msg string, keyvals ...any) {
	z.l.Info(msg, kvSliceToZap(keyvals)...)
}

func (z *ZapLogger) Warn(_ context.Context, msg string, keyvals ...any) {
	z.l.Warn(msg, kvSliceToZap(keyvals)...)
}

func (z *ZapLogger) Error(_ context.Context, msg string, keyvals ...any) {
	z.l.Error(msg, kvSliceToZap(keyvals)...)
}

// IncCounter increments a counter metric by the given value.
func (m *OtelMetrics) IncCounter(name string, value float64, tags ...string) {
	counter, err := m.meter.Float64Counter(name)
	if err != nil {
		return
	}
	counter.Add(context.Background(), value, metric.WithAttributes(tagsToAttrs(tags)...))
}

// RecordTimer records a duration histogram/timer metric.
func (m *OtelMetrics) RecordTimer(name string, duration time.Duration, tags ...string) {
	histogram, err := m.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	histogram.Record(context.Background(), duration.Seconds(), metric.WithAttributes(tagsToAttrs(tags)...))
}

// RecordGauge records a gauge metric value. OTEL has no synchronous gauge
// instrument, so a histogram is used as a stand-in, matching how the rest of
// the runtime observes point-in-time values.
func (m *OtelMetrics) RecordGauge(name string, value float64, tags ...string) {
	histogram, err := m.meter.Float64Histogram(name + "_gauge")
	if err != nil {
		return
	}
	histogram.Record(context.Background(), value, metric.WithAttributes(tagsToAttrs(tags)...))
}

// Start creates a new span with the given name and options.
func (t *OtelTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	newCtx, span := t.tracer.Start(ctx, name, opts...)
	return newCtx, &otelSpan{span: span}
}

// Span retrieves the current span from the context.
func (t *OtelTracer) Span(ctx context.Context) Span {
	return &otelSpan{span: trace.SpanFromContext(ctx)}
}

func (s *otelSpan) End(opts ...trace.SpanEndOption)           { s.span.End(opts...) }
func (s *otelSpan) AddEvent(name string, attrs ...any)        { s.span.AddEvent(name, trace.WithAttributes(kvSliceToAttrs(attrs)...)) }
func (s *otelSpan) SetStatus(code codes.Code, description string) { s.span.SetStatus(code, description) }
func (s *otelSpan) RecordError(err error, opts ...trace.EventOption) { s.span.RecordError(err, opts...) }

// kvSliceToZap converts variadic key-value pairs (k1, v1, k2, v2, ...) into
// zap.Field values. An odd-length slice pairs its last key with nil.
func kvSliceToZap(keyvals []any) []zap.Field {
	fields := make([]zap.Field, 0, len(keyvals)/2+1)
	for i := 0; i < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		var v any
		if i+1 < len(keyvals) {
			v = keyvals[i+1]
		}
		fields = append(fields, zap.Any(k, v))
	}
	return fields
}

func tagsToAttrs(tags []string) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for i := 0; i < len(tags); i += 2 {
		k := tags[i]
		v := ""
		if i+1 < len(tags) {
			v = tags[i+1]
		}
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

func kvSliceToAttrs(keyvals []any) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for i := 0; i < len(keyvals); i += 2 {
		k := keyvals[i]
		var v any
		if i+1 < len(keyvals) {
			v = keyvals[i+1]
		}
		keyStr, ok := k.(string)
		if !ok {
			keyStr = ""
		}
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(keyStr, val))
		case int:
			attrs = append(attrs, attribute.Int(keyStr, val))
		case int64:
			attrs = append(attrs, attribute.Int64(keyStr, val))
		case float64:
			attrs = append(attrs, attribute.Float64(keyStr, val))
		case bool:
			attrs = append(attrs, attribute.Bool(keyStr, val))
		default:
			attrs = append(attrs, attribute.String(keyStr, ""))
		}
	}
	return attrs
}
