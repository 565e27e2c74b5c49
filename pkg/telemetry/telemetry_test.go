package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
}

func TestValidateRejectsBadLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "loud"
	if err := cfg.Validate(); err == nil {
		t.Fatal("Expected error for invalid log level, got nil")
	}
}

func TestValidateRejectsBadSamplingRate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "stdout"
	cfg.Tracing.SamplingRate = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("Expected error for out-of-range sampling rate, got nil")
	}
}

func TestDisabledMetricsAreNoOp(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	// No collectors registered; recording must not panic.
	m.RecordTransition("running")
	m.RecordDroppedTransition("api")
	m.WatcherAdded()
	m.WatcherRemoved()
	m.RecordNotificationDropped()
	m.RecordLogLine("stdout")
	m.RecordImageStep("build", "ok", 1.5)
}

func TestEnabledMetricsRecord(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "appdock"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	m.RecordTransition("running")
	m.RecordLogLine("stderr")
	m.RecordImageStep("push", "error", 0.2)
	if m.Handler() == nil {
		t.Error("Expected a metrics handler when enabled")
	}
}

func TestTracerSpans(t *testing.T) {
	tracer, err := NewTracer(TracingConfig{
		Enabled:      true,
		Exporter:     "none",
		SamplingRate: 1.0,
	}, "appdock-test", "test", "test")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	defer tracer.Shutdown(context.Background())

	ctx, span := tracer.StartResolveSpan(context.Background(), "api")
	if !span.SpanContext().IsValid() {
		t.Error("Expected a valid resolve span")
	}
	if trace.SpanFromContext(ctx) != span {
		t.Error("Expected the returned context to carry the span")
	}
	childCtx, child := tracer.StartBuildSpan(ctx, "build", "acme/api:v1")
	if !child.SpanContext().IsValid() {
		t.Error("Expected a valid build span")
	}
	if child.SpanContext().TraceID() != span.SpanContext().TraceID() {
		t.Error("Expected the build span to share the parent trace")
	}
	if trace.SpanFromContext(childCtx) != child {
		t.Error("Expected the returned context to carry the build span")
	}
	RecordError(child, context.DeadlineExceeded)
	child.End()
	RecordSuccess(span)
	span.End()
}

func TestDisabledTracerIsInert(t *testing.T) {
	tracer, err := NewTracer(TracingConfig{}, "appdock-test", "test", "test")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	defer tracer.Shutdown(context.Background())

	_, span := tracer.StartResolveSpan(context.Background(), "api")
	span.End()
}

func TestLoggerFields(t *testing.T) {
	log, err := NewLogger(LoggingConfig{Level: "debug", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	child := log.NewComponentLogger("lifecycle").
		WithResource("api").
		WithEndpoint("http").
		WithImage("acme/api:v1")
	if child == nil {
		t.Fatal("Expected derived logger")
	}
	// Derivation must not mutate the parent.
	child.Debug("derived logger works")
	log.Debug("parent logger works")
}
