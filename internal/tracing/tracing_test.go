package tracing

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/config"
)

func TestSetup_Disabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer shutdown(context.Background())

	if _, ok := otel.GetTracerProvider().(noop.TracerProvider); !ok {
		t.Errorf("expected noop provider, got %T", otel.GetTracerProvider())
	}
}

func TestSetup_NoopExporter(t *testing.T) {
	for _, exporter := range []string{"noop", ""} {
		shutdown, err := Setup(context.Background(), config.TracingConfig{Enabled: true, Exporter: exporter}, nil)
		if err != nil {
			t.Fatalf("Setup(%q): %v", exporter, err)
		}
		_ = shutdown(context.Background())
	}
}

func TestSetup_StdoutWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Setup(context.Background(), config.TracingConfig{Enabled: true, Exporter: "stdout"}, &buf)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	_, span := StartSpan(context.Background(), "scene.generate", IntAttr("scene.index", 1))
	End(span, nil)

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "scene.generate") {
		t.Errorf("expected span in exporter output, got: %s", buf.String())
	}
	otel.SetTracerProvider(noop.NewTracerProvider())
}

func TestSetup_UnsupportedExporter(t *testing.T) {
	if _, err := Setup(context.Background(), config.TracingConfig{Enabled: true, Exporter: "jaeger"}, nil); err == nil {
		t.Error("expected error for unsupported exporter")
	}
}

func TestEnd_SetsStatus(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	defer otel.SetTracerProvider(noop.NewTracerProvider())

	_, ok := StartSpan(context.Background(), "ok", StringAttr("agent.id", "copy"), BoolAttr("agent.final", false))
	End(ok, nil)
	_, failed := StartSpan(context.Background(), "failed")
	End(failed, errors.New("boom"))

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", spans[0].Status().Code)
	}
	if spans[1].Status().Code != codes.Error || spans[1].Status().Description != "boom" {
		t.Errorf("status = %+v, want Error boom", spans[1].Status())
	}
	if len(spans[1].Events()) == 0 {
		t.Error("expected recorded error event")
	}
}
