package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.trai.ch/kbuild/internal/core/ports"
)

// Install registers a global tracer provider that reports every span to renderer.
// The returned function shuts the provider down.
func Install(renderer ports.Renderer) func(context.Context) error {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(NewBridge(renderer)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}
