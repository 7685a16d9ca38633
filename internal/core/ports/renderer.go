package ports

import (
	"context"
	"time"
)

// Renderer turns the telemetry event stream into progress output.
//
//go:generate mockgen -source=renderer.go -destination=mocks/mock_renderer.go -package=mocks
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// Stop flushes any buffered output.
	Stop() error

	// OnPlanEmit is called once the change tracker has split units into compile and reuse.
	OnPlanEmit(compile, reuse []string)

	// OnTaskStart is called when a span begins.
	OnTaskStart(spanID, parentID, name string, startTime time.Time)

	// OnTaskLog is called when a span emits tool output.
	OnTaskLog(spanID string, data []byte)

	// OnTaskComplete is called when a span ends. err is nil on success.
	OnTaskComplete(spanID string, endTime time.Time, err error)
}
