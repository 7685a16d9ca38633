// Package ports defines the core interfaces for the application.
package ports

import (
	"context"
	"io"

	"go.trai.ch/kbuild/internal/core/domain"
)

// Runner executes external tools: the device compiler, the archiver and device queries.
//
//go:generate go run go.uber.org/mock/mockgen -source=runner.go -destination=mocks/mock_runner.go -package=mocks
type Runner interface {
	// Run starts cmd and waits for it to exit.
	//
	// Output is captured into the returned result and, when stream is non-nil,
	// copied to stream as it arrives.
	//
	// A non-zero exit status is not an error: it is reported through ProcessResult.ExitCode.
	// The error is reserved for failures to start the process at all.
	Run(ctx context.Context, cmd domain.Command, stream io.Writer) (domain.ProcessResult, error)
}
