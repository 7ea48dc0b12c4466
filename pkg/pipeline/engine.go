package pipeline

import (
	"context"
	"errors"
	"io"
	"os/exec"
)

// Engine executes plan invocations. The workflow engine owns all actual
// scheduling and parallelism; this core only hands it the plan.
type Engine interface {
	// Run executes one invocation and blocks until it finishes.
	// Failures are reported as *InvocationError with the engine's
	// exit code preserved; Run does not retry.
	Run(ctx context.Context, inv Invocation) error
}

// ExecEngine runs invocations as local subprocesses, streaming their
// output to the configured writers so diagnostics stay visible.
type ExecEngine struct {
	// Stdout and Stderr receive the subprocess output. Nil writers
	// discard the corresponding stream.
	Stdout io.Writer
	Stderr io.Writer
}

// Run implements Engine.
func (e *ExecEngine) Run(ctx context.Context, inv Invocation) error {
	cmd := exec.CommandContext(ctx, inv.Command, inv.Args...)
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr

	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return &InvocationError{Invocation: inv, ExitCode: code, Cause: err}
	}
	return nil
}
