// Package pipeline builds and runs the execution plan for the external
// workflow engine. A plan is the ordered, inspectable list of external
// invocations plus a resolved worker count; per invocation it is either
// previewed (rendered, no external calls) or dispatched, never both.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// State tracks the planner's lifecycle for one invocation.
type State int

const (
	// StateBuilding is the initial state while the plan is assembled.
	StateBuilding State = iota

	// StatePreviewing renders the plan without external calls.
	StatePreviewing

	// StateDispatching hands the plan to the workflow engine.
	StateDispatching

	// StateDone is the terminal success state.
	StateDone

	// StateFailed is the terminal state after an engine failure.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StatePreviewing:
		return "previewing"
	case StateDispatching:
		return "dispatching"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Invocation is one external command in the plan.
type Invocation struct {
	// Command is the executable name.
	Command string

	// Args is the ordered argument list, command excluded.
	Args []string
}

// String renders the invocation as a shell-style command line.
func (inv Invocation) String() string {
	return inv.Command + " " + strings.Join(inv.Args, " ")
}

// InvocationError reports a workflow engine failure with its exit code
// preserved for the caller.
type InvocationError struct {
	// Invocation is the command that failed.
	Invocation Invocation

	// ExitCode is the engine's exit status, -1 if it never ran.
	ExitCode int

	// Cause is the underlying error.
	Cause error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("pipeline failed with exit code %d: %v", e.ExitCode, e.Cause)
}

func (e *InvocationError) Unwrap() error { return e.Cause }

// ResolveWorkers resolves a --cores request into a concrete worker
// count. An empty request and the "all" sentinel both resolve to the
// host's available parallelism; an explicit integer is used verbatim
// with a floor of 1; anything else is rejected.
func ResolveWorkers(req string) (int, error) {
	req = strings.TrimSpace(req)
	if req == "" || strings.EqualFold(req, "all") {
		return runtime.NumCPU(), nil
	}
	n, err := strconv.Atoi(req)
	if err != nil {
		return 0, fmt.Errorf("invalid cores request %q: want an integer or \"all\"", req)
	}
	if n < 1 {
		n = 1
	}
	return n, nil
}

// Options configures plan construction.
type Options struct {
	// PipelineDir is the workflow engine's working directory,
	// containing workflow/Snakefile.
	PipelineDir string

	// Workers is the resolved worker count, from ResolveWorkers.
	Workers int

	// DryRun selects the preview path: render only, no external calls.
	DryRun bool

	// Verbose asks the engine for shell-command echoing.
	Verbose bool

	// ConfigSummary is the merged configuration rendering shown when
	// the plan is previewed.
	ConfigSummary string
}

// Plan is the ordered sequence of external invocations for one run.
type Plan struct {
	// Invocations is the ordered command list.
	Invocations []Invocation

	// WorkerCount is the resolved degree of parallelism.
	WorkerCount int

	// DryRun marks a preview-only plan.
	DryRun bool

	configSummary string
	state         State
}

// Build assembles the plan for running the workflow engine on the
// prepared workspace. The argument list mirrors the engine's expected
// command line exactly; rendering and dispatch both consume it
// unchanged.
func Build(opts Options) *Plan {
	args := []string{
		"--use-conda",
		"--cores", strconv.Itoa(opts.Workers),
		"--conda-frontend", "conda",
		"--snakefile", filepath.Join(opts.PipelineDir, "workflow", "Snakefile"),
		"--directory", opts.PipelineDir,
	}
	if opts.Verbose {
		args = append(args, "--verbose", "--printshellcmds")
	}

	return &Plan{
		Invocations:   []Invocation{{Command: "snakemake", Args: args}},
		WorkerCount:   opts.Workers,
		DryRun:        opts.DryRun,
		configSummary: opts.ConfigSummary,
		state:         StateBuilding,
	}
}

// State returns the plan's current lifecycle state.
func (p *Plan) State() State { return p.state }

// Preview renders the invocation list and configuration summary to w
// without performing any external calls, then terminates the plan.
// Only a freshly built plan can be previewed.
func (p *Plan) Preview(w io.Writer) error {
	if p.state != StateBuilding {
		return fmt.Errorf("cannot preview a plan in state %q", p.state)
	}
	p.state = StatePreviewing

	fmt.Fprintf(w, "Dry run: the following would be executed with %d worker(s):\n\n", p.WorkerCount)
	for i, inv := range p.Invocations {
		fmt.Fprintf(w, "  %d. %s\n", i+1, inv)
	}
	if p.configSummary != "" {
		fmt.Fprintf(w, "\nMerged configuration:\n%s\n", p.configSummary)
	}

	p.state = StateDone
	return nil
}

// Dispatch hands the plan to the workflow engine and blocks until it
// reports completion or failure. Only a freshly built plan can be
// dispatched; a previewed plan is terminal.
func (p *Plan) Dispatch(ctx context.Context, engine Engine) error {
	if p.state != StateBuilding {
		return fmt.Errorf("cannot dispatch a plan in state %q", p.state)
	}
	p.state = StateDispatching

	for _, inv := range p.Invocations {
		if err := engine.Run(ctx, inv); err != nil {
			p.state = StateFailed
			return err
		}
	}

	p.state = StateDone
	return nil
}
