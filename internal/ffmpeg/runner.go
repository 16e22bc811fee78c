package ffmpeg

import (
	"context"

	execute "github.com/alexellis/go-execute/v2"
)

// RunResult is the captured outcome of one child process.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner starts a child process and waits for it. Cancelling ctx must kill
// the process. Implementations return a non-nil error only when the process
// could not be run or was killed; a non-zero exit is reported in ExitCode.
type Runner interface {
	Run(ctx context.Context, name string, args []string) (RunResult, error)
}

// ExecRunner runs real processes via go-execute.
type ExecRunner struct{}

// Run implements [Runner].
func (ExecRunner) Run(ctx context.Context, name string, args []string) (RunResult, error) {
	task := execute.ExecTask{
		Command: name,
		Args:    args,
	}
	res, err := task.Execute(ctx)
	out := RunResult{Stdout: res.Stdout, Stderr: res.Stderr, ExitCode: res.ExitCode}
	if err != nil {
		return out, err
	}
	if res.Cancelled {
		return out, ctx.Err()
	}
	return out, nil
}
