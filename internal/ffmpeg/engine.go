package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/backmassage/voicediary/internal/probe"
)

// Logger is the subset of logging.Logger the engine uses.
type Logger interface {
	Debug(string, ...interface{})
	Warn(string, ...interface{})
}

// Prober inspects an input before encoding. [probe.Prober] implements it.
type Prober interface {
	Probe(ctx context.Context, path string) (*probe.Result, error)
}

// Result is produced exactly once per Convert call and never mutated.
type Result struct {
	Success      bool
	OutputPath   string        // set on success only
	ErrorMessage string        // "timeout" on timeout; stderr tail on non-zero exit
	Elapsed      time.Duration // wall time of the whole call
	ExitCode     *int          // set when the process exited on its own
	AudioLength  time.Duration // from the input probe, zero when unknown
	Err          error         // wraps one of the package sentinels on failure
}

// Engine runs conversions. Engines hold no per-job state and are safe for
// concurrent use.
type Engine struct {
	fs     afero.Fs
	runner Runner
	prober Prober
	binary string
	log    Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithProber enables input probing before each encode.
func WithProber(p Prober) Option { return func(e *Engine) { e.prober = p } }

// WithBinary overrides the ffmpeg executable (default "ffmpeg").
func WithBinary(path string) Option { return func(e *Engine) { e.binary = path } }

// WithLogger sets the engine's logger.
func WithLogger(l Logger) Option { return func(e *Engine) { e.log = l } }

// NewEngine returns an Engine that checks paths on fsys and runs ffmpeg
// through runner.
func NewEngine(fsys afero.Fs, runner Runner, opts ...Option) *Engine {
	e := &Engine{fs: fsys, runner: runner, binary: "ffmpeg", log: nopLogger{}}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Convert encodes sourcePath into outputPath. Inputs are validated before
// any process is started. On timeout, non-zero exit or an empty output the
// partial file at outputPath is removed before Convert returns, including
// when ctx is cancelled by shutdown.
func (e *Engine) Convert(ctx context.Context, sourcePath, outputPath string, spec Spec) Result {
	start := time.Now()
	res := e.convert(ctx, sourcePath, outputPath, spec)
	res.Elapsed = time.Since(start)
	return res
}

func (e *Engine) convert(ctx context.Context, sourcePath, outputPath string, spec Spec) Result {
	if err := e.validateInputs(sourcePath, outputPath, spec); err != nil {
		return failure(err.Error(), err)
	}

	var audioLength time.Duration
	if e.prober != nil {
		pr, err := e.prober.Probe(ctx, sourcePath)
		switch {
		case err != nil:
			// Let the encoder decide; it reports a clearer error for bad inputs.
			e.log.Warn("probe %s failed: %v", filepath.Base(sourcePath), err)
		case !pr.HasAudio():
			err := fmt.Errorf("%w: %s has no audio stream", ErrInvalidInput, filepath.Base(sourcePath))
			return failure(err.Error(), err)
		default:
			audioLength = pr.Duration()
			e.log.Debug("input %s: %s, %s", filepath.Base(sourcePath), pr.PrimaryAudio().Codec, audioLength)
		}
	}

	if err := e.fs.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		err = fmt.Errorf("%w: create output directory: %v", ErrInvalidInput, err)
		return failure(err.Error(), err)
	}

	args := Build(spec, sourcePath, outputPath)
	e.log.Debug("%s %s", e.binary, strings.Join(args, " "))

	runCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()
	run, runErr := e.runner.Run(runCtx, e.binary, args)

	switch {
	case ctx.Err() != nil:
		e.removePartial(outputPath)
		return failure("interrupted", fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err()))
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		e.removePartial(outputPath)
		return failure("timeout", fmt.Errorf("%w after %s", ErrTimeout, spec.Timeout))
	case run.ExitCode != 0:
		e.removePartial(outputPath)
		code := run.ExitCode
		msg := strings.TrimSpace(tail(run.Stderr, stderrTailLimit))
		if msg == "" {
			msg = fmt.Sprintf("exit status %d", code)
		}
		r := failure(msg, fmt.Errorf("%w (status %d)", ErrNonZeroExit, code))
		r.ExitCode = &code
		return r
	case runErr != nil:
		e.removePartial(outputPath)
		msg := fmt.Sprintf("run %s: %v", e.binary, runErr)
		return failure(msg, fmt.Errorf("%w: %v", ErrNonZeroExit, runErr))
	}

	fi, err := e.fs.Stat(outputPath)
	if err != nil || fi.Size() == 0 {
		e.removePartial(outputPath)
		zero := 0
		r := failure("output missing or empty", fmt.Errorf("%w: %s", ErrCorruptOutput, outputPath))
		r.ExitCode = &zero
		return r
	}

	zero := 0
	return Result{
		Success:     true,
		OutputPath:  outputPath,
		ExitCode:    &zero,
		AudioLength: audioLength,
	}
}

func (e *Engine) validateInputs(sourcePath, outputPath string, spec Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if outputPath == "" {
		return fmt.Errorf("%w: output path not set", ErrInvalidInput)
	}
	fi, err := e.fs.Stat(sourcePath)
	if err != nil {
		return fmt.Errorf("%w: source %s: %v", ErrInvalidInput, sourcePath, err)
	}
	if !fi.Mode().IsRegular() || fi.Size() == 0 {
		return fmt.Errorf("%w: source %s is empty or not a file", ErrInvalidInput, sourcePath)
	}
	if _, err := e.fs.Stat(spec.BackgroundImage); err != nil {
		return fmt.Errorf("%w: background image %s: %v", ErrInvalidInput, spec.BackgroundImage, err)
	}
	return nil
}

func (e *Engine) removePartial(path string) {
	if err := e.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		e.log.Warn("could not remove partial output %s: %v", path, err)
	}
}

func failure(msg string, err error) Result {
	return Result{ErrorMessage: msg, Err: err}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}
