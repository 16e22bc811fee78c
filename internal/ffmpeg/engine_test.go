package ffmpeg

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/voicediary/internal/config"
	"github.com/backmassage/voicediary/internal/probe"
)

// fakeRunner records calls and runs fn in place of a real process.
type fakeRunner struct {
	calls atomic.Int32
	fn    func(ctx context.Context, args []string) (RunResult, error)
}

func (f *fakeRunner) Run(ctx context.Context, _ string, args []string) (RunResult, error) {
	f.calls.Add(1)
	return f.fn(ctx, args)
}

// writeOutput simulates ffmpeg writing n bytes to the last argument.
func writeOutput(fsys afero.Fs, n int) func(context.Context, []string) (RunResult, error) {
	return func(_ context.Context, args []string) (RunResult, error) {
		return RunResult{}, afero.WriteFile(fsys, args[len(args)-1], make([]byte, n), 0o644)
	}
}

type fakeProber struct {
	result *probe.Result
	err    error
}

func (p fakeProber) Probe(context.Context, string) (*probe.Result, error) { return p.result, p.err }

func testSpec() Spec {
	return Spec{BackgroundImage: "/work/assets/bg.jpg", Bitrate: 96, Timeout: time.Second}
}

func newFixture(t *testing.T) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/work/assets/bg.jpg", []byte("jpeg"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/work/inbox/abc.ogg", []byte("audio"), 0o644))
	return fsys
}

func TestBuild(t *testing.T) {
	args := Build(testSpec(), "/work/inbox/abc.ogg", "/work/out/abc.mp4")
	joined := strings.Join(args, " ")

	assert.Equal(t, "/work/out/abc.mp4", args[len(args)-1])
	assert.Contains(t, joined, "-y -loop 1 -i /work/assets/bg.jpg -i /work/inbox/abc.ogg")
	assert.Contains(t, joined, "-c:v libx264")
	assert.Contains(t, joined, "-tune stillimage")
	assert.Contains(t, joined, "-pix_fmt yuv420p")
	assert.Contains(t, joined, "-c:a aac -b:a 96k -ac 1")
	assert.Contains(t, joined, "-shortest")
	assert.Contains(t, joined, "-movflags +faststart")
	assert.Contains(t, joined, "-loglevel error")

	verbose := testSpec()
	verbose.Verbose = true
	assert.Contains(t, strings.Join(Build(verbose, "a", "b"), " "), "-loglevel info")
}

func TestNewSpec(t *testing.T) {
	tests := []struct {
		name    string
		bitrate int
		wantErr bool
	}{
		{"minimum", 64, false},
		{"default", 96, false},
		{"maximum", 128, false},
		{"too low", 50, true},
		{"too high", 200, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.AudioBitrate = tt.bitrate
			_, err := NewSpec(&cfg)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConvert_Success(t *testing.T) {
	fsys := newFixture(t)
	runner := &fakeRunner{fn: writeOutput(fsys, 2048)}
	e := NewEngine(fsys, runner)

	res := e.Convert(context.Background(), "/work/inbox/abc.ogg", "/work/out/abc.mp4", testSpec())

	require.True(t, res.Success, res.ErrorMessage)
	assert.NoError(t, res.Err)
	assert.Equal(t, "/work/out/abc.mp4", res.OutputPath)
	require.NotNil(t, res.ExitCode)
	assert.Equal(t, 0, *res.ExitCode)
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestConvert_InvalidInputsNeverRun(t *testing.T) {
	tests := []struct {
		name   string
		source string
		mutate func(*Spec)
		setup  func(afero.Fs)
	}{
		{"bitrate below range", "/work/inbox/abc.ogg", func(s *Spec) { s.Bitrate = 50 }, nil},
		{"bitrate above range", "/work/inbox/abc.ogg", func(s *Spec) { s.Bitrate = 200 }, nil},
		{"missing source", "/work/inbox/missing.ogg", nil, nil},
		{"empty source", "/work/inbox/empty.ogg", nil, func(fsys afero.Fs) {
			_ = afero.WriteFile(fsys, "/work/inbox/empty.ogg", nil, 0o644)
		}},
		{"missing background", "/work/inbox/abc.ogg", func(s *Spec) { s.BackgroundImage = "/nope.jpg" }, nil},
		{"zero timeout", "/work/inbox/abc.ogg", func(s *Spec) { s.Timeout = 0 }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := newFixture(t)
			if tt.setup != nil {
				tt.setup(fsys)
			}
			spec := testSpec()
			if tt.mutate != nil {
				tt.mutate(&spec)
			}
			runner := &fakeRunner{fn: writeOutput(fsys, 10)}

			res := NewEngine(fsys, runner).Convert(context.Background(), tt.source, "/work/out/abc.mp4", spec)

			assert.False(t, res.Success)
			assert.ErrorIs(t, res.Err, ErrInvalidInput)
			assert.Zero(t, runner.calls.Load(), "process must not be spawned")
		})
	}
}

func TestConvert_TimeoutRemovesPartialOutput(t *testing.T) {
	fsys := newFixture(t)
	runner := &fakeRunner{fn: func(ctx context.Context, args []string) (RunResult, error) {
		_ = afero.WriteFile(fsys, args[len(args)-1], []byte("partial"), 0o644)
		<-ctx.Done()
		return RunResult{ExitCode: -1}, ctx.Err()
	}}
	spec := testSpec()
	spec.Timeout = 20 * time.Millisecond

	res := NewEngine(fsys, runner).Convert(context.Background(), "/work/inbox/abc.ogg", "/work/out/abc.mp4", spec)

	assert.False(t, res.Success)
	assert.Equal(t, "timeout", res.ErrorMessage)
	assert.ErrorIs(t, res.Err, ErrTimeout)
	exists, _ := afero.Exists(fsys, "/work/out/abc.mp4")
	assert.False(t, exists, "partial output must be deleted")
}

func TestConvert_ShutdownRemovesPartialOutput(t *testing.T) {
	fsys := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	runner := &fakeRunner{fn: func(runCtx context.Context, args []string) (RunResult, error) {
		_ = afero.WriteFile(fsys, args[len(args)-1], []byte("partial"), 0o644)
		cancel()
		<-runCtx.Done()
		return RunResult{ExitCode: -1}, runCtx.Err()
	}}

	res := NewEngine(fsys, runner).Convert(ctx, "/work/inbox/abc.ogg", "/work/out/abc.mp4", testSpec())

	assert.ErrorIs(t, res.Err, ErrInterrupted)
	exists, _ := afero.Exists(fsys, "/work/out/abc.mp4")
	assert.False(t, exists)
}

func TestConvert_NonZeroExitKeepsStderrTail(t *testing.T) {
	fsys := newFixture(t)
	stderr := strings.Repeat("noise line\n", 1000) + "abc.ogg: Invalid data found when processing input\n"
	runner := &fakeRunner{fn: func(_ context.Context, args []string) (RunResult, error) {
		_ = afero.WriteFile(fsys, args[len(args)-1], []byte("junk"), 0o644)
		return RunResult{Stderr: stderr, ExitCode: 1}, nil
	}}

	res := NewEngine(fsys, runner).Convert(context.Background(), "/work/inbox/abc.ogg", "/work/out/abc.mp4", testSpec())

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrNonZeroExit)
	require.NotNil(t, res.ExitCode)
	assert.Equal(t, 1, *res.ExitCode)
	assert.LessOrEqual(t, len(res.ErrorMessage), stderrTailLimit)
	assert.True(t, strings.HasSuffix(res.ErrorMessage, "Invalid data found when processing input"))
	assert.Equal(t, "input is not decodable audio", Hint(res.ErrorMessage))
	exists, _ := afero.Exists(fsys, "/work/out/abc.mp4")
	assert.False(t, exists)
}

func TestConvert_EmptyOutputIsCorrupt(t *testing.T) {
	fsys := newFixture(t)
	runner := &fakeRunner{fn: writeOutput(fsys, 0)}

	res := NewEngine(fsys, runner).Convert(context.Background(), "/work/inbox/abc.ogg", "/work/out/abc.mp4", testSpec())

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrCorruptOutput)
	exists, _ := afero.Exists(fsys, "/work/out/abc.mp4")
	assert.False(t, exists)
}

func TestConvert_MissingOutputIsCorrupt(t *testing.T) {
	fsys := newFixture(t)
	runner := &fakeRunner{fn: func(context.Context, []string) (RunResult, error) { return RunResult{}, nil }}

	res := NewEngine(fsys, runner).Convert(context.Background(), "/work/inbox/abc.ogg", "/work/out/abc.mp4", testSpec())
	assert.ErrorIs(t, res.Err, ErrCorruptOutput)
}

func TestConvert_StartFailure(t *testing.T) {
	fsys := newFixture(t)
	runner := &fakeRunner{fn: func(context.Context, []string) (RunResult, error) {
		return RunResult{}, errors.New("exec: \"ffmpeg\": executable file not found in $PATH")
	}}

	res := NewEngine(fsys, runner).Convert(context.Background(), "/work/inbox/abc.ogg", "/work/out/abc.mp4", testSpec())
	assert.ErrorIs(t, res.Err, ErrNonZeroExit)
	assert.Nil(t, res.ExitCode)
	assert.Contains(t, res.ErrorMessage, "executable file not found")
}

func TestConvert_ProbeRejectsSilentInput(t *testing.T) {
	fsys := newFixture(t)
	runner := &fakeRunner{fn: writeOutput(fsys, 10)}
	e := NewEngine(fsys, runner, WithProber(fakeProber{result: &probe.Result{VideoStreams: 1}}))

	res := e.Convert(context.Background(), "/work/inbox/abc.ogg", "/work/out/abc.mp4", testSpec())
	assert.ErrorIs(t, res.Err, ErrInvalidInput)
	assert.Zero(t, runner.calls.Load())
}

func TestConvert_ProbeFailureIsNotFatal(t *testing.T) {
	fsys := newFixture(t)
	runner := &fakeRunner{fn: writeOutput(fsys, 10)}
	e := NewEngine(fsys, runner, WithProber(fakeProber{err: errors.New("ffprobe missing")}))

	res := e.Convert(context.Background(), "/work/inbox/abc.ogg", "/work/out/abc.mp4", testSpec())
	assert.True(t, res.Success)
}

func TestConvert_ProbeReportsAudioLength(t *testing.T) {
	fsys := newFixture(t)
	pr := &probe.Result{
		Format:       probe.FormatInfo{Duration: 4.5},
		AudioStreams: []probe.AudioStream{{Codec: "opus"}},
	}
	e := NewEngine(fsys, &fakeRunner{fn: writeOutput(fsys, 10)}, WithProber(fakeProber{result: pr}))

	res := e.Convert(context.Background(), "/work/inbox/abc.ogg", "/work/out/abc.mp4", testSpec())
	require.True(t, res.Success)
	assert.Equal(t, 4500*time.Millisecond, res.AudioLength)
}

func TestTail(t *testing.T) {
	assert.Equal(t, "short", tail("short", 10))
	assert.Equal(t, "line3", tail("line1\nline2\nline3", 8))
}

// TestConvert_RealFFmpeg encodes a generated tone over a generated image at
// every bitrate boundary. Skipped when ffmpeg is not installed.
func TestConvert_RealFFmpeg(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not on PATH")
	}
	dir := t.TempDir()
	bg := filepath.Join(dir, "bg.png")
	audio := filepath.Join(dir, "voice.ogg")

	ctx := context.Background()
	for _, gen := range [][]string{
		{"-y", "-f", "lavfi", "-i", "color=c=blue:s=320x240:d=1", "-frames:v", "1", bg},
		{"-y", "-f", "lavfi", "-i", "sine=frequency=440:duration=1", "-c:a", "libvorbis", audio},
	} {
		res, err := ExecRunner{}.Run(ctx, "ffmpeg", gen)
		if err != nil || res.ExitCode != 0 {
			t.Skipf("cannot generate fixtures: %v %s", err, res.Stderr)
		}
	}

	e := NewEngine(afero.NewOsFs(), ExecRunner{}, WithProber(probe.Prober{}))
	for _, kbps := range []int{64, 96, 128} {
		out := filepath.Join(dir, "out", "clip-"+strconv.Itoa(kbps)+".mp4")
		spec := Spec{BackgroundImage: bg, Bitrate: kbps, Timeout: time.Minute}

		res := e.Convert(ctx, audio, out, spec)
		require.True(t, res.Success, "bitrate %d: %s", kbps, res.ErrorMessage)
		fi, err := os.Stat(out)
		require.NoError(t, err)
		assert.Positive(t, fi.Size())
	}
}
