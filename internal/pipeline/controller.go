package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/backmassage/voicediary/internal/archive"
	"github.com/backmassage/voicediary/internal/config"
	"github.com/backmassage/voicediary/internal/ffmpeg"
	"github.com/backmassage/voicediary/internal/keylock"
	"github.com/backmassage/voicediary/internal/ledger"
	"github.com/backmassage/voicediary/internal/naming"
	"github.com/backmassage/voicediary/internal/storage"
	"github.com/backmassage/voicediary/internal/transcribe"
)

// Logger is the subset of logging.Logger the controller uses.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
	Debug(string, ...interface{})
}

// Converter turns an audio file into a video. [ffmpeg.Engine] implements it.
type Converter interface {
	Convert(ctx context.Context, sourcePath, outputPath string, spec ffmpeg.Spec) ffmpeg.Result
}

// Transcriber turns an audio file into text. [transcribe.Client] implements it.
type Transcriber interface {
	Transcribe(ctx context.Context, req transcribe.Request) (transcribe.Segment, error)
}

// Journal appends a segment to a daily document. [journal.Writer] implements it.
type Journal interface {
	Append(seg transcribe.Segment, path string) error
}

// Ledger remembers completed jobs. [ledger.Ledger] implements it.
type Ledger interface {
	Lookup(ctx context.Context, jobID string) (ledger.Entry, bool, error)
	Record(ctx context.Context, e ledger.Entry) error
}

// Deps are the collaborators of a Controller. Converter is required for
// video jobs and Transcriber plus Journal for transcription jobs; Ledger
// and Archive are optional.
type Deps struct {
	Allocator   *storage.Allocator
	Converter   Converter
	Transcriber Transcriber
	Journal     Journal
	Ledger      Ledger
	Archive     archive.Publisher
	Log         Logger

	// Retry overrides the policy derived from the configuration.
	Retry *transcribe.RetryPolicy
}

// Controller runs jobs end to end.
type Controller struct {
	deps      Deps
	spec      ffmpeg.Spec
	mode      config.Mode
	maxSize   int64
	retention config.RetentionPolicy
	language  string
	retry     transcribe.RetryPolicy
	inflight  keylock.Map // job ids
	documents keylock.Map // journal document paths
	now       func() time.Time
}

// NewController validates cfg and returns a Controller using deps.
func NewController(cfg *config.Config, deps Deps) (*Controller, error) {
	if deps.Allocator == nil {
		return nil, errors.New("pipeline: allocator is required")
	}
	spec, err := ffmpeg.NewSpec(cfg)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if deps.Log == nil {
		deps.Log = nopLogger{}
	}
	retry := transcribe.DefaultRetryPolicy()
	retry.Attempts = cfg.TranscriptionRetries
	retry.InitialDelay = cfg.RetryDelay
	if deps.Retry != nil {
		retry = *deps.Retry
	}
	return &Controller{
		deps:      deps,
		spec:      spec,
		mode:      cfg.Mode,
		maxSize:   cfg.MaxFileSize,
		retention: cfg.Retention,
		language:  cfg.WhisperLanguage,
		retry:     retry,
		now:       time.Now,
	}, nil
}

// Process runs job to completion and returns its Result. It never panics
// on job errors and never affects other jobs.
func (c *Controller) Process(ctx context.Context, job Job) Result {
	start := c.now()
	if job.ID == "" {
		job.ID = naming.NewJobID()
	}
	if job.Mode == "" {
		job.Mode = c.mode
	}
	if job.ReceivedAt.IsZero() {
		job.ReceivedAt = start
	}
	if job.OriginalFilename == "" {
		job.OriginalFilename = filepath.Base(job.SourcePath)
	}

	log := &jobLog{Logger: c.deps.Log, prefix: "[job " + job.ID + "] "}
	t := newTracker(log)

	// Same-id jobs are serialized from validation through retention, so a
	// cleanup never removes a source another job is still reading.
	unlock := c.inflight.Lock(job.ID)
	defer unlock()

	res := c.process(ctx, job, t, log)
	res.JobID = job.ID
	res.Mode = job.Mode
	res.Elapsed = time.Since(start)

	if res.Success {
		t.advance(StateNotifyingSuccess)
	} else {
		t.advance(StateNotifyingFailure)
		log.Error("%s: %s", res.ErrorKind, res.Detail)
	}
	c.retain(job, res.Success, log)
	t.advance(StateCleanedUp)
	res.State = t.state
	return res
}

func (c *Controller) process(ctx context.Context, job Job, t *tracker, log *jobLog) Result {
	if err := storage.ValidateJobID(job.ID); err != nil {
		return failed(classify(StageValidate, err), err.Error())
	}
	// A recorded job is answered even when its source was already cleaned up.
	if res, ok := c.lookup(ctx, job, log); ok {
		if n, err := c.deps.Allocator.FileSize(job.SourcePath); err == nil {
			res.InputBytes = n
		}
		return res
	}

	size, err := c.validate(job)
	if err != nil {
		return failed(classify(StageValidate, err), err.Error())
	}
	log.Info("%s %s (%s)", job.Mode, job.OriginalFilename, humanize.IBytes(uint64(size)))

	var res Result
	switch job.Mode {
	case config.ModeVideo:
		t.advance(StateConverting)
		res = c.convert(ctx, job, log)
	case config.ModeTranscription:
		t.advance(StateTranscribing)
		res = c.transcribe(ctx, job, log)
	default:
		err := fmt.Errorf("%w: unknown mode %q", ffmpeg.ErrInvalidInput, job.Mode)
		return failed(classify(StageValidate, err), err.Error())
	}
	res.InputBytes = size
	if !res.Success {
		return res
	}

	c.record(ctx, job, res, log)
	return res
}

// validate checks the size ceiling and the extension before any engine is
// involved, and returns the source size.
func (c *Controller) validate(job Job) (int64, error) {
	size, err := c.deps.Allocator.FileSize(job.SourcePath)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ffmpeg.ErrInvalidInput, err)
	}
	if size > c.maxSize {
		return size, fmt.Errorf("%w: voice message is %s, the limit is %s",
			ErrFileTooLarge, humanize.IBytes(uint64(size)), humanize.IBytes(uint64(c.maxSize)))
	}
	if _, err := storage.DetectExtension(c.deps.Allocator.Fs(), job.SourcePath, job.OriginalFilename); err != nil {
		return size, err
	}
	return size, nil
}

func (c *Controller) convert(ctx context.Context, job Job, log *jobLog) Result {
	if c.deps.Converter == nil {
		err := fmt.Errorf("%w: video", ErrModeUnavailable)
		return failed(classify(StageConvert, err), err.Error())
	}
	out, err := c.deps.Allocator.ResolveOutput(job.ID, config.ModeVideo, job.ReceivedAt)
	if err != nil {
		return failed(classify(StageConvert, err), err.Error())
	}

	r := c.deps.Converter.Convert(ctx, job.SourcePath, out, c.spec)
	if !r.Success {
		err := r.Err
		if err == nil {
			err = errors.New(r.ErrorMessage)
		}
		if hint := ffmpeg.Hint(r.ErrorMessage); hint != "" {
			log.Warn("ffmpeg: %s", hint)
		}
		c.removePartial(out, log)
		return failed(classify(StageConvert, err), r.ErrorMessage)
	}

	res := Result{Success: true, OutputPath: r.OutputPath}
	if n, err := c.deps.Allocator.FileSize(r.OutputPath); err == nil {
		res.OutputBytes = n
	}
	log.Success("video %s in %s", filepath.Base(r.OutputPath), r.Elapsed.Round(time.Millisecond))
	c.publish(ctx, job, res, log)
	return res
}

func (c *Controller) transcribe(ctx context.Context, job Job, log *jobLog) Result {
	if c.deps.Transcriber == nil || c.deps.Journal == nil {
		err := fmt.Errorf("%w: transcription", ErrModeUnavailable)
		return failed(classify(StageTranscribe, err), err.Error())
	}
	doc, err := c.deps.Allocator.ResolveOutput(job.ID, config.ModeTranscription, job.ReceivedAt)
	if err != nil {
		return failed(classify(StageTranscribe, err), err.Error())
	}

	req := transcribe.Request{
		AudioPath:      job.SourcePath,
		SourceFilename: job.OriginalFilename,
		Language:       c.language,
		CapturedAt:     job.ReceivedAt,
	}
	var seg transcribe.Segment
	err = transcribe.Retry(ctx, c.retry, func(ctx context.Context) error {
		var err error
		seg, err = c.deps.Transcriber.Transcribe(ctx, req)
		return err
	}, func(attempt int, err error, next time.Duration) {
		log.Warn("transcription attempt %d failed: %v; retrying in %s", attempt, err, next.Round(time.Millisecond))
	})
	if err != nil {
		return failed(classify(StageTranscribe, err), err.Error())
	}

	// The document stays locked until it is archived, so uploads of one
	// date land in append order.
	unlock := c.documents.Lock(doc)
	defer unlock()
	if err := c.deps.Journal.Append(seg, doc); err != nil {
		return failed(classify(StageJournal, err), err.Error())
	}

	res := Result{
		Success:      true,
		DocumentPath: doc,
		Date:         strings.TrimSuffix(filepath.Base(doc), filepath.Ext(doc)),
	}
	log.Success("journal %s (+%d chars)", filepath.Base(doc), len(seg.Text))
	c.publish(ctx, job, res, log)
	return res
}

// lookup answers a job from the ledger when its id already completed.
func (c *Controller) lookup(ctx context.Context, job Job, log *jobLog) (Result, bool) {
	if c.deps.Ledger == nil {
		return Result{}, false
	}
	e, ok, err := c.deps.Ledger.Lookup(ctx, job.ID)
	if err != nil {
		log.Warn("ledger lookup failed, processing anyway: %v", err)
		return Result{}, false
	}
	if !ok {
		return Result{}, false
	}
	log.Info("already processed at %s", e.CompletedAt.Format(time.RFC3339))
	res := Result{
		Success:      true,
		Duplicate:    true,
		OutputPath:   e.OutputPath,
		DocumentPath: e.DocumentPath,
	}
	if e.DocumentPath != "" {
		res.Date = strings.TrimSuffix(filepath.Base(e.DocumentPath), filepath.Ext(e.DocumentPath))
	}
	return res, true
}

func (c *Controller) record(ctx context.Context, job Job, res Result, log *jobLog) {
	if c.deps.Ledger == nil {
		return
	}
	err := c.deps.Ledger.Record(ctx, ledger.Entry{
		JobID:        job.ID,
		Mode:         string(job.Mode),
		OutputPath:   res.OutputPath,
		DocumentPath: res.DocumentPath,
		CompletedAt:  c.now(),
	})
	if err != nil {
		log.Warn("ledger record failed: %v", err)
	}
}

// publish copies the artifact to the archive. Failures are logged only.
func (c *Controller) publish(ctx context.Context, job Job, res Result, log *jobLog) {
	if c.deps.Archive == nil {
		return
	}
	path := res.Artifact()
	key := archive.ObjectKey(job.Mode, job.ID, path)
	if err := c.deps.Archive.Publish(ctx, key, path); err != nil {
		log.Warn("archive upload failed: %v", err)
		return
	}
	log.Debug("archived %s", key)
}

// retain applies the retention policy to the inbox file. Sources outside
// the inbox are never deleted.
func (c *Controller) retain(job Job, success bool, log *jobLog) {
	switch c.retention {
	case config.CleanupNever:
		return
	case config.CleanupOnSuccess:
		if !success {
			log.Debug("keeping %s for a retry", job.SourcePath)
			return
		}
	}
	err := c.deps.Allocator.Cleanup(job.SourcePath)
	switch {
	case errors.Is(err, storage.ErrOutsideInbox):
		log.Debug("keeping %s (outside the inbox)", job.SourcePath)
	case err != nil:
		log.Warn("cleanup failed: %v", err)
	}
}

// removePartial deletes a video left behind by a failed encode.
func (c *Controller) removePartial(path string, log *jobLog) {
	fsys := c.deps.Allocator.Fs()
	if ok, _ := afero.Exists(fsys, path); !ok {
		return
	}
	if err := fsys.Remove(path); err != nil {
		log.Warn("could not remove partial output %s: %v", path, err)
	}
}

func failed(err *Error, detail string) Result {
	return Result{ErrorKind: err.Kind, Detail: detail, Err: err}
}

// jobLog prefixes every line with the job id.
type jobLog struct {
	Logger
	prefix string
}

func (l *jobLog) Info(f string, a ...interface{})    { l.Logger.Info(l.prefix+f, a...) }
func (l *jobLog) Success(f string, a ...interface{}) { l.Logger.Success(l.prefix+f, a...) }
func (l *jobLog) Warn(f string, a ...interface{})    { l.Logger.Warn(l.prefix+f, a...) }
func (l *jobLog) Error(f string, a ...interface{})   { l.Logger.Error(l.prefix+f, a...) }
func (l *jobLog) Debug(f string, a ...interface{})   { l.Logger.Debug(l.prefix+f, a...) }

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})    {}
func (nopLogger) Success(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})    {}
func (nopLogger) Error(string, ...interface{})   {}
func (nopLogger) Debug(string, ...interface{})   {}
