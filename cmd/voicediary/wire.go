package main

import (
	"context"

	"github.com/backmassage/voicediary/internal/archive"
	"github.com/backmassage/voicediary/internal/check"
	"github.com/backmassage/voicediary/internal/ffmpeg"
	"github.com/backmassage/voicediary/internal/journal"
	"github.com/backmassage/voicediary/internal/ledger"
	"github.com/backmassage/voicediary/internal/pipeline"
	"github.com/backmassage/voicediary/internal/probe"
	"github.com/backmassage/voicediary/internal/storage"
	"github.com/backmassage/voicediary/internal/transcribe"
)

// closer releases one collaborator on shutdown.
type closer struct {
	name  string
	close func() error
}

// services are the long-lived collaborators built once per command.
type services struct {
	allocator  *storage.Allocator
	controller *pipeline.Controller
	closers    []closer
}

// close releases collaborators in reverse order. Failures are reported and
// do not stop the remaining closers.
func (s *services) close(log Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		c := s.closers[i]
		if err := c.close(); err != nil {
			log.Warn("Closing %s: %v", c.name, err)
		}
	}
}

// Logger is the subset of logging.Logger used while wiring.
type Logger interface {
	Warn(string, ...interface{})
}

// wire prepares the directories, verifies the encoder in video mode and
// builds the controller. Optional collaborators that fail to start are
// reported and left out.
func (a *app) wire(ctx context.Context) (*services, error) {
	cfg := &a.cfg
	svc := &services{allocator: storage.NewAllocator(a.fs, cfg)}

	if err := svc.allocator.EnsureDirectories(); err != nil {
		a.log.Error("Storage unavailable: %v", err)
		return nil, exitCode(1)
	}
	if err := check.New(a.fs).CheckDeps(ctx, cfg); err != nil {
		a.log.Error("%v", err)
		a.log.Error("Run 'voicediary check' for details")
		return nil, exitCode(1)
	}

	deps := pipeline.Deps{
		Allocator: svc.allocator,
		Journal:   journal.NewWriter(a.fs, cfg.JournalTags),
		Log:       a.log,
	}

	opts := []ffmpeg.Option{ffmpeg.WithLogger(a.log)}
	if cfg.ProbeInputs {
		opts = append(opts, ffmpeg.WithProber(probe.Prober{}))
	}
	deps.Converter = ffmpeg.NewEngine(a.fs, ffmpeg.ExecRunner{}, opts...)

	if cfg.WhisperURL != "" {
		client := transcribe.NewClient(a.fs, nil, transcribe.Options{
			BaseURL: cfg.WhisperURL,
			Model:   cfg.WhisperModel,
			Timeout: cfg.TranscriptionTimeout,
		})
		a.log.Debug("Transcription endpoint %s", client.Endpoint())
		deps.Transcriber = client
	}

	if cfg.LedgerPath != "" {
		l, err := ledger.Open(ctx, cfg.LedgerPath)
		if err != nil {
			a.log.Error("Ledger unavailable: %v", err)
			return nil, exitCode(1)
		}
		svc.closers = append(svc.closers, closer{name: "ledger", close: l.Close})
		deps.Ledger = l
	}

	if cfg.Archive.Enabled() {
		m, err := archive.NewMinIO(ctx, cfg.Archive, a.fs)
		if err != nil {
			a.log.Warn("Archive disabled: %v", err)
		} else {
			a.log.Info("Archiving to bucket %s at %s", m.Bucket(), cfg.Archive.Endpoint)
			deps.Archive = m
		}
	}

	ctrl, err := pipeline.NewController(cfg, deps)
	if err != nil {
		svc.close(a.log)
		return nil, err
	}
	svc.controller = ctrl
	return svc, nil
}
