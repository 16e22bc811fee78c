// Package intake is a small HTTP listener that accepts voice-message
// uploads, stores them in the inbox and runs them through the pipeline.
// It stands in for a chat bot's attachment handler.
package intake

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/backmassage/voicediary/internal/config"
	"github.com/backmassage/voicediary/internal/display"
	"github.com/backmassage/voicediary/internal/keylock"
	"github.com/backmassage/voicediary/internal/naming"
	"github.com/backmassage/voicediary/internal/pipeline"
	"github.com/backmassage/voicediary/internal/storage"
)

const shutdownGrace = 10 * time.Second

// Processor runs one job. [pipeline.Controller] implements it.
type Processor interface {
	Process(ctx context.Context, job pipeline.Job) pipeline.Result
}

// Logger is the subset of logging.Logger the server uses.
type Logger interface {
	Info(string, ...interface{})
	Warn(string, ...interface{})
	Debug(string, ...interface{})
}

// Response is the JSON body of POST /v1/jobs.
type Response struct {
	pipeline.Result
	Summary string `json:"summary"`
}

// Server serves the intake API.
type Server struct {
	proc     Processor
	alloc    *storage.Allocator
	mode     config.Mode
	maxSize  int64
	log      Logger
	router   *gin.Engine
	base     context.Context
	now      func() time.Time
	inflight keylock.Map

	// transcription reports whether a speech-to-text endpoint is configured.
	transcription bool
}

// NewServer builds the router. Jobs run under a background context until
// [Server.ListenAndServe] supplies one tied to the process lifetime, so a
// client hanging up never cancels its own job.
func NewServer(proc Processor, alloc *storage.Allocator, cfg *config.Config, log Logger) *Server {
	s := &Server{
		proc:          proc,
		alloc:         alloc,
		mode:          cfg.Mode,
		maxSize:       cfg.MaxFileSize,
		log:           log,
		base:          context.Background(),
		now:           time.Now,
		transcription: cfg.WhisperURL != "",
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog)
	r.GET("/healthz", s.health)
	r.POST("/v1/jobs", s.createJob)
	s.router = r
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is done, then drains in-flight
// requests for up to ten seconds.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.base = ctx
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("Listening on %s", addr)

	select {
	case err := <-errc:
		return fmt.Errorf("intake listener: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("intake shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) accessLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debug("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": s.mode})
}

// createJob accepts multipart fields file (required), id and mode.
func (s *Server) createJob(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "detail": "no file uploaded"})
		return
	}

	id := naming.NewJobID()
	if raw := c.PostForm("id"); raw != "" {
		if id = naming.SanitizeID(raw); id == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "detail": fmt.Sprintf("unusable job id %q", raw)})
			return
		}
	}

	mode := s.mode
	if raw := c.PostForm("mode"); raw != "" {
		if mode, err = config.ParseMode(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "detail": err.Error()})
			return
		}
	}
	if mode == config.ModeTranscription && !s.transcription {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "detail": "transcription is not configured on this server"})
		return
	}

	// A re-delivered id waits for the earlier job, so its inbox file is
	// never overwritten while that job still reads it.
	unlock := s.inflight.Lock(id)
	defer unlock()

	receivedAt := s.now()
	path, err := s.store(id, fh)
	if err != nil {
		kind := pipeline.KindDirectoryUnavailable
		if errors.Is(err, storage.ErrInvalidExtension) {
			kind = pipeline.KindInvalidExtension
		}
		s.log.Warn("[job %s] upload %s rejected: %v", id, fh.Filename, err)
		s.respond(c, pipeline.Result{JobID: id, Mode: mode, ErrorKind: kind, Detail: err.Error()})
		return
	}

	res := s.proc.Process(s.base, pipeline.Job{
		ID:               id,
		SourcePath:       path,
		Mode:             mode,
		ReceivedAt:       receivedAt,
		OriginalFilename: filepath.Base(fh.Filename),
	})
	s.respond(c, res)
}

// store writes the upload to the inbox under an allow-listed extension.
// Uploads larger than the ceiling are cut at one byte over it; the
// controller turns that into FileTooLarge.
func (s *Server) store(id string, fh *multipart.FileHeader) (string, error) {
	ext := filepath.Ext(fh.Filename)
	if ext == "" {
		f, err := fh.Open()
		if err != nil {
			return "", fmt.Errorf("%w: open upload: %v", storage.ErrDirectoryUnavailable, err)
		}
		ext, err = storage.SniffExtension(f)
		f.Close()
		if err != nil {
			return "", err
		}
	}
	if _, err := storage.NormalizeExtension(ext); err != nil {
		return "", err
	}

	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("%w: open upload: %v", storage.ErrDirectoryUnavailable, err)
	}
	defer f.Close()

	path, _, err := s.alloc.WriteInbox(id, ext, f, s.maxSize)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidExtension) || errors.Is(err, storage.ErrDirectoryUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", storage.ErrDirectoryUnavailable, err)
	}
	return path, nil
}

func (s *Server) respond(c *gin.Context, res pipeline.Result) {
	c.JSON(StatusFor(res), Response{Result: res, Summary: display.Summary(res)})
}

// StatusFor maps a result to its HTTP status: 200 on success, 422 for
// input problems, 503 when the transcription service is down and 500
// otherwise.
func StatusFor(res pipeline.Result) int {
	switch res.Category() {
	case pipeline.CategoryNone:
		return http.StatusOK
	case pipeline.CategoryInput:
		return http.StatusUnprocessableEntity
	case pipeline.CategoryUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
