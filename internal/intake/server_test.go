package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/voicediary/internal/config"
	"github.com/backmassage/voicediary/internal/logging"
	"github.com/backmassage/voicediary/internal/pipeline"
	"github.com/backmassage/voicediary/internal/storage"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeProcessor struct {
	mu   sync.Mutex
	jobs []pipeline.Job
	res  pipeline.Result
}

func (p *fakeProcessor) Process(_ context.Context, job pipeline.Job) pipeline.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, job)
	res := p.res
	res.JobID = job.ID
	res.Mode = job.Mode
	return res
}

func newTestServer(t *testing.T, res pipeline.Result) (*Server, *fakeProcessor, afero.Fs) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.MaxFileSize = 64
	cfg.WhisperURL = "http://whisper"
	fsys := afero.NewMemMapFs()
	alloc := storage.NewAllocator(fsys, &cfg)
	require.NoError(t, alloc.EnsureDirectories())

	proc := &fakeProcessor{res: res}
	s := NewServer(proc, alloc, &cfg, logging.Nop())
	s.now = func() time.Time { return time.Date(2025, 10, 6, 9, 15, 0, 0, time.UTC) }
	return s, proc, fsys
}

// upload builds a multipart request. An empty filename omits the file part.
func upload(t *testing.T, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) (*httptest.ResponseRecorder, map[string]interface{}) {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	var body map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t, pipeline.Result{})
	rec, body := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "video", body["mode"])
}

func TestCreateJob_Success(t *testing.T) {
	s, proc, fsys := newTestServer(t, pipeline.Result{Success: true, OutputPath: "/work/out/msg-42.mp4"})

	rec, body := serve(s, upload(t, "Voice Memo.OGG", []byte("audio"), map[string]string{"id": "msg 42"}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "msg-42", body["id"])
	assert.Equal(t, "/work/out/msg-42.mp4", body["outputPath"])
	assert.Equal(t, "Video ready: msg-42.mp4", body["summary"])

	require.Len(t, proc.jobs, 1)
	job := proc.jobs[0]
	assert.Equal(t, "/work/inbox/msg-42.ogg", job.SourcePath)
	assert.Equal(t, config.ModeVideo, job.Mode)
	assert.Equal(t, "Voice Memo.OGG", job.OriginalFilename)
	assert.Equal(t, 2025, job.ReceivedAt.Year())

	stored, err := afero.ReadFile(fsys, job.SourcePath)
	require.NoError(t, err)
	assert.Equal(t, "audio", string(stored))
}

func TestCreateJob_GeneratesIDAndHonorsMode(t *testing.T) {
	s, proc, _ := newTestServer(t, pipeline.Result{Success: true, DocumentPath: "/work/transcripts/2025-10-06.md", Date: "2025-10-06"})

	rec, body := serve(s, upload(t, "memo.m4a", []byte("audio"), map[string]string{"mode": "transcription"}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Added to journal 2025-10-06", body["summary"])
	require.Len(t, proc.jobs, 1)
	assert.Equal(t, config.ModeTranscription, proc.jobs[0].Mode)
	assert.Len(t, proc.jobs[0].ID, 36, "uuid")
}

func TestCreateJob_SniffsExtensionlessUpload(t *testing.T) {
	s, proc, _ := newTestServer(t, pipeline.Result{Success: true})
	wav := append([]byte("RIFF\x24\x00\x00\x00WAVEfmt "), make([]byte, 32)...)

	rec, _ := serve(s, upload(t, "voice", wav, map[string]string{"id": "abc"}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "/work/inbox/abc.wav", proc.jobs[0].SourcePath)
}

func TestCreateJob_BadRequests(t *testing.T) {
	tests := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		detail string
	}{
		{"no file", func(t *testing.T) *http.Request { return upload(t, "", nil, nil) }, "no file"},
		{"bad mode", func(t *testing.T) *http.Request {
			return upload(t, "a.ogg", []byte("x"), map[string]string{"mode": "gif"})
		}, "invalid mode"},
		{"unusable id", func(t *testing.T) *http.Request {
			return upload(t, "a.ogg", []byte("x"), map[string]string{"id": "///"})
		}, "unusable job id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, proc, _ := newTestServer(t, pipeline.Result{Success: true})
			rec, body := serve(s, tt.req(t))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, body["detail"], tt.detail)
			assert.Empty(t, proc.jobs)
		})
	}
}

func TestCreateJob_TranscriptionWithoutEndpoint(t *testing.T) {
	s, proc, fsys := newTestServer(t, pipeline.Result{Success: true})
	s.transcription = false

	rec, body := serve(s, upload(t, "memo.ogg", []byte("audio"), map[string]string{"id": "t1", "mode": "transcription"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["detail"], "transcription is not configured")
	assert.Empty(t, proc.jobs)
	exists, err := afero.Exists(fsys, "/work/inbox/t1.ogg")
	require.NoError(t, err)
	assert.False(t, exists)
}

// readingProcessor reads the source twice with a pause in between, the way
// an encode reads its input over time.
type readingProcessor struct {
	fs      afero.Fs
	mu      sync.Mutex
	seen    []string
	changed bool
}

func (p *readingProcessor) Process(_ context.Context, job pipeline.Job) pipeline.Result {
	before, _ := afero.ReadFile(p.fs, job.SourcePath)
	time.Sleep(5 * time.Millisecond)
	after, _ := afero.ReadFile(p.fs, job.SourcePath)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, string(before))
	if !bytes.Equal(before, after) {
		p.changed = true
	}
	return pipeline.Result{JobID: job.ID, Mode: job.Mode, Success: true, OutputPath: "/work/out/" + job.ID + ".mp4"}
}

func TestCreateJob_RedeliveredIDWaitsForRunningJob(t *testing.T) {
	s, _, fsys := newTestServer(t, pipeline.Result{})
	proc := &readingProcessor{fs: fsys}
	s.proc = proc

	reqs := []*http.Request{
		upload(t, "memo.ogg", []byte("first"), map[string]string{"id": "same"}),
		upload(t, "memo.ogg", []byte("second"), map[string]string{"id": "same"}),
	}
	var wg sync.WaitGroup
	for _, req := range reqs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, _ := serve(s, req)
			assert.Equal(t, http.StatusOK, rec.Code)
		}()
	}
	wg.Wait()

	assert.False(t, proc.changed, "source rewritten while a job was reading it")
	assert.ElementsMatch(t, []string{"first", "second"}, proc.seen)
}

func TestCreateJob_RejectsUnsupportedExtension(t *testing.T) {
	s, proc, fsys := newTestServer(t, pipeline.Result{Success: true})

	rec, body := serve(s, upload(t, "clip.mov", []byte("video"), map[string]string{"id": "abc"}))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, string(pipeline.KindInvalidExtension), body["errorKind"])
	assert.Equal(t, "Input problem: that audio format is not supported", body["summary"])
	assert.Empty(t, proc.jobs)
	entries, err := afero.ReadDir(fsys, "/work/inbox")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCreateJob_OversizedUploadIsCut(t *testing.T) {
	s, proc, fsys := newTestServer(t, pipeline.Result{ErrorKind: pipeline.KindFileTooLarge})

	rec, _ := serve(s, upload(t, "long.ogg", make([]byte, 1000), map[string]string{"id": "long"}))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Len(t, proc.jobs, 1)
	fi, err := fsys.Stat(proc.jobs[0].SourcePath)
	require.NoError(t, err)
	assert.Equal(t, int64(65), fi.Size(), "one byte over the limit is enough to reject")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		res  pipeline.Result
		want int
	}{
		{pipeline.Result{Success: true}, http.StatusOK},
		{pipeline.Result{ErrorKind: pipeline.KindFileTooLarge}, http.StatusUnprocessableEntity},
		{pipeline.Result{ErrorKind: pipeline.KindEmptyTranscript}, http.StatusUnprocessableEntity},
		{pipeline.Result{ErrorKind: pipeline.KindProcessTimeout}, http.StatusInternalServerError},
		{pipeline.Result{ErrorKind: pipeline.KindDocumentWriteFailed}, http.StatusInternalServerError},
		{pipeline.Result{ErrorKind: pipeline.KindTranscriptionServiceUnavailable}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.res), tt.res.ErrorKind)
	}
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	s, _, _ := newTestServer(t, pipeline.Result{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

