package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// Segment is one transcribed voice message, consumed immediately by the
// journal writer.
type Segment struct {
	Text           string
	SourceFilename string
	CapturedAt     time.Time
}

// Request describes one transcription call.
type Request struct {
	AudioPath      string
	SourceFilename string    // shown in the journal heading; defaults to the audio file name
	Language       string    // optional hint, passed through untouched
	CapturedAt     time.Time // copied into the Segment
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Model   string
	Timeout time.Duration // per request; zero means no extra deadline
}

// Client calls the transcription endpoint. It is safe for concurrent use.
type Client struct {
	fs       afero.Fs
	http     *http.Client
	endpoint string
	model    string
	timeout  time.Duration
}

// NewClient returns a Client reading audio from fsys. A nil httpClient uses
// a default client without its own timeout; per-request deadlines come
// from Options.Timeout.
func NewClient(fsys afero.Fs, httpClient *http.Client, opts Options) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		fs:       fsys,
		http:     httpClient,
		endpoint: strings.TrimRight(opts.BaseURL, "/") + "/v1/audio/transcriptions",
		model:    opts.Model,
		timeout:  opts.Timeout,
	}
}

// Endpoint returns the full transcription URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Transcribe uploads req.AudioPath and returns the trimmed transcript.
func (c *Client) Transcribe(ctx context.Context, req Request) (Segment, error) {
	name := req.SourceFilename
	if name == "" {
		name = filepath.Base(req.AudioPath)
	}

	body, contentType, err := c.encode(req, name)
	if err != nil {
		return Segment{}, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return Segment{}, fmt.Errorf("%w: %v", ErrRequestRejected, err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Segment{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Segment{}, fmt.Errorf("%w: read response: %v", ErrServiceUnavailable, err)
	}
	if err := classifyStatus(resp.StatusCode, raw); err != nil {
		return Segment{}, err
	}

	text, err := extractText(resp.Header.Get("Content-Type"), raw)
	if err != nil {
		return Segment{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Segment{}, ErrEmptyTranscript
	}
	return Segment{Text: text, SourceFilename: name, CapturedAt: req.CapturedAt}, nil
}

// encode builds the multipart body: file, model, optional language.
func (c *Client) encode(req Request, name string) (io.Reader, string, error) {
	f, err := c.fs.Open(req.AudioPath)
	if err != nil {
		return nil, "", fmt.Errorf("%w: open audio: %v", ErrRequestRejected, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("%w: read audio: %v", ErrRequestRejected, err)
	}
	fields := [][2]string{{"model", c.model}, {"response_format", "json"}}
	if req.Language != "" {
		fields = append(fields, [2]string{"language", req.Language})
	}
	for _, kv := range fields {
		if kv[1] == "" {
			continue
		}
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

// classifyStatus maps non-2xx responses to sentinel errors.
func classifyStatus(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	detail := strings.TrimSpace(string(body))
	if len(detail) > 200 {
		detail = detail[:200]
	}
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", ErrServiceUnavailable, code, detail)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", ErrRequestRejected, code, detail)
	}
}

// extractText pulls the transcript out of a JSON {"text": ...} body, or
// takes a text/plain body verbatim.
func extractText(contentType string, body []byte) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "text/plain" {
		return string(body), nil
	}
	var payload struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("%w: malformed response: %v", ErrRequestRejected, err)
	}
	if payload.Text == nil {
		return "", fmt.Errorf("%w: response has no text field", ErrRequestRejected)
	}
	return *payload.Text, nil
}
