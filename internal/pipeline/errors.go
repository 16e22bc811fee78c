package pipeline

import (
	"errors"
	"fmt"

	"github.com/backmassage/voicediary/internal/ffmpeg"
	"github.com/backmassage/voicediary/internal/journal"
	"github.com/backmassage/voicediary/internal/storage"
	"github.com/backmassage/voicediary/internal/transcribe"
)

var (
	// ErrFileTooLarge is returned when a source exceeds the configured ceiling.
	ErrFileTooLarge = errors.New("file exceeds the size limit")
	// ErrModeUnavailable is returned when a job asks for a mode whose
	// engine is not configured. Retrying cannot help.
	ErrModeUnavailable = errors.New("mode is not configured")
)

// ErrorKind names a failure in the form the notifier renders.
type ErrorKind string

const (
	KindInvalidConversionInput          ErrorKind = "invalid_conversion_input"
	KindCorruptOutput                   ErrorKind = "corrupt_output"
	KindProcessTimeout                  ErrorKind = "process_timeout"
	KindProcessNonZeroExit              ErrorKind = "process_non_zero_exit"
	KindTranscriptionServiceUnavailable ErrorKind = "transcription_service_unavailable"
	KindTranscriptionRequestRejected    ErrorKind = "transcription_request_rejected"
	KindEmptyTranscript                 ErrorKind = "empty_transcript"
	KindFileTooLarge                    ErrorKind = "file_too_large"
	KindInvalidExtension                ErrorKind = "invalid_extension"
	KindDirectoryUnavailable            ErrorKind = "directory_unavailable"
	KindDocumentWriteFailed             ErrorKind = "document_write_failed"
)

// Category groups error kinds for the one-line user message.
type Category int

const (
	CategoryNone Category = iota
	CategoryInput
	CategoryProcessing
	CategoryUnavailable
)

func (c Category) String() string {
	switch c {
	case CategoryInput:
		return "input problem"
	case CategoryProcessing:
		return "processing problem"
	case CategoryUnavailable:
		return "service unavailable"
	default:
		return "none"
	}
}

// Category returns the group k belongs to.
func (k ErrorKind) Category() Category {
	switch k {
	case "":
		return CategoryNone
	case KindFileTooLarge, KindInvalidExtension, KindInvalidConversionInput,
		KindTranscriptionRequestRejected, KindEmptyTranscript:
		return CategoryInput
	case KindTranscriptionServiceUnavailable:
		return CategoryUnavailable
	default:
		return CategoryProcessing
	}
}

// Retryable reports whether resubmitting the same input may succeed.
func (k ErrorKind) Retryable() bool {
	return k == KindTranscriptionServiceUnavailable
}

// Stage names the step a job failed in.
type Stage string

const (
	StageValidate   Stage = "validate"
	StageConvert    Stage = "convert"
	StageTranscribe Stage = "transcribe"
	StageJournal    Stage = "journal"
)

// Error is a classified job failure.
type Error struct {
	Kind  ErrorKind
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// sentinelKinds is checked in order; the first match wins. Empty and
// rejected transcripts come before unavailable so a joined retry error
// keeps its terminal kind.
var sentinelKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrFileTooLarge, KindFileTooLarge},
	{ErrModeUnavailable, KindInvalidConversionInput},
	{storage.ErrInvalidExtension, KindInvalidExtension},
	{storage.ErrInvalidJobID, KindInvalidConversionInput},
	{storage.ErrDirectoryUnavailable, KindDirectoryUnavailable},
	{ffmpeg.ErrInvalidInput, KindInvalidConversionInput},
	{ffmpeg.ErrCorruptOutput, KindCorruptOutput},
	{ffmpeg.ErrTimeout, KindProcessTimeout},
	{ffmpeg.ErrInterrupted, KindProcessTimeout},
	{ffmpeg.ErrNonZeroExit, KindProcessNonZeroExit},
	{transcribe.ErrEmptyTranscript, KindEmptyTranscript},
	{transcribe.ErrRequestRejected, KindTranscriptionRequestRejected},
	{transcribe.ErrServiceUnavailable, KindTranscriptionServiceUnavailable},
	{journal.ErrDocumentWrite, KindDocumentWriteFailed},
}

// stageDefaults is used when err carries no known sentinel.
var stageDefaults = map[Stage]ErrorKind{
	StageValidate:   KindInvalidConversionInput,
	StageConvert:    KindProcessNonZeroExit,
	StageTranscribe: KindTranscriptionServiceUnavailable,
	StageJournal:    KindDocumentWriteFailed,
}

// classify wraps err as an *Error. An err that is already an *Error is
// returned unchanged.
func classify(stage Stage, err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	for _, s := range sentinelKinds {
		if errors.Is(err, s.err) {
			return &Error{Kind: s.kind, Stage: stage, Err: err}
		}
	}
	return &Error{Kind: stageDefaults[stage], Stage: stage, Err: err}
}
