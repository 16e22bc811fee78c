package transcribe

import "errors"

// Sentinel errors returned by [Client.Transcribe].
var (
	ErrServiceUnavailable = errors.New("transcription service unavailable")
	ErrRequestRejected    = errors.New("transcription request rejected")
	ErrEmptyTranscript    = errors.New("transcript is empty")
)

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}
