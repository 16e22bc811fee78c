// Package transcribe sends voice messages to an OpenAI-compatible
// speech-to-text endpoint (POST {base}/v1/audio/transcriptions) and
// normalizes the returned text.
//
// Failures are split by whether a retry can help: [ErrServiceUnavailable]
// (network errors, 408, 429, 5xx) is retryable through [Retry];
// [ErrRequestRejected] (other 4xx, malformed responses) and
// [ErrEmptyTranscript] (silence) are not.
package transcribe
