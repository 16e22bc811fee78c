// Package pipeline owns a voice message from the moment it sits in the
// inbox until a Result is handed back: size and format checks, dispatch to
// the encoder or to transcription plus the journal, retries of transient
// transcription failures, retention cleanup, and the optional ledger and
// archive steps.
//
// A Controller is safe for concurrent use. Jobs with different ids run in
// parallel; a second job with an id already in flight waits for the first.
package pipeline
