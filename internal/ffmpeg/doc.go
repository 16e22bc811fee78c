// Package ffmpeg turns a voice message into a static-image MP4: it builds the
// encode command, runs it under a hard timeout and validates the output.
//
// Files:
//   - builder.go: [Spec] validation and the ffmpeg argument list.
//   - runner.go: [Runner] abstraction over child processes (go-execute).
//   - engine.go: [Engine.Convert], timeout, partial-output cleanup and
//     output validation.
//   - errors.go: sentinel errors and stderr classification.
package ffmpeg
