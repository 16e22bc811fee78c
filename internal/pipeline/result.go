package pipeline

import (
	"time"

	"github.com/backmassage/voicediary/internal/config"
)

// Result is the outcome of one job, shaped for the notifier. OutputPath is
// set for videos; DocumentPath and Date for journal entries.
type Result struct {
	JobID        string      `json:"id"`
	Mode         config.Mode `json:"mode"`
	Success      bool        `json:"success"`
	ErrorKind    ErrorKind   `json:"errorKind,omitempty"`
	Detail       string      `json:"detail,omitempty"`
	OutputPath   string      `json:"outputPath,omitempty"`
	DocumentPath string      `json:"documentPath,omitempty"`
	Date         string      `json:"date,omitempty"`
	Duplicate    bool        `json:"duplicate,omitempty"`

	Elapsed     time.Duration `json:"-"`
	InputBytes  int64         `json:"-"`
	OutputBytes int64         `json:"-"`
	State       State         `json:"-"` // final state reached
	Err         error         `json:"-"` // *Error on failure
}

// Category returns the failure group, or CategoryNone on success.
func (r Result) Category() Category {
	if r.Success {
		return CategoryNone
	}
	return r.ErrorKind.Category()
}

// Artifact returns the produced file: the video or the journal document.
func (r Result) Artifact() string {
	if r.OutputPath != "" {
		return r.OutputPath
	}
	return r.DocumentPath
}
