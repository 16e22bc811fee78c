package pipeline

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/backmassage/voicediary/internal/config"
	"github.com/backmassage/voicediary/internal/naming"
)

// Job is one downloaded audio attachment handed to the controller.
type Job struct {
	ID               string
	SourcePath       string
	Mode             config.Mode // empty means the configured default
	ReceivedAt       time.Time   // zero means now
	OriginalFilename string      // shown in journal headings; defaults to the source base name
}

// NewFileJob builds a Job for a local file. The id is derived from the
// file's path, so the same file always gets the same id and two files
// never share one. The modification time stands in for the receive time.
func NewFileJob(fsys afero.Fs, path string, mode config.Mode) (Job, error) {
	fi, err := fsys.Stat(path)
	if err != nil {
		return Job{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return Job{
		ID:               naming.JobID(path),
		SourcePath:       path,
		Mode:             mode,
		ReceivedAt:       fi.ModTime(),
		OriginalFilename: filepath.Base(path),
	}, nil
}

// State is a step in a job's lifecycle.
type State string

const (
	StateReceived         State = "RECEIVED"
	StateConverting       State = "CONVERTING"
	StateTranscribing     State = "TRANSCRIBING"
	StateNotifyingSuccess State = "NOTIFYING_SUCCESS"
	StateNotifyingFailure State = "NOTIFYING_FAILURE"
	StateCleanedUp        State = "CLEANED_UP"
)

// transitions lists the legal next states. Downloading happens before the
// controller sees a job, so RECEIVED is the first state tracked here.
var transitions = map[State][]State{
	StateReceived:         {StateConverting, StateTranscribing, StateNotifyingSuccess, StateNotifyingFailure},
	StateConverting:       {StateNotifyingSuccess, StateNotifyingFailure},
	StateTranscribing:     {StateNotifyingSuccess, StateNotifyingFailure},
	StateNotifyingSuccess: {StateCleanedUp},
	StateNotifyingFailure: {StateCleanedUp},
}

func isValidTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// tracker follows one job through its states and logs each move.
type tracker struct {
	state State
	log   *jobLog
}

func newTracker(log *jobLog) *tracker {
	return &tracker{state: StateReceived, log: log}
}

func (t *tracker) advance(to State) {
	if !isValidTransition(t.state, to) {
		t.log.Warn("unexpected state change %s -> %s", t.state, to)
	}
	t.log.Debug("%s -> %s", t.state, to)
	t.state = to
}
