package probe

import "time"

// FormatInfo holds container-level metadata from ffprobe's format section.
type FormatInfo struct {
	Filename   string
	FormatName string
	Duration   float64 // seconds
	Size       int64
	BitRate    int64
	Tags       map[string]string
}

// AudioStream holds the parsed properties of a single audio stream.
type AudioStream struct {
	Index         int
	Codec         string
	Channels      int
	ChannelLayout string
	SampleRate    int
	BitRate       int64
	Duration      float64
}

// Result is the parsed output of one ffprobe call.
type Result struct {
	Format       FormatInfo
	AudioStreams []AudioStream
	VideoStreams int // includes cover art
}

// HasAudio reports whether at least one audio stream was found.
func (r *Result) HasAudio() bool { return len(r.AudioStreams) > 0 }

// PrimaryAudio returns the first audio stream, or nil.
func (r *Result) PrimaryAudio() *AudioStream {
	if len(r.AudioStreams) == 0 {
		return nil
	}
	return &r.AudioStreams[0]
}

// Duration returns the container duration, falling back to the first audio
// stream's duration. Zero when neither is reported.
func (r *Result) Duration() time.Duration {
	secs := r.Format.Duration
	if secs <= 0 {
		if a := r.PrimaryAudio(); a != nil {
			secs = a.Duration
		}
	}
	return time.Duration(secs * float64(time.Second))
}
