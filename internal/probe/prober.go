package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	execute "github.com/alexellis/go-execute/v2"
)

// Prober runs ffprobe. The zero value uses "ffprobe" from PATH.
type Prober struct {
	Binary string
}

// Probe runs a single ffprobe JSON call against path and returns the
// parsed result.
func (p Prober) Probe(ctx context.Context, path string) (*Result, error) {
	bin := p.Binary
	if bin == "" {
		bin = "ffprobe"
	}
	task := execute.ExecTask{
		Command: bin,
		Args: []string{
			"-v", "quiet",
			"-print_format", "json",
			"-show_format", "-show_streams",
			path,
		},
	}
	res, err := task.Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("ffprobe %q: %w", path, err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("ffprobe %q: exit status %d", path, res.ExitCode)
	}
	return ParseJSON([]byte(res.Stdout))
}

// ParseJSON converts raw ffprobe JSON output into a Result.
// Exported for testing without a real ffprobe binary.
func ParseJSON(data []byte) (*Result, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}
	return buildResult(&raw), nil
}

// --- ffprobe JSON wire types ---

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Filename   string            `json:"filename"`
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	BitRate    string            `json:"bit_rate"`
	Tags       map[string]string `json:"tags"`
}

type ffprobeStream struct {
	Index         int    `json:"index"`
	CodecName     string `json:"codec_name"`
	CodecType     string `json:"codec_type"`
	Channels      int    `json:"channels"`
	ChannelLayout string `json:"channel_layout"`
	SampleRate    string `json:"sample_rate"`
	BitRate       string `json:"bit_rate"`
	Duration      string `json:"duration"`
}

func buildResult(raw *ffprobeOutput) *Result {
	r := &Result{
		Format: FormatInfo{
			Filename:   raw.Format.Filename,
			FormatName: raw.Format.FormatName,
			Duration:   parseFloat(raw.Format.Duration),
			Size:       parseInt64(raw.Format.Size),
			BitRate:    parseInt64(raw.Format.BitRate),
			Tags:       raw.Format.Tags,
		},
	}
	for i := range raw.Streams {
		s := &raw.Streams[i]
		switch s.CodecType {
		case "audio":
			r.AudioStreams = append(r.AudioStreams, AudioStream{
				Index:         s.Index,
				Codec:         s.CodecName,
				Channels:      s.Channels,
				ChannelLayout: s.ChannelLayout,
				SampleRate:    int(parseInt64(s.SampleRate)),
				BitRate:       parseInt64(s.BitRate),
				Duration:      parseFloat(s.Duration),
			})
		case "video":
			r.VideoStreams++
		}
	}
	return r
}

// --- Numeric parsing helpers (ffprobe returns numbers as strings) ---

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}
