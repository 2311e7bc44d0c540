package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Metadata describes the audio content of a file as reported by ffprobe.
type Metadata struct {
	Duration   float64
	Format     string
	BitRate    int64
	SampleRate int
	Channels   int
}

// Probe runs a single ffprobe JSON call against path.
func (t *Transcoder) Probe(ctx context.Context, path string) (Metadata, error) {
	cmd := exec.CommandContext(ctx, t.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return Metadata{}, fmt.Errorf("ffprobe %q: %w", path, err)
	}

	return ParseProbeJSON(out)
}

// ProbeDuration returns the file's duration in seconds.
func (t *Transcoder) ProbeDuration(ctx context.Context, path string) (float64, error) {
	meta, err := t.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return meta.Duration, nil
}

// ParseProbeJSON converts raw ffprobe JSON output into Metadata.
// Exported for testing without a real ffprobe binary.
func ParseProbeJSON(data []byte) (Metadata, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return Metadata{}, fmt.Errorf("parse ffprobe JSON: %w", err)
	}

	meta := Metadata{
		Duration: parseFloat(raw.Format.Duration),
		Format:   firstFormat(raw.Format.FormatName),
		BitRate:  parseInt64(raw.Format.BitRate),
	}

	for i := range raw.Streams {
		s := &raw.Streams[i]
		if s.CodecType != "audio" {
			continue
		}
		meta.SampleRate = parseInt(s.SampleRate)
		meta.Channels = s.Channels
		break
	}
	return meta, nil
}

// --- ffprobe JSON wire types ---

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
}

type ffprobeStream struct {
	CodecType  string `json:"codec_type"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

func firstFormat(name string) string {
	if name == "" {
		return "unknown"
	}
	return strings.SplitN(name, ",", 2)[0]
}

// --- numeric parsing helpers (ffprobe returns numbers as strings) ---

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func parseInt(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
