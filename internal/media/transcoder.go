// Package media wraps the external ffmpeg/ffprobe binaries: duration
// probing, AAC conversion for storage, atempo speed-up before
// transcription, and chunk extraction for long recordings.
package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ConvertResult is the outcome of a storage-format conversion.
type ConvertResult struct {
	Path     string
	Duration float64
}

// Transcoder shells out to ffmpeg/ffprobe. Paths are overridable for
// containerized deployments that bundle their own binaries.
type Transcoder struct {
	ffmpegPath  string
	ffprobePath string
	tempDir     string
}

func NewTranscoder() *Transcoder {
	return &Transcoder{
		ffmpegPath:  envOr("FFMPEG_PATH", "ffmpeg"),
		ffprobePath: envOr("FFPROBE_PATH", "ffprobe"),
		tempDir:     os.TempDir(),
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// Convert normalizes the audio into an AAC/M4A file suitable for playback
// and storage, and returns the new file's path plus its probed duration.
// The caller owns the output file and must Cleanup it.
func (t *Transcoder) Convert(ctx context.Context, path, profile string) (ConvertResult, error) {
	out := filepath.Join(t.tempDir, uuid.NewString()+"-converted.m4a")

	if err := t.runFfmpeg(ctx, convertArgs(path, out, profile)); err != nil {
		return ConvertResult{}, fmt.Errorf("convert %q: %w", path, err)
	}

	duration, err := t.ProbeDuration(ctx, out)
	if err != nil {
		t.Cleanup(out)
		return ConvertResult{}, err
	}
	return ConvertResult{Path: out, Duration: duration}, nil
}

// SpeedUp time-stretches the audio by factor and returns the new file's
// path. Factors outside ffmpeg's single-stage atempo range (0.5-2.0) are
// rejected. The caller owns the output file and must Cleanup it.
func (t *Transcoder) SpeedUp(ctx context.Context, path string, factor float64) (string, error) {
	if factor < 0.5 || factor > 2.0 {
		return "", fmt.Errorf("speed factor %.2f outside atempo range [0.5, 2.0]", factor)
	}

	out := filepath.Join(t.tempDir, uuid.NewString()+"-spedup.m4a")
	if err := t.runFfmpeg(ctx, speedUpArgs(path, out, factor)); err != nil {
		return "", fmt.Errorf("speed up %q: %w", path, err)
	}
	return out, nil
}

// ExtractChunk cuts [start, start+duration) out of in and writes it to out
// as AAC/M4A, matching the conversion profile the rest of the pipeline uses.
func (t *Transcoder) ExtractChunk(ctx context.Context, in, out string, start, duration float64) error {
	if err := t.runFfmpeg(ctx, chunkArgs(in, out, start, duration)); err != nil {
		return fmt.Errorf("extract chunk %q at %.1fs: %w", in, start, err)
	}
	return nil
}

// Cleanup deletes a transient artifact, best-effort.
func (t *Transcoder) Cleanup(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

func (t *Transcoder) runFfmpeg(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, stderrTail(stderr.String(), 4))
	}
	return nil
}

// stderrTail keeps the last n lines of ffmpeg output, where the actual
// error lives.
func stderrTail(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}

// --- argument builders ---

func convertArgs(in, out, profile string) []string {
	bitrate := "64k"
	if profile == "music" {
		bitrate = "128k"
	}
	return []string{
		"-i", in,
		"-vn",
		"-acodec", "aac",
		"-b:a", bitrate,
		"-ac", "1",
		"-ar", "44100",
		"-movflags", "+faststart",
		"-y",
		out,
	}
}

func speedUpArgs(in, out string, factor float64) []string {
	return []string{
		"-i", in,
		"-filter:a", "atempo=" + strconv.FormatFloat(factor, 'f', -1, 64),
		"-vn",
		"-acodec", "aac",
		"-b:a", "64k",
		"-y",
		out,
	}
}

func chunkArgs(in, out string, start, duration float64) []string {
	return []string{
		"-ss", strconv.FormatFloat(start, 'f', -1, 64),
		"-i", in,
		"-t", strconv.FormatFloat(duration, 'f', -1, 64),
		"-acodec", "aac",
		"-b:a", "64k",
		"-ac", "1",
		"-ar", "44100",
		"-vn",
		"-y",
		out,
	}
}
