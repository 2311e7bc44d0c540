package chunker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"audioscribe-go/internal/domain"
	"audioscribe-go/internal/media"
)

// Splitter turns a chunk plan into physical chunk files via ffmpeg.
type Splitter struct {
	transcoder *media.Transcoder
	tempDir    string
}

func NewSplitter(transcoder *media.Transcoder) *Splitter {
	return &Splitter{
		transcoder: transcoder,
		tempDir:    os.TempDir(),
	}
}

// Split materializes each planned window as its own audio file. A
// single-window plan references the original file directly with no physical
// split. The caller must Cleanup the returned chunks on every exit path.
func (s *Splitter) Split(ctx context.Context, path string, windows []Window) ([]domain.ChunkDescriptor, error) {
	if len(windows) == 0 {
		return nil, fmt.Errorf("empty chunk plan for %q", path)
	}

	if len(windows) == 1 {
		return []domain.ChunkDescriptor{{
			Index:     0,
			Path:      path,
			StartTime: 0,
			Duration:  windows[0].Duration,
		}}, nil
	}

	chunkDir := filepath.Join(s.tempDir, "chunks_"+uuid.NewString())
	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create chunk dir: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	chunks := make([]domain.ChunkDescriptor, 0, len(windows))
	for _, w := range windows {
		chunkPath := filepath.Join(chunkDir, fmt.Sprintf("chunk_%s_%d.m4a", base, w.Index))

		if err := s.transcoder.ExtractChunk(ctx, path, chunkPath, w.StartTime, w.Duration); err != nil {
			s.Cleanup(chunks)
			return nil, err
		}

		chunks = append(chunks, domain.ChunkDescriptor{
			Index:     w.Index,
			Path:      chunkPath,
			StartTime: w.StartTime,
			Duration:  w.Duration,
		})
	}

	return chunks, nil
}

// Cleanup removes physical chunk files and their directory, best-effort.
// Chunks that reference the original file (single-window plans) are left
// alone; only paths inside a chunks_ directory are deleted.
func (s *Splitter) Cleanup(chunks []domain.ChunkDescriptor) {
	var chunkDir string
	for _, c := range chunks {
		if !strings.Contains(c.Path, "chunks_") {
			continue
		}
		_ = os.Remove(c.Path)
		chunkDir = filepath.Dir(c.Path)
	}
	if chunkDir != "" {
		_ = os.Remove(chunkDir)
	}
}
