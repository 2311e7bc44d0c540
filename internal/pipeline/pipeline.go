// Package pipeline is the top-level controller for one transcription job
// attempt: resume detection, the credit gate, the parallel
// convert/transcribe phase, chunk merging, optional analysis, and the
// terminal Recording state writes. It is the only writer of terminal
// recording state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"audioscribe-go/internal/analysis"
	"audioscribe-go/internal/chunker"
	"audioscribe-go/internal/config"
	"audioscribe-go/internal/credits"
	"audioscribe-go/internal/domain"
	"audioscribe-go/internal/logger"
	"audioscribe-go/internal/media"
	"audioscribe-go/internal/merge"
	"audioscribe-go/internal/progress"
	"audioscribe-go/internal/speech"
	"audioscribe-go/internal/storage"
	"audioscribe-go/internal/store"
)

// Progress stage boundaries. Deterministic steps get fixed values; the
// transcribe and analyze stages advance asymptotically toward their caps
// while the provider call is in flight.
const (
	pctDownloaded     = 2
	pctConvertCap     = 7
	pctConverted      = 8
	pctStored         = 10
	pctConvertDone    = 12
	pctCreditsCleared = 14
	pctTranscribeLow  = 15
	pctTranscribeCap  = 68
	pctTranscribed    = 72
	pctAnalyzeLow     = 74
	pctAnalyzeCap     = 90
	pctAnalyzed       = 92
	pctPersisted      = 96
)

// Transcoder is the slice of media operations the controller needs.
type Transcoder interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
	Convert(ctx context.Context, path, profile string) (media.ConvertResult, error)
	SpeedUp(ctx context.Context, path string, factor float64) (string, error)
	Cleanup(path string)
}

// Splitter materializes a chunk plan into files.
type Splitter interface {
	Split(ctx context.Context, path string, windows []chunker.Window) ([]domain.ChunkDescriptor, error)
	Cleanup(chunks []domain.ChunkDescriptor)
}

type Pipeline struct {
	cfg         *config.Config
	log         *logger.Logger
	storage     storage.Store
	media       Transcoder
	splitter    Splitter
	speech      speech.Provider
	analysis    analysis.Provider
	ledger      credits.Ledger
	recordings  store.RecordingStore
	transcripts store.TranscriptStore
	progress    progress.Sink
}

func New(
	cfg *config.Config,
	log *logger.Logger,
	blobs storage.Store,
	transcoder Transcoder,
	splitter Splitter,
	speechProvider speech.Provider,
	analysisProvider analysis.Provider,
	ledger credits.Ledger,
	recordings store.RecordingStore,
	transcripts store.TranscriptStore,
	progressSink progress.Sink,
) *Pipeline {
	return &Pipeline{
		cfg:         cfg,
		log:         log,
		storage:     blobs,
		media:       transcoder,
		splitter:    splitter,
		speech:      speechProvider,
		analysis:    analysisProvider,
		ledger:      ledger,
		recordings:  recordings,
		transcripts: transcripts,
		progress:    progressSink,
	}
}

// Process runs one attempt end to end. On success the Recording is
// Completed with its job ID cleared; on failure the returned error is a
// classified *Failure and the Recording reflects the retry decision.
func (p *Pipeline) Process(ctx context.Context, job domain.Job) (domain.JobResult, error) {
	log := p.log.WithJob(job.JobID, job.RecordingID, job.AttemptNumber)
	tracker := progress.NewTracker(p.progress, job.JobID, log)

	rec, err := p.recordings.Get(ctx, job.RecordingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.JobResult{}, Business(err)
		}
		return domain.JobResult{}, Classify(err)
	}

	// Restore in-flight state: a previous failed attempt may have left the
	// recording marked Failed while a retry was still pending.
	rec.Status = domain.RecordingProcessing
	rec.CurrentJobID = job.JobID
	rec.ErrorMessage = ""
	if err := p.recordings.Save(ctx, rec); err != nil {
		return domain.JobResult{}, Classify(err)
	}

	result, err := p.run(ctx, log, tracker, job, &rec)
	if err != nil {
		return domain.JobResult{}, p.fail(ctx, log, &rec, job, err)
	}

	rec.Status = domain.RecordingCompleted
	rec.CurrentJobID = ""
	rec.ErrorMessage = ""
	if err := p.recordings.Save(ctx, rec); err != nil {
		return domain.JobResult{}, p.fail(ctx, log, &rec, job, err)
	}

	tracker.Set(ctx, 100)
	log.Info("attempt completed")
	return result, nil
}

func (p *Pipeline) run(
	ctx context.Context,
	log *logrus.Entry,
	tracker *progress.Tracker,
	job domain.Job,
	rec *domain.Recording,
) (domain.JobResult, error) {
	// Every temp artifact of this attempt lives under workDir and dies
	// with it, on all exit paths.
	workDir, err := os.MkdirTemp("", "transcribe-"+job.JobID+"-")
	if err != nil {
		return domain.JobResult{}, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Resume contract: a file path differing from the job's source means a
	// previous attempt already converted and stored the audio. Never repeat
	// the transcode, never re-probe.
	alreadyConverted := rec.FilePath != "" && rec.FilePath != job.SourcePath

	var localPath string
	var duration float64

	if alreadyConverted {
		log.Info("conversion done by previous attempt, skipping to transcription")
		tracker.Set(ctx, pctConvertDone)

		duration = float64(rec.Duration)
		localPath = filepath.Join(workDir, "converted.m4a")
		if err := p.fetchToFile(ctx, rec.FilePath, localPath); err != nil {
			return domain.JobResult{}, err
		}
	} else {
		tracker.Set(ctx, 1)
		localPath = filepath.Join(workDir, "original-"+filepath.Base(job.FileName))
		if err := p.fetchToFile(ctx, job.SourcePath, localPath); err != nil {
			return domain.JobResult{}, err
		}
		tracker.Set(ctx, pctDownloaded)

		duration, err = p.media.ProbeDuration(ctx, localPath)
		if err != nil {
			return domain.JobResult{}, err
		}
	}

	if err := p.creditGate(ctx, log, job, duration); err != nil {
		return domain.JobResult{}, err
	}
	tracker.Set(ctx, pctCreditsCleared)

	// Exactly two concurrent operations per attempt: storing-format
	// conversion, and the speed-up/chunk/transcribe path. Only the convert
	// branch touches rec until the join.
	var state merge.State
	g, gctx := errgroup.WithContext(ctx)

	if !alreadyConverted {
		g.Go(func() error {
			return p.convertAndStore(gctx, log, tracker, job, rec, localPath)
		})
	}
	g.Go(func() error {
		st, err := p.transcribe(gctx, log, tracker, job, localPath, duration)
		if err != nil {
			return err
		}
		state = st
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.JobResult{}, err
	}
	tracker.Set(ctx, pctTranscribed)

	if strings.TrimSpace(state.Text) == "" {
		return domain.JobResult{}, Business(ErrEmptyTranscription)
	}

	// Timestamps come back in the sped-up timeline; restore the original
	// one once, after merging.
	merge.ApplySpeedFactor(state.Segments, p.cfg.SpeedFactor)

	analysisText, err := p.analyze(ctx, log, tracker, job, &state)
	if err != nil {
		return domain.JobResult{}, err
	}
	tracker.Set(ctx, pctAnalyzed)

	merge.StripChunkSuffixes(state.Segments)

	language := state.Language
	if language == "" {
		language = job.Locale
	}
	created, err := p.transcripts.Create(ctx, domain.TranscriptRecord{
		RecordingID: job.RecordingID,
		Text:        state.Text,
		Segments:    state.Segments,
		Language:    language,
		Analysis:    analysisText,
	})
	if err != nil {
		return domain.JobResult{}, err
	}
	if !created {
		log.Warn("transcript already persisted by a previous attempt")
	}
	tracker.Set(ctx, pctPersisted)

	return domain.JobResult{Transcript: state.Text, Analysis: analysisText}, nil
}

// fetchToFile downloads a stored blob into the attempt's work dir.
func (p *Pipeline) fetchToFile(ctx context.Context, storedPath, localPath string) error {
	data, err := p.storage.GetBytes(ctx, storedPath)
	if err != nil {
		return fmt.Errorf("fetch %q from storage: %w", storedPath, err)
	}
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	return nil
}

// creditGate charges exactly once per recording. The existing usage charge
// is queried fresh on every attempt; its presence means a previous attempt
// already billed this recording.
func (p *Pipeline) creditGate(ctx context.Context, log *logrus.Entry, job domain.Job, duration float64) error {
	needed := creditsFor(duration)

	charged, err := p.ledger.FindUsageCharge(ctx, job.RecordingID)
	if err != nil {
		return fmt.Errorf("look up usage charge: %w", err)
	}
	if charged {
		log.Info("usage already charged by a previous attempt")
		return nil
	}

	ok, err := p.ledger.HasEnoughCredits(ctx, job.UserID, job.OrganizationID, needed)
	if err != nil {
		return fmt.Errorf("check credits: %w", err)
	}
	if !ok {
		available, err := p.ledger.EffectiveBalance(ctx, job.UserID, job.OrganizationID)
		if err != nil {
			return fmt.Errorf("read credit balance: %w", err)
		}
		return Business(&InsufficientCreditsError{Needed: needed, Available: available})
	}

	name := strings.TrimSuffix(job.FileName, filepath.Ext(job.FileName))
	desc := fmt.Sprintf("Audio analysis: %s (%ds)", name, int(math.Round(duration)))
	if err := p.ledger.ChargeUsage(ctx, job.UserID, job.OrganizationID, needed, desc, job.RecordingID); err != nil {
		return fmt.Errorf("charge usage: %w", err)
	}

	log.WithField("credits", needed).Info("credits charged")
	return nil
}

// creditsFor bills one credit per started minute, minimum one.
func creditsFor(duration float64) int {
	n := int(math.Ceil(duration / 60))
	if n < 1 {
		n = 1
	}
	return n
}

// convertAndStore normalizes the original upload for playback, stores it,
// and repoints the Recording at the converted file. That repointing is what
// later attempts use to detect completed conversion.
func (p *Pipeline) convertAndStore(
	ctx context.Context,
	log *logrus.Entry,
	tracker *progress.Tracker,
	job domain.Job,
	rec *domain.Recording,
	localPath string,
) error {
	stop := tracker.StartAsymptotic(ctx, pctConvertCap, 500*time.Millisecond)
	conv, err := p.media.Convert(ctx, localPath, p.cfg.ConversionProfile)
	stop()
	if err != nil {
		return err
	}
	defer p.media.Cleanup(conv.Path)
	tracker.Set(ctx, pctConverted)

	storedName := strings.TrimSuffix(job.FileName, filepath.Ext(job.FileName)) + ".m4a"
	stored, err := p.storage.Put(ctx, conv.Path, job.OrganizationID, storage.Meta{
		OriginalName: storedName,
		MimeType:     "audio/mp4",
	})
	if err != nil {
		return fmt.Errorf("store converted audio: %w", err)
	}

	rec.FilePath = stored.Path
	rec.FileSize = stored.Size
	rec.MimeType = "audio/mp4"
	rec.Duration = int(math.Round(conv.Duration))
	if err := p.recordings.Save(ctx, *rec); err != nil {
		return fmt.Errorf("update recording after conversion: %w", err)
	}
	tracker.Set(ctx, pctStored)

	// Original upload is no longer needed once the converted file is the
	// recording's file of record.
	if err := p.storage.Delete(ctx, job.SourcePath); err != nil {
		log.WithField("error", err.Error()).Debug("original upload cleanup skipped")
	}
	tracker.Set(ctx, pctConvertDone)
	return nil
}

// transcribe runs the speed-up, chunk planning, and sequential per-chunk
// provider calls, folding results into one merge state.
func (p *Pipeline) transcribe(
	ctx context.Context,
	log *logrus.Entry,
	tracker *progress.Tracker,
	job domain.Job,
	localPath string,
	duration float64,
) (merge.State, error) {
	path := localPath
	planDuration := duration

	if p.cfg.SpeedFactor > 1 {
		sped, err := p.media.SpeedUp(ctx, localPath, p.cfg.SpeedFactor)
		if err != nil {
			return merge.State{}, err
		}
		defer p.media.Cleanup(sped)
		path = sped
		planDuration = duration / p.cfg.SpeedFactor
	}

	windows := chunker.Plan(planDuration, p.cfg.Chunking)
	if len(windows) == 0 {
		return merge.State{}, Business(fmt.Errorf("recording has no audible duration"))
	}

	chunks, err := p.splitter.Split(ctx, path, windows)
	if err != nil {
		return merge.State{}, err
	}
	defer p.splitter.Cleanup(chunks)

	n := len(chunks)
	log.WithField("chunks", n).Info("transcribing")

	// Chunks are transcribed strictly in index order: it bounds concurrent
	// provider load and the merger depends on the ordering.
	var state merge.State
	for i, c := range chunks {
		tracker.Set(ctx, chunkFloor(i, n))
		stop := tracker.StartAsymptotic(ctx, chunkCap(i, n), time.Second)
		res, err := p.speech.Transcribe(ctx, c.Path, chunkLabel(job.FileName, i, n), c.Duration, "audio/mp4")
		stop()
		if err != nil {
			return merge.State{}, fmt.Errorf("transcribe chunk %d: %w", i, err)
		}

		state = merge.Fold(state, merge.ChunkResult{
			Text:     res.Text,
			Segments: res.Segments,
			Language: res.Language,
		}, i, c.StartTime)
	}
	return state, nil
}

func chunkFloor(i, n int) int {
	return pctTranscribeLow + (pctTranscribeCap-pctTranscribeLow)*i/n
}

func chunkCap(i, n int) int {
	return pctTranscribeLow + (pctTranscribeCap-pctTranscribeLow)*(i+1)/n
}

func chunkLabel(fileName string, i, n int) string {
	if n == 1 {
		return fileName
	}
	return fmt.Sprintf("%s (part %d of %d)", fileName, i+1, n)
}

// analyze runs the prompt-driven analysis pass, or the lighter speaker
// identification when no prompt is present but diarization labels are.
// Speaker names are applied before the suffix-stripping pass so the map may
// key on disambiguated labels.
func (p *Pipeline) analyze(
	ctx context.Context,
	log *logrus.Entry,
	tracker *progress.Tracker,
	job domain.Job,
	state *merge.State,
) (string, error) {
	switch {
	case job.Prompt != "":
		tracker.Set(ctx, pctAnalyzeLow)
		stop := tracker.StartAsymptotic(ctx, pctAnalyzeCap, 500*time.Millisecond)
		res, err := p.analysis.Analyze(ctx, state.Text, job.Prompt, state.Segments)
		stop()
		if err != nil {
			return "", fmt.Errorf("analyze transcript: %w", err)
		}
		merge.ApplySpeakerNames(state.Segments, res.Speakers)
		return res.Analysis, nil

	case merge.HasSpeakers(state.Segments):
		tracker.Set(ctx, pctAnalyzeLow)
		stop := tracker.StartAsymptotic(ctx, pctAnalyzeCap, 500*time.Millisecond)
		names, err := p.analysis.IdentifySpeakers(ctx, state.Segments)
		stop()
		if err != nil {
			return "", fmt.Errorf("identify speakers: %w", err)
		}
		merge.ApplySpeakerNames(state.Segments, names)
		return "", nil

	default:
		return "", nil
	}
}

// fail writes terminal Recording state for this attempt. CurrentJobID is
// cleared only when no further attempt will run, so observers can tell a
// pending retry from a stopped job.
func (p *Pipeline) fail(ctx context.Context, log *logrus.Entry, rec *domain.Recording, job domain.Job, err error) error {
	f := Classify(err)

	rec.Status = domain.RecordingFailed
	rec.ErrorMessage = f.Error()

	lastAttempt := job.AttemptNumber >= job.MaxAttempts
	if !f.Retryable() || lastAttempt {
		rec.CurrentJobID = ""
	}

	if saveErr := p.recordings.Save(ctx, *rec); saveErr != nil {
		log.WithField("error", saveErr.Error()).Warn("failed to persist failure state")
	}

	log.WithFields(logrus.Fields{
		"kind":      f.Kind.String(),
		"retryable": f.Retryable(),
		"error":     f.Error(),
	}).Error("attempt failed")

	return f
}
