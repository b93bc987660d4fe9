package acquire

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Lynam2022/y2tubex/internal/media"
	"github.com/Lynam2022/y2tubex/internal/platform/metrics"
	"github.com/Lynam2022/y2tubex/internal/progress"
	"github.com/Lynam2022/y2tubex/internal/source"
	"github.com/Lynam2022/y2tubex/internal/timedtext"
)

// Progress milestones. Advancing to a later strategy rewinds to
// percentStrategyStart; this is the one documented percent discontinuity.
const (
	percentResolving     = 5
	percentStrategyStart = 10
	percentDownloaded    = 70
	percentProcessing    = 85
)

// MetadataFetcher resolves title/thumbnail metadata and doubles as the
// availability check.
type MetadataFetcher interface {
	Fetch(ctx context.Context, ref source.Reference) (source.Metadata, error)
}

// PostProcessor merges separate streams and transcodes audio through the
// external encoder.
type PostProcessor interface {
	Mux(ctx context.Context, videoPath, audioPath, outPath string) error
	TranscodeAudio(ctx context.Context, inPath, outPath, codec, bitrate string) error
}

// Options wires an Orchestrator. Metrics may be nil to disable metric
// recording (e.g. in tests).
type Options struct {
	Store              progress.Store
	Metadata           MetadataFetcher
	Processor          PostProcessor
	SubtitleStrategies []Strategy
	MediaStrategies    []Strategy
	Aggregator         Strategy
	Retry              RetryPolicy
	Dirs               media.Dirs
	RetainCount        int
	Log                *slog.Logger
	Metrics            *metrics.Metrics
}

// Orchestrator is the per-request state machine: it resolves the source,
// drives the strategy chain with retry and fallback, hands results to the
// normalizer or post-processor, and is the sole writer of progress records.
type Orchestrator struct {
	opts Options

	mu       sync.Mutex
	inflight map[string]string // request key -> download id
}

// NewOrchestrator builds an Orchestrator from opts.
func NewOrchestrator(opts Options) *Orchestrator {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.RetainCount <= 0 {
		opts.RetainCount = 20
	}
	return &Orchestrator{
		opts:     opts,
		inflight: make(map[string]string),
	}
}

// Submit accepts a request, registers its progress record, and runs the
// acquisition asynchronously. A second request with an identical key while
// one is in flight is rejected with ErrAlreadyInProgress rather than queued.
func (o *Orchestrator) Submit(req Request) error {
	key := req.Key()

	o.mu.Lock()
	if _, busy := o.inflight[key]; busy {
		o.mu.Unlock()
		return ErrAlreadyInProgress
	}
	o.inflight[key] = req.ID
	o.mu.Unlock()

	o.opts.Store.Create(req.ID)
	if o.opts.Metrics != nil {
		o.opts.Metrics.IncDownloadsStarted()
	}

	// The acquisition outlives the submitting HTTP request and any progress
	// stream; client disconnects never cancel it.
	go func() {
		defer func() {
			o.mu.Lock()
			delete(o.inflight, key)
			o.mu.Unlock()
		}()
		o.run(context.Background(), req)
	}()

	return nil
}

// Cancel removes the progress record. Best effort: an in-flight subprocess
// is not preempted; the orchestrator's next progress write simply finds no
// record to update.
func (o *Orchestrator) Cancel(id string) {
	o.opts.Store.Remove(id)
}

// ActiveCount returns the number of in-flight acquisitions. Used for
// metrics.
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.inflight)
}

func (o *Orchestrator) run(ctx context.Context, req Request) {
	log := o.opts.Log.With(
		slog.String("download_id", req.ID),
		slog.String("source", req.Source.ID),
		slog.String("kind", string(req.Kind)))

	o.setStage(req.ID, progress.StageResolving, percentResolving)

	meta, err := o.opts.Metadata.Fetch(ctx, req.Source)
	if err != nil {
		log.Info("source resolution failed", slog.String("error", err.Error()))
		o.fail(req.ID, fmt.Sprintf("source unavailable: %v", err))
		return
	}

	name, dir, publicPrefix := o.artifactSpec(req, meta.Title)
	target := filepath.Join(dir, name)

	// Idempotence: an existing, non-empty artifact short-circuits the whole
	// pipeline without invoking any strategy.
	if media.ArtifactExists(target) {
		log.Info("artifact already on disk", slog.String("artifact", name))
		o.complete(req.ID, publicPrefix+name)
		return
	}

	outcome, strategyName, ok := o.runStrategies(ctx, req, log)
	if !ok {
		return
	}

	o.setStage(req.ID, progress.StageDownloading, percentDownloaded)
	o.setStage(req.ID, progress.StageProcessing, percentProcessing)

	if req.Kind == KindSubtitle {
		err = o.finalizeSubtitle(outcome, target, req.Format)
	} else {
		err = o.finalizeMedia(ctx, req, outcome, target)
	}
	if err != nil {
		log.Error("finalize failed",
			slog.String("strategy", strategyName),
			slog.String("error", err.Error()))
		o.fail(req.ID, err.Error())
		return
	}

	if err := media.EvictOldest(dir, o.opts.RetainCount); err != nil {
		log.Warn("artifact eviction failed", slog.String("error", err.Error()))
	}

	log.Info("acquisition completed",
		slog.String("strategy", strategyName),
		slog.String("artifact", name))
	o.complete(req.ID, publicPrefix+name)
}

// runStrategies drives the fallback chain: each strategy gets up to the
// retry budget on transient failures; NotAvailable or exhausted retries
// advance to the next strategy; a fatal outcome aborts the request. When
// every strategy is exhausted the terminal message carries each strategy's
// reason, so a specific diagnosis (like the list of available caption
// languages) survives later, less informative failures.
func (o *Orchestrator) runStrategies(ctx context.Context, req Request, log *slog.Logger) (Outcome, string, bool) {
	strategies := o.strategiesFor(req)
	var reasons []string

	for i, strat := range strategies {
		if i == 0 {
			o.setStage(req.ID, progress.StageDownloading, percentStrategyStart)
		} else {
			o.opts.Store.Rewind(req.ID, percentStrategyStart)
		}

		out := o.opts.Retry.Do(ctx, func() Outcome {
			if o.opts.Metrics != nil {
				o.opts.Metrics.IncStrategyAttempts(strat.Name())
			}
			return strat.Attempt(ctx, req)
		})

		switch out.Kind {
		case OutcomeSuccess:
			return out, strat.Name(), true
		case OutcomeFatal:
			log.Error("strategy failed fatally",
				slog.String("strategy", strat.Name()),
				slog.String("reason", out.Reason))
			o.fail(req.ID, out.Reason)
			return Outcome{}, "", false
		default:
			if o.opts.Metrics != nil {
				o.opts.Metrics.IncStrategyFailures(strat.Name())
			}
			log.Warn("strategy exhausted, advancing",
				slog.String("strategy", strat.Name()),
				slog.String("outcome", out.Kind.String()),
				slog.String("reason", out.Reason),
				slog.String("language", req.Language),
				slog.String("quality", req.Quality))
			reasons = append(reasons, strat.Name()+": "+out.Reason)
		}
	}

	if len(reasons) == 0 {
		o.fail(req.ID, "no acquisition strategy is applicable")
		return Outcome{}, "", false
	}
	o.fail(req.ID, "all acquisition strategies failed: "+strings.Join(reasons, "; "))
	return Outcome{}, "", false
}

func (o *Orchestrator) strategiesFor(req Request) []Strategy {
	if req.Source.Platform != source.PlatformYouTube {
		// Non-primary platforms route straight to the aggregator.
		return []Strategy{o.opts.Aggregator}
	}
	if req.Kind == KindSubtitle {
		return o.opts.SubtitleStrategies
	}
	return o.opts.MediaStrategies
}

func (o *Orchestrator) finalizeSubtitle(out Outcome, target string, format timedtext.OutputFormat) error {
	cues := out.Cues
	if cues == nil {
		parsed, err := timedtext.Parse(out.Raw, timedtext.HintAuto)
		if err != nil {
			return fmt.Errorf("source had no usable subtitles: %w", err)
		}
		cues = parsed
	}

	body := timedtext.Serialize(cues, format)
	if err := os.WriteFile(target, []byte(body), 0o644); err != nil {
		return fmt.Errorf("write subtitle artifact: %w", err)
	}
	return nil
}

func (o *Orchestrator) finalizeMedia(ctx context.Context, req Request, out Outcome, target string) error {
	if out.NeedsMux() {
		if err := o.opts.Processor.Mux(ctx, out.VideoPath, out.AudioPath, target); err != nil {
			return fmt.Errorf("merge streams: %w", err)
		}
		return nil
	}

	if req.MediaType == "audio" && filepath.Ext(out.Path) != ".mp3" {
		if err := o.opts.Processor.TranscodeAudio(ctx, out.Path, target, "libmp3lame", "192k"); err != nil {
			return fmt.Errorf("transcode audio: %w", err)
		}
		return nil
	}

	if err := media.MoveFile(out.Path, target); err != nil {
		return fmt.Errorf("store artifact: %w", err)
	}
	return nil
}

// artifactSpec derives the canonical artifact filename (sanitized title +
// quality/language discriminator + extension), its directory, and the public
// URL prefix the client fetches it from.
func (o *Orchestrator) artifactSpec(req Request, title string) (name, dir, publicPrefix string) {
	stem := media.SanitizeTitle(title) + "_" + req.QualityOrLanguage()

	if req.Kind == KindSubtitle {
		return stem + "." + req.Format.Extension(), o.opts.Dirs.Subtitles, "/subtitles/"
	}
	if req.MediaType == "audio" {
		return stem + ".mp3", o.opts.Dirs.Downloads, "/downloads/"
	}
	return stem + ".mp4", o.opts.Dirs.Downloads, "/downloads/"
}

func (o *Orchestrator) setStage(id string, stage progress.Stage, percent int) {
	o.opts.Store.Update(id, func(r *progress.Record) {
		r.Stage = stage
		r.Percent = percent
	})
}

func (o *Orchestrator) complete(id, location string) {
	o.opts.Store.Update(id, func(r *progress.Record) {
		r.Stage = progress.StageCompleted
		r.Percent = 100
		r.ResultLocation = location
	})
	if o.opts.Metrics != nil {
		o.opts.Metrics.IncDownloadsCompleted()
	}
}

func (o *Orchestrator) fail(id, message string) {
	o.opts.Store.Update(id, func(r *progress.Record) {
		r.Stage = progress.StageError
		r.ErrorMessage = message
	})
	if o.opts.Metrics != nil {
		o.opts.Metrics.IncDownloadsFailed()
	}
}
