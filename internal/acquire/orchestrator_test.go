package acquire

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Lynam2022/y2tubex/internal/media"
	"github.com/Lynam2022/y2tubex/internal/progress"
	"github.com/Lynam2022/y2tubex/internal/source"
	"github.com/Lynam2022/y2tubex/internal/timedtext"
)

const sampleVTT = "WEBVTT\n\n00:00:01.000 --> 00:00:02.000\nhello there\n"

// fakeStrategy counts invocations and replays scripted outcomes; the last
// outcome repeats once the script is exhausted.
type fakeStrategy struct {
	name     string
	outcomes []Outcome
	block    chan struct{} // when set, Attempt waits here first

	mu    sync.Mutex
	calls int
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Attempt(ctx context.Context, req Request) Outcome {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	i := f.calls - 1
	if i >= len(f.outcomes) {
		i = len(f.outcomes) - 1
	}
	return f.outcomes[i]
}

func (f *fakeStrategy) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeMetadata struct {
	meta source.Metadata
	err  error
}

func (f fakeMetadata) Fetch(ctx context.Context, ref source.Reference) (source.Metadata, error) {
	return f.meta, f.err
}

type fakeProcessor struct {
	mu         sync.Mutex
	muxCalls   int
	transcodes int
}

func (p *fakeProcessor) Mux(ctx context.Context, videoPath, audioPath, outPath string) error {
	p.mu.Lock()
	p.muxCalls++
	p.mu.Unlock()
	os.Remove(videoPath)
	os.Remove(audioPath)
	return os.WriteFile(outPath, []byte("muxed"), 0o644)
}

func (p *fakeProcessor) TranscodeAudio(ctx context.Context, inPath, outPath, codec, bitrate string) error {
	p.mu.Lock()
	p.transcodes++
	p.mu.Unlock()
	os.Remove(inPath)
	return os.WriteFile(outPath, []byte("transcoded"), 0o644)
}

type fixture struct {
	orch      *Orchestrator
	store     *progress.InMemoryStore
	dirs      media.Dirs
	processor *fakeProcessor
}

func newFixture(t *testing.T, subtitle, mediaStrats []Strategy, aggregator Strategy) *fixture {
	t.Helper()
	base := t.TempDir()
	dirs := media.Dirs{
		Downloads: filepath.Join(base, "downloads"),
		Subtitles: filepath.Join(base, "subtitles"),
		Temp:      filepath.Join(base, "temp"),
	}
	if err := dirs.Ensure(); err != nil {
		t.Fatal(err)
	}

	store := progress.NewInMemoryStore()
	processor := &fakeProcessor{}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	orch := NewOrchestrator(Options{
		Store:              store,
		Metadata:           fakeMetadata{meta: source.Metadata{Title: "My Video"}},
		Processor:          processor,
		SubtitleStrategies: subtitle,
		MediaStrategies:    mediaStrats,
		Aggregator:         aggregator,
		Retry: RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			Sleep:       func(context.Context, time.Duration) {},
		},
		Dirs:        dirs,
		RetainCount: 20,
		Log:         log,
	})
	return &fixture{orch: orch, store: store, dirs: dirs, processor: processor}
}

func ytRef() source.Reference {
	return source.Reference{
		Platform: source.PlatformYouTube,
		ID:       "dQw4w9WgXcQ",
		URL:      "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
	}
}

func subtitleRequest(id string) Request {
	return Request{
		ID:       id,
		Source:   ytRef(),
		Kind:     KindSubtitle,
		Language: "en",
		Format:   timedtext.FormatSRT,
	}
}

func waitTerminal(t *testing.T, store progress.Store, id string) progress.Record {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if rec, ok := store.Get(id); ok && rec.Terminal() {
			return rec
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("timed out waiting for a terminal progress record")
	return progress.Record{}
}

func TestOrchestrator_FallsBackToNextStrategy(t *testing.T) {
	s1 := &fakeStrategy{name: "s1", outcomes: []Outcome{NotAvailable("nothing here")}}
	s2 := &fakeStrategy{name: "s2", outcomes: []Outcome{SucceededRaw([]byte(sampleVTT))}}
	fx := newFixture(t, []Strategy{s1, s2}, nil, nil)

	req := subtitleRequest("d1")
	req.TempDir = fx.dirs.Temp
	if err := fx.orch.Submit(req); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	rec := waitTerminal(t, fx.store, "d1")
	if rec.Stage != progress.StageCompleted {
		t.Fatalf("stage = %s (%s)", rec.Stage, rec.ErrorMessage)
	}
	if rec.ResultLocation != "/subtitles/My_Video_en.srt" {
		t.Errorf("result location = %q", rec.ResultLocation)
	}
	if s1.callCount() != 1 || s2.callCount() != 1 {
		t.Errorf("calls: s1=%d s2=%d, want 1 and 1", s1.callCount(), s2.callCount())
	}

	body, err := os.ReadFile(filepath.Join(fx.dirs.Subtitles, "My_Video_en.srt"))
	if err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if !strings.Contains(string(body), "00:00:01,000 --> 00:00:02,000") {
		t.Errorf("artifact is not SRT: %q", body)
	}

	// Nothing left behind in the shared temp directory.
	entries, _ := os.ReadDir(fx.dirs.Temp)
	if len(entries) != 0 {
		t.Errorf("temp dir not clean: %v", entries)
	}
}

func TestOrchestrator_TransientRetriesThenAdvances(t *testing.T) {
	s1 := &fakeStrategy{name: "s1", outcomes: []Outcome{Transient(errTimeout{})}}
	s2 := &fakeStrategy{name: "s2", outcomes: []Outcome{SucceededRaw([]byte(sampleVTT))}}
	fx := newFixture(t, []Strategy{s1, s2}, nil, nil)

	if err := fx.orch.Submit(subtitleRequest("d1")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	rec := waitTerminal(t, fx.store, "d1")

	if rec.Stage != progress.StageCompleted {
		t.Fatalf("stage = %s (%s)", rec.Stage, rec.ErrorMessage)
	}
	if got := s1.callCount(); got != 3 {
		t.Errorf("s1 attempted %d times, want exactly 3", got)
	}
	if s2.callCount() != 1 {
		t.Errorf("s2 attempted %d times, want 1", s2.callCount())
	}
}

type errTimeout struct{}

func (errTimeout) Error() string { return "connection timed out" }

func TestOrchestrator_FatalAbortsRemainingStrategies(t *testing.T) {
	s1 := &fakeStrategy{name: "s1", outcomes: []Outcome{Fatal(errTimeout{})}}
	s2 := &fakeStrategy{name: "s2", outcomes: []Outcome{SucceededRaw([]byte(sampleVTT))}}
	fx := newFixture(t, []Strategy{s1, s2}, nil, nil)

	fx.orch.Submit(subtitleRequest("d1"))
	rec := waitTerminal(t, fx.store, "d1")

	if rec.Stage != progress.StageError {
		t.Fatalf("stage = %s, want error", rec.Stage)
	}
	if s2.callCount() != 0 {
		t.Errorf("later strategy ran after a fatal outcome")
	}
}

func TestOrchestrator_AllExhaustedAggregatesReasons(t *testing.T) {
	// Production subtitle ordering: the language-enumerating strategy sits in
	// the middle of the chain, and later strategies fail with less specific
	// reasons. The enumeration must still reach the terminal record.
	s1 := &fakeStrategy{name: "ytdlp-subtitles", outcomes: []Outcome{NotAvailable("downloader tool not installed")}}
	s2 := &fakeStrategy{name: "library-captions", outcomes: []Outcome{
		NotAvailable(`no "xx" captions; available languages: en`),
	}}
	s3 := &fakeStrategy{name: "caption-library", outcomes: []Outcome{
		NotAvailable(`caption library retrieves only the default "en" track`),
	}}
	s4 := &fakeStrategy{name: "captions-endpoint", outcomes: []Outcome{
		NotAvailable(`captions endpoint offers no "xx" track`),
	}}
	fx := newFixture(t, []Strategy{s1, s2, s3, s4}, nil, nil)

	req := subtitleRequest("d1")
	req.Language = "xx"
	fx.orch.Submit(req)
	rec := waitTerminal(t, fx.store, "d1")

	if rec.Stage != progress.StageError {
		t.Fatalf("stage = %s", rec.Stage)
	}
	if !strings.Contains(rec.ErrorMessage, "available languages: en") {
		t.Errorf("language enumeration lost from terminal message: %q", rec.ErrorMessage)
	}
	if !strings.Contains(rec.ErrorMessage, `captions endpoint offers no "xx" track`) {
		t.Errorf("last strategy's reason missing from terminal message: %q", rec.ErrorMessage)
	}
}

func TestOrchestrator_ExistingArtifactSkipsStrategies(t *testing.T) {
	s1 := &fakeStrategy{name: "s1", outcomes: []Outcome{SucceededRaw([]byte(sampleVTT))}}
	fx := newFixture(t, []Strategy{s1}, nil, nil)

	target := filepath.Join(fx.dirs.Subtitles, "My_Video_en.srt")
	if err := os.WriteFile(target, []byte("1\n00:00:01,000 --> 00:00:02,000\nhi\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	fx.orch.Submit(subtitleRequest("d1"))
	rec := waitTerminal(t, fx.store, "d1")

	if rec.Stage != progress.StageCompleted || rec.Percent != 100 {
		t.Fatalf("record = %+v", rec)
	}
	if s1.callCount() != 0 {
		t.Errorf("strategies were invoked despite an existing artifact: %d calls", s1.callCount())
	}
}

func TestOrchestrator_DuplicateRequestRejected(t *testing.T) {
	block := make(chan struct{})
	s1 := &fakeStrategy{name: "s1", block: block, outcomes: []Outcome{SucceededRaw([]byte(sampleVTT))}}
	fx := newFixture(t, []Strategy{s1}, nil, nil)

	if err := fx.orch.Submit(subtitleRequest("d1")); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if err := fx.orch.Submit(subtitleRequest("d2")); err != ErrAlreadyInProgress {
		t.Errorf("second Submit = %v, want ErrAlreadyInProgress", err)
	}

	close(block)
	waitTerminal(t, fx.store, "d1")

	// The key is released once the first request finishes.
	if err := fx.orch.Submit(subtitleRequest("d3")); err != nil {
		t.Errorf("Submit after completion: %v", err)
	}
	waitTerminal(t, fx.store, "d3")
}

func TestOrchestrator_AudioRequestTranscodesToCanonicalName(t *testing.T) {
	fx := newFixture(t, nil, nil, nil)

	raw := filepath.Join(fx.dirs.Temp, "d1.m4a")
	s1 := &fakeStrategy{name: "s1", outcomes: []Outcome{Succeeded(raw)}}
	fx.orch.opts.MediaStrategies = []Strategy{s1}
	if err := os.WriteFile(raw, []byte("aac bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	fx.orch.Submit(Request{
		ID:        "d1",
		Source:    ytRef(),
		Kind:      KindMedia,
		MediaType: "audio",
		Quality:   "medium",
		TempDir:   fx.dirs.Temp,
	})
	rec := waitTerminal(t, fx.store, "d1")

	if rec.Stage != progress.StageCompleted || rec.Percent != 100 {
		t.Fatalf("record = %+v", rec)
	}
	if rec.ResultLocation != "/downloads/My_Video_medium.mp3" {
		t.Errorf("result location = %q, want /downloads/My_Video_medium.mp3", rec.ResultLocation)
	}
	if fx.processor.transcodes != 1 {
		t.Errorf("transcode calls = %d", fx.processor.transcodes)
	}
	if !media.ArtifactExists(filepath.Join(fx.dirs.Downloads, "My_Video_medium.mp3")) {
		t.Error("canonical artifact missing")
	}
}

func TestOrchestrator_SplitStreamsAreMuxed(t *testing.T) {
	fx := newFixture(t, nil, nil, nil)

	videoPath := filepath.Join(fx.dirs.Temp, "d1.video.mp4")
	audioPath := filepath.Join(fx.dirs.Temp, "d1.audio.m4a")
	for _, p := range []string{videoPath, audioPath} {
		if err := os.WriteFile(p, []byte("stream"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	s1 := &fakeStrategy{name: "s1", outcomes: []Outcome{SucceededSplit(videoPath, audioPath)}}
	fx.orch.opts.MediaStrategies = []Strategy{s1}

	fx.orch.Submit(Request{
		ID:        "d1",
		Source:    ytRef(),
		Kind:      KindMedia,
		MediaType: "video",
		Quality:   "high",
		TempDir:   fx.dirs.Temp,
	})
	rec := waitTerminal(t, fx.store, "d1")

	if rec.Stage != progress.StageCompleted {
		t.Fatalf("record = %+v", rec)
	}
	if fx.processor.muxCalls != 1 {
		t.Errorf("mux calls = %d", fx.processor.muxCalls)
	}
	if rec.ResultLocation != "/downloads/My_Video_high.mp4" {
		t.Errorf("result location = %q", rec.ResultLocation)
	}
}

func TestOrchestrator_UnavailableSourceSkipsStrategies(t *testing.T) {
	s1 := &fakeStrategy{name: "s1", outcomes: []Outcome{SucceededRaw([]byte(sampleVTT))}}
	fx := newFixture(t, []Strategy{s1}, nil, nil)
	fx.orch.opts.Metadata = fakeMetadata{err: source.ErrUnavailable}

	fx.orch.Submit(subtitleRequest("d1"))
	rec := waitTerminal(t, fx.store, "d1")

	if rec.Stage != progress.StageError {
		t.Fatalf("stage = %s", rec.Stage)
	}
	if !strings.Contains(rec.ErrorMessage, "unavailable") {
		t.Errorf("error message = %q", rec.ErrorMessage)
	}
	if s1.callCount() != 0 {
		t.Error("strategies ran for an unavailable source")
	}
}

func TestOrchestrator_NonPrimaryPlatformRoutesToAggregator(t *testing.T) {
	primary := &fakeStrategy{name: "primary", outcomes: []Outcome{SucceededRaw([]byte(sampleVTT))}}
	aggregator := &fakeStrategy{name: "aggregator", outcomes: []Outcome{SucceededRaw([]byte(sampleVTT))}}
	fx := newFixture(t, []Strategy{primary}, []Strategy{primary}, aggregator)

	fx.orch.Submit(Request{
		ID:       "d1",
		Source:   source.Reference{Platform: source.PlatformOther, ID: "https://vimeo.com/1", URL: "https://vimeo.com/1"},
		Kind:     KindSubtitle,
		Language: "en",
		Format:   timedtext.FormatVTT,
	})
	rec := waitTerminal(t, fx.store, "d1")

	if rec.Stage != progress.StageCompleted {
		t.Fatalf("record = %+v", rec)
	}
	if primary.callCount() != 0 {
		t.Error("primary-platform strategies must be skipped for other platforms")
	}
	if aggregator.callCount() != 1 {
		t.Errorf("aggregator calls = %d", aggregator.callCount())
	}
}

func TestOrchestrator_NormalizationFailureIsTerminalError(t *testing.T) {
	s1 := &fakeStrategy{name: "s1", outcomes: []Outcome{SucceededRaw([]byte("garbage payload"))}}
	fx := newFixture(t, []Strategy{s1}, nil, nil)

	fx.orch.Submit(subtitleRequest("d1"))
	rec := waitTerminal(t, fx.store, "d1")

	if rec.Stage != progress.StageError {
		t.Fatalf("stage = %s", rec.Stage)
	}
	if !strings.Contains(rec.ErrorMessage, "no usable subtitles") {
		t.Errorf("error message = %q", rec.ErrorMessage)
	}
}
