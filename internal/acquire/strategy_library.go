package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"
)

// classifyClientError maps protocol client failures onto outcome kinds.
// Restricted content and malformed ids have nothing to offer; everything
// else is assumed to be a transient network condition.
func classifyClientError(err error, op string) Outcome {
	switch {
	case errors.Is(err, youtube.ErrVideoPrivate),
		errors.Is(err, youtube.ErrLoginRequired),
		errors.Is(err, youtube.ErrNotPlayableInEmbed):
		return NotAvailable("restricted content: %v", err)
	case errors.Is(err, youtube.ErrInvalidCharactersInVideoID),
		errors.Is(err, youtube.ErrVideoIDMinLength):
		return NotAvailable("malformed video id: %v", err)
	}

	var statusErr *youtube.ErrPlayabiltyStatus
	if errors.As(err, &statusErr) {
		return NotAvailable("not playable: %s", statusErr.Reason)
	}

	return Transient(fmt.Errorf("%s: %w", op, err))
}

// LibraryCaptions fetches the platform's caption manifest through the
// protocol client and downloads the referenced track directly. Translated
// tracks are used when no uploaded track matches the target language.
type LibraryCaptions struct {
	client     *youtube.Client
	httpClient *http.Client
	log        *slog.Logger
}

// NewLibraryCaptions builds the strategy.
func NewLibraryCaptions(log *slog.Logger) *LibraryCaptions {
	return &LibraryCaptions{
		client:     &youtube.Client{},
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

func (s *LibraryCaptions) Name() string { return "library-captions" }

// Attempt implements Strategy.
func (s *LibraryCaptions) Attempt(ctx context.Context, req Request) Outcome {
	video, err := s.client.GetVideoContext(ctx, req.Source.URL)
	if err != nil {
		return classifyClientError(err, "caption manifest")
	}

	tracks := video.CaptionTracks
	if len(tracks) == 0 {
		return NotAvailable("source has no caption tracks")
	}

	trackURL := ""
	for _, t := range tracks {
		if languageMatches(t.LanguageCode, req.Language) {
			trackURL = t.BaseURL
			break
		}
	}
	if trackURL == "" {
		// No uploaded track in the target language; ask the platform to
		// translate the first translatable one.
		for _, t := range tracks {
			if t.IsTranslatable {
				trackURL = t.BaseURL + "&tlang=" + req.Language
				break
			}
		}
	}
	if trackURL == "" {
		return NotAvailable("no %q captions; available languages: %s",
			req.Language, strings.Join(trackLanguages(tracks), ", "))
	}

	raw, out, ok := s.fetchTrack(ctx, trackURL)
	if !ok {
		return out
	}
	return SucceededRaw(raw)
}

func (s *LibraryCaptions) fetchTrack(ctx context.Context, trackURL string) ([]byte, Outcome, bool) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, trackURL, nil)
	if err != nil {
		return nil, Fatal(fmt.Errorf("build track request: %w", err)), false
	}
	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, Transient(fmt.Errorf("download caption track: %w", err)), false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, Transient(fmt.Errorf("caption track: status %d", resp.StatusCode)), false
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, Transient(fmt.Errorf("read caption track: %w", err)), false
	}
	if len(raw) == 0 {
		return nil, Outcome{Kind: OutcomeNotAvailable, Reason: "caption track is empty"}, false
	}
	return raw, Outcome{}, true
}

// languageMatches treats "en" as matching regional variants like "en-US".
func languageMatches(code, target string) bool {
	code = strings.ToLower(code)
	target = strings.ToLower(target)
	return code == target || strings.HasPrefix(code, target+"-")
}

func trackLanguages(tracks []youtube.CaptionTrack) []string {
	langs := make([]string, 0, len(tracks))
	seen := make(map[string]bool, len(tracks))
	for _, t := range tracks {
		if !seen[t.LanguageCode] {
			seen[t.LanguageCode] = true
			langs = append(langs, t.LanguageCode)
		}
	}
	return langs
}

// LibraryMedia selects and downloads a stream through the protocol client:
// a single progressive stream matching the quality tier when one exists,
// otherwise separate video-only and audio-only streams muxed afterward by
// the post-processor.
type LibraryMedia struct {
	client *youtube.Client
	log    *slog.Logger
}

// NewLibraryMedia builds the strategy.
func NewLibraryMedia(log *slog.Logger) *LibraryMedia {
	return &LibraryMedia{client: &youtube.Client{}, log: log}
}

func (s *LibraryMedia) Name() string { return "library-media" }

// Attempt implements Strategy.
func (s *LibraryMedia) Attempt(ctx context.Context, req Request) Outcome {
	video, err := s.client.GetVideoContext(ctx, req.Source.URL)
	if err != nil {
		return classifyClientError(err, "stream manifest")
	}
	formats := []youtube.Format(video.Formats)

	if req.MediaType == "audio" {
		// m4a containers transcode to mp3 in post-processing; prefer them so
		// the encoder gets a clean audio-only input.
		format := pickAudioOnly(formats, "mp4")
		if format == nil {
			return NotAvailable("no audio-capable format offered")
		}
		path := filepath.Join(req.TempDir, req.ID+".m4a")
		if out, ok := s.download(ctx, video, format, path); !ok {
			return out
		}
		return Succeeded(path)
	}

	if format := pickProgressive(formats, req.Quality); format != nil {
		path := filepath.Join(req.TempDir, req.ID+".mp4")
		if out, ok := s.download(ctx, video, format, path); !ok {
			return out
		}
		return Succeeded(path)
	}

	videoFormat := pickVideoOnly(formats, req.Quality)
	if videoFormat == nil {
		return NotAvailable("no video-capable format offered")
	}
	audioFormat := pickAudioOnly(formats, "mp4")
	if audioFormat == nil {
		return NotAvailable("no audio-capable format to pair with video-only stream")
	}

	videoPath := filepath.Join(req.TempDir, req.ID+".video.mp4")
	audioPath := filepath.Join(req.TempDir, req.ID+".audio.m4a")
	if out, ok := s.download(ctx, video, videoFormat, videoPath); !ok {
		return out
	}
	if out, ok := s.download(ctx, video, audioFormat, audioPath); !ok {
		os.Remove(videoPath)
		return out
	}
	return SucceededSplit(videoPath, audioPath)
}

func (s *LibraryMedia) download(ctx context.Context, video *youtube.Video, format *youtube.Format, path string) (Outcome, bool) {
	stream, _, err := s.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return Transient(fmt.Errorf("open stream: %w", err)), false
	}
	defer stream.Close()

	f, err := os.Create(path)
	if err != nil {
		return Fatal(fmt.Errorf("create temp file: %w", err)), false
	}

	if _, err := io.Copy(f, stream); err != nil {
		f.Close()
		os.Remove(path)
		return Transient(fmt.Errorf("download stream: %w", err)), false
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return Transient(fmt.Errorf("finish temp file: %w", err)), false
	}

	s.log.Debug("stream downloaded",
		slog.String("path", path),
		slog.String("quality", format.QualityLabel),
		slog.String("mime", format.MimeType))
	return Outcome{}, true
}
