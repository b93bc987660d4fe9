package acquire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// ytdlpRunner invokes the external downloader binary with structured flags.
// It is shared by the subtitle and media subprocess strategies.
type ytdlpRunner struct {
	binPath   string
	userAgent string
	timeout   time.Duration
	log       *slog.Logger
}

func newYTDLPRunner(binPath string, timeout time.Duration, log *slog.Logger) ytdlpRunner {
	if binPath == "" {
		binPath = "yt-dlp"
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return ytdlpRunner{binPath: binPath, userAgent: defaultUserAgent, timeout: timeout, log: log}
}

// run executes the tool and classifies the failure mode from its exit state
// and stderr. The returned outcome is only meaningful on failure; callers
// inspect the filesystem on success.
func (r ytdlpRunner) run(ctx context.Context, req Request, args []string) (stderr string, out Outcome, ok bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	base := []string{
		"--no-playlist",
		"--no-warnings",
		"--user-agent", r.userAgent,
		"--referer", req.Source.URL,
	}
	cmd := exec.CommandContext(ctx, r.binPath, append(base, args...)...)
	var errBuf bytes.Buffer
	cmd.Stderr = &errBuf

	err := cmd.Run()
	stderr = errBuf.String()
	if err == nil {
		return stderr, Outcome{}, true
	}

	r.log.Debug("downloader tool failed",
		slog.String("source", req.Source.ID),
		slog.String("error", err.Error()),
		slog.String("stderr", truncate(stderr, 400)))

	switch {
	case errors.Is(err, exec.ErrNotFound):
		return stderr, NotAvailable("downloader tool not installed"), false
	case ctx.Err() != nil:
		return stderr, Transient(fmt.Errorf("downloader tool timed out: %w", ctx.Err())), false
	case containsAny(stderr, "Video unavailable", "Private video", "This video is not available", "members-only"):
		return stderr, NotAvailable("source not retrievable by downloader tool"), false
	case containsAny(stderr, "no subtitles", "There are no subtitles", "Requested format is not available"):
		return stderr, NotAvailable("nothing matching the request is offered"), false
	case containsAny(stderr, "429", "timed out", "Temporary failure", "Connection reset", "Unable to download"):
		return stderr, Transient(fmt.Errorf("downloader tool: %s", firstLine(stderr))), false
	default:
		return stderr, Transient(fmt.Errorf("downloader tool exited: %w", err)), false
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return truncate(s, 200)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// YTDLPSubtitles obtains a subtitle track through the external downloader
// tool in subtitle-only mode, accepting both uploaded and auto-generated
// tracks.
type YTDLPSubtitles struct {
	runner ytdlpRunner
}

// NewYTDLPSubtitles builds the strategy around the given binary path.
func NewYTDLPSubtitles(binPath string, timeout time.Duration, log *slog.Logger) *YTDLPSubtitles {
	return &YTDLPSubtitles{runner: newYTDLPRunner(binPath, timeout, log)}
}

func (s *YTDLPSubtitles) Name() string { return "ytdlp-subtitles" }

// Attempt implements Strategy.
func (s *YTDLPSubtitles) Attempt(ctx context.Context, req Request) Outcome {
	stem := filepath.Join(req.TempDir, req.ID)
	args := []string{
		"--skip-download",
		"--write-subs",
		"--write-auto-subs",
		"--sub-langs", req.Language,
		"--sub-format", "vtt",
		"-o", stem,
		req.Source.URL,
	}

	_, failure, ok := s.runner.run(ctx, req, args)
	if !ok {
		s.cleanup(stem)
		return failure
	}

	// The tool appends ".<lang>.vtt" to the output template.
	matches, _ := filepath.Glob(stem + "*.vtt")
	if len(matches) == 0 {
		s.cleanup(stem)
		return NotAvailable("no %q captions offered for this source", req.Language)
	}

	raw, err := os.ReadFile(matches[0])
	s.cleanup(stem)
	if err != nil {
		return Transient(fmt.Errorf("read subtitle output: %w", err))
	}
	return SucceededRaw(raw)
}

func (s *YTDLPSubtitles) cleanup(stem string) {
	matches, _ := filepath.Glob(stem + "*")
	for _, m := range matches {
		os.Remove(m)
	}
}

// YTDLPMedia obtains a media stream through the external downloader tool,
// using a combined best-video+best-audio selector with a forced container
// merge, or audio extraction for audio requests.
type YTDLPMedia struct {
	runner ytdlpRunner
}

// NewYTDLPMedia builds the strategy around the given binary path.
func NewYTDLPMedia(binPath string, timeout time.Duration, log *slog.Logger) *YTDLPMedia {
	return &YTDLPMedia{runner: newYTDLPRunner(binPath, timeout, log)}
}

func (s *YTDLPMedia) Name() string { return "ytdlp-media" }

// Attempt implements Strategy.
func (s *YTDLPMedia) Attempt(ctx context.Context, req Request) Outcome {
	stem := filepath.Join(req.TempDir, req.ID)

	var args []string
	if req.MediaType == "audio" {
		args = []string{
			"-f", "bestaudio/best",
			"-x",
			"--audio-format", "mp3",
			"--audio-quality", "0",
			"-o", stem + ".%(ext)s",
			req.Source.URL,
		}
	} else {
		h := maxHeights[req.Quality]
		selector := fmt.Sprintf("bv*[height<=%d]+ba/b[height<=%d]/bv*+ba/b", h, h)
		args = []string{
			"-f", selector,
			"--merge-output-format", "mp4",
			"-o", stem + ".%(ext)s",
			req.Source.URL,
		}
	}

	_, failure, ok := s.runner.run(ctx, req, args)
	if !ok {
		s.cleanup(stem)
		return failure
	}

	matches, _ := filepath.Glob(stem + ".*")
	for _, m := range matches {
		switch filepath.Ext(m) {
		case ".part", ".ytdl":
			continue
		}
		return Succeeded(m)
	}

	s.cleanup(stem)
	return Transient(errors.New("downloader tool produced no output file"))
}

func (s *YTDLPMedia) cleanup(stem string) {
	matches, _ := filepath.Glob(stem + ".*")
	for _, m := range matches {
		os.Remove(m)
	}
}
