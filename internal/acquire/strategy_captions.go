package acquire

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	caption "github.com/lincaiyong/youtube-caption"

	"github.com/Lynam2022/y2tubex/internal/source"
	"github.com/Lynam2022/y2tubex/internal/timedtext"
)

// lastCueDuration closes the final cue of a track that carries only start
// offsets.
const lastCueDuration = 3 * time.Second

// CaptionLibrary extracts the source's default caption track through a
// third-party caption library. The library has no language selector, so the
// strategy offers the track only when the target language is the configured
// default (the geo-resolved fallback language); otherwise it declares itself
// not applicable and the chain advances.
type CaptionLibrary struct {
	defaultLanguage string
	log             *slog.Logger
}

// NewCaptionLibrary builds the strategy around the process-wide default
// language.
func NewCaptionLibrary(defaultLanguage string, log *slog.Logger) *CaptionLibrary {
	if defaultLanguage == "" {
		defaultLanguage = "en"
	}
	return &CaptionLibrary{defaultLanguage: defaultLanguage, log: log}
}

func (s *CaptionLibrary) Name() string { return "caption-library" }

// Attempt implements Strategy.
func (s *CaptionLibrary) Attempt(ctx context.Context, req Request) Outcome {
	if req.Source.Platform != source.PlatformYouTube {
		return NotAvailable("caption library handles only the primary platform")
	}
	if req.Language != "" && !languageMatches(s.defaultLanguage, req.Language) {
		return NotAvailable("caption library retrieves only the default %q track", s.defaultLanguage)
	}

	captions, err := caption.Download(req.Source.ID)
	if err != nil {
		return Transient(fmt.Errorf("caption library: %w", err))
	}

	texts := captions.GetSubtitleText()
	if len(texts) == 0 {
		return NotAvailable("caption library returned no segments")
	}

	cues := make(timedtext.CueList, 0, len(texts))
	for i, t := range texts {
		start := time.Duration(t.StartTime * float64(time.Second))
		end := start + lastCueDuration
		if i+1 < len(texts) {
			if next := time.Duration(texts[i+1].StartTime * float64(time.Second)); next > start {
				end = next
			}
		}
		cues = append(cues, timedtext.Cue{Start: start, End: end, Text: t.Text})
	}

	s.log.Debug("caption library track fetched",
		slog.String("source", req.Source.ID),
		slog.Int("segments", len(cues)))
	return Outcome{Kind: OutcomeSuccess, Cues: cues}
}

const timedTextEndpoint = "https://video.google.com/timedtext"

// CaptionsEndpoint calls the platform's public captions endpoint directly
// with language and translation-language query parameters. The response is an
// XML transcript handed to the normalizer. Last in the chain because the
// endpoint serves only uploaded (non-automatic) tracks.
type CaptionsEndpoint struct {
	httpClient *http.Client
	endpoint   string
	log        *slog.Logger
}

// NewCaptionsEndpoint builds the strategy against the public endpoint.
func NewCaptionsEndpoint(log *slog.Logger) *CaptionsEndpoint {
	return &CaptionsEndpoint{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		endpoint:   timedTextEndpoint,
		log:        log,
	}
}

func (s *CaptionsEndpoint) Name() string { return "captions-endpoint" }

// Attempt implements Strategy.
func (s *CaptionsEndpoint) Attempt(ctx context.Context, req Request) Outcome {
	if req.Source.Platform != source.PlatformYouTube {
		return NotAvailable("captions endpoint handles only the primary platform")
	}

	raw, out, ok := s.fetch(ctx, req, url.Values{
		"v":    {req.Source.ID},
		"lang": {req.Language},
	})
	if !ok {
		return out
	}
	if len(raw) == 0 {
		// No uploaded track in the target language; request a platform-side
		// translation of the default track.
		raw, out, ok = s.fetch(ctx, req, url.Values{
			"v":     {req.Source.ID},
			"lang":  {"en"},
			"tlang": {req.Language},
		})
		if !ok {
			return out
		}
	}
	if len(raw) == 0 {
		return NotAvailable("captions endpoint offers no %q track", req.Language)
	}
	return SucceededRaw(raw)
}

func (s *CaptionsEndpoint) fetch(ctx context.Context, req Request, params url.Values) ([]byte, Outcome, bool) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, Fatal(fmt.Errorf("build captions request: %w", err)), false
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, Transient(fmt.Errorf("captions endpoint: %w", err)), false
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, NotAvailable("captions endpoint has no track for %s", req.Source.ID), false
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, Transient(fmt.Errorf("captions endpoint: status %d", resp.StatusCode)), false
	default:
		return nil, NotAvailable("captions endpoint refused: status %d", resp.StatusCode), false
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, Transient(fmt.Errorf("read captions response: %w", err)), false
	}
	return raw, Outcome{}, true
}
