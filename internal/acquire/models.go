// Package acquire implements the multi-source acquisition pipeline: the
// pluggable strategy set, the fallback orchestrator that drives it, and the
// HTTP handlers that accept requests.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Lynam2022/y2tubex/internal/source"
	"github.com/Lynam2022/y2tubex/internal/timedtext"
)

// Kind says whether a request wants a media stream or a subtitle track.
type Kind string

const (
	KindMedia    Kind = "media"
	KindSubtitle Kind = "subtitle"
)

// Request is an immutable acquisition request. ID doubles as the progress
// record key and the per-request temp filename stem.
type Request struct {
	ID        string
	Source    source.Reference
	Kind      Kind
	MediaType string                 // "video" or "audio", media only
	Quality   string                 // high|medium|low, media only
	Language  string                 // subtitle target language
	Format    timedtext.OutputFormat // subtitle output format
	TempDir   string
}

// Key identifies a request for duplicate suppression: two requests with the
// same key cannot be in flight at once.
func (r Request) Key() string {
	if r.Kind == KindSubtitle {
		return strings.Join([]string{r.Source.ID, string(r.Kind), r.Language, string(r.Format)}, "|")
	}
	return strings.Join([]string{r.Source.ID, string(r.Kind), r.MediaType, r.Quality}, "|")
}

// QualityOrLanguage is the filename discriminator: quality tier for media,
// target language for subtitles.
func (r Request) QualityOrLanguage() string {
	if r.Kind == KindSubtitle {
		return r.Language
	}
	return r.Quality
}

// OutcomeKind tags a strategy result.
type OutcomeKind int

const (
	// OutcomeSuccess carries an artifact path or raw payload.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeNotAvailable means this strategy has nothing to offer for this
	// request; the orchestrator advances immediately.
	OutcomeNotAvailable
	// OutcomeTransient means the attempt failed in a retryable way.
	OutcomeTransient
	// OutcomeFatal aborts the whole request regardless of remaining strategies.
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotAvailable:
		return "not_available"
	case OutcomeTransient:
		return "transient"
	default:
		return "fatal"
	}
}

// Outcome is the tagged result of one strategy attempt. On success exactly
// one of the payload forms is set: Path (downloaded media file), Raw
// (in-memory subtitle payload), Cues (already-parsed subtitle track), or
// VideoPath+AudioPath (separate streams the post-processor must mux).
type Outcome struct {
	Kind OutcomeKind

	Path      string
	Raw       []byte
	Cues      timedtext.CueList
	VideoPath string
	AudioPath string

	Reason string
}

// NeedsMux reports whether the post-processor must merge separate streams.
func (o Outcome) NeedsMux() bool {
	return o.VideoPath != "" && o.AudioPath != ""
}

func Succeeded(path string) Outcome {
	return Outcome{Kind: OutcomeSuccess, Path: path}
}

func SucceededRaw(raw []byte) Outcome {
	return Outcome{Kind: OutcomeSuccess, Raw: raw}
}

func SucceededSplit(videoPath, audioPath string) Outcome {
	return Outcome{Kind: OutcomeSuccess, VideoPath: videoPath, AudioPath: audioPath}
}

func NotAvailable(format string, args ...any) Outcome {
	return Outcome{Kind: OutcomeNotAvailable, Reason: fmt.Sprintf(format, args...)}
}

func Transient(err error) Outcome {
	return Outcome{Kind: OutcomeTransient, Reason: err.Error()}
}

func Fatal(err error) Outcome {
	return Outcome{Kind: OutcomeFatal, Reason: err.Error()}
}

// Strategy is one concrete method of obtaining media or subtitles. Attempts
// are stateless between calls and clean up their own temp files on
// non-success outcomes.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, req Request) Outcome
}

var (
	// ErrAlreadyInProgress rejects a duplicate request while an identical one
	// is still in flight.
	ErrAlreadyInProgress = errors.New("request already in progress")

	// ErrValidation covers missing or malformed request fields, rejected
	// before any strategy runs.
	ErrValidation = errors.New("invalid request")
)
