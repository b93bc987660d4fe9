package timedtext

import (
	"errors"
	"time"
)

// Cue is a single timed subtitle entry.
type Cue struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// CueList is the canonical in-memory subtitle representation, ordered by
// Start ascending. Every raw subtitle format is parsed into a CueList before
// being re-serialized.
type CueList []Cue

// FormatHint tells Parse which raw shape to expect. HintAuto lets Parse
// sniff the format with Classify.
type FormatHint int

const (
	HintAuto FormatHint = iota
	HintCueText
	HintXMLTranscript
	HintJSONEvents
)

// OutputFormat selects the serialization target.
type OutputFormat string

const (
	FormatSRT       OutputFormat = "srt"
	FormatVTT       OutputFormat = "vtt"
	FormatPlainText OutputFormat = "txt"
)

// ErrNoCues is returned when parsing leaves zero valid cues after cleanup.
// Callers treat this the same as "source had no usable subtitles".
var ErrNoCues = errors.New("no usable cues in input")

// Extension returns the file extension for the format, without a dot.
func (f OutputFormat) Extension() string {
	return string(f)
}

// Valid reports whether f is one of the supported output formats.
func (f OutputFormat) Valid() bool {
	switch f {
	case FormatSRT, FormatVTT, FormatPlainText:
		return true
	}
	return false
}
