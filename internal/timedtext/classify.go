package timedtext

import "strings"

// Classify sniffs the raw payload shape. There is no structural metadata that
// indicates the format, so detection relies on content heuristics: an XML
// prolog or <transcript> element, the WEBVTT magic, a JSON "events" field,
// or bare cue timing arrows.
func Classify(raw []byte) FormatHint {
	s := strings.TrimSpace(strings.TrimPrefix(string(raw), "\uFEFF"))

	switch {
	case strings.HasPrefix(s, "<?xml"), strings.Contains(s, "<transcript"):
		return HintXMLTranscript
	case strings.HasPrefix(s, "WEBVTT"), strings.Contains(s, "\nWEBVTT"):
		return HintCueText
	case strings.HasPrefix(s, "{") && strings.Contains(s, `"events"`):
		return HintJSONEvents
	default:
		// SRT has no magic header; timing arrows are the only marker.
		return HintCueText
	}
}
