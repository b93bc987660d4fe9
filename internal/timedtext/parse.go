package timedtext

import (
	"bufio"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// defaultCueDuration is assigned to JSON events that carry no duration.
const defaultCueDuration = 2 * time.Second

// timingRe matches cue timing lines in both VTT (dot) and SRT (comma)
// decimal styles, with an optional hours field.
var timingRe = regexp.MustCompile(
	`(?:(\d{1,2}):)?(\d{2}):(\d{2})[.,](\d{3})\s*-->\s*(?:(\d{1,2}):)?(\d{2}):(\d{2})[.,](\d{3})`)

// Parse converts a raw timed-text payload into a canonical CueList. With
// HintAuto the payload shape is sniffed via Classify. Cues that are empty
// after cleanup, or whose start is not strictly before their end, are
// dropped. Parse returns ErrNoCues when nothing usable survives.
func Parse(raw []byte, hint FormatHint) (CueList, error) {
	if hint == HintAuto {
		hint = Classify(raw)
	}

	var (
		cues CueList
		err  error
	)
	switch hint {
	case HintCueText:
		cues = parseCueText(raw)
	case HintXMLTranscript:
		cues, err = parseXMLTranscript(raw)
	case HintJSONEvents:
		cues, err = parseJSONEvents(raw)
	default:
		return nil, fmt.Errorf("unknown format hint %d", hint)
	}
	if err != nil {
		return nil, err
	}

	cues = retainValid(cues)
	if len(cues) == 0 {
		return nil, ErrNoCues
	}
	return cues, nil
}

// retainValid applies the uniform cleanup and drops cues that are empty or
// have non-positive duration.
func retainValid(in CueList) CueList {
	out := make(CueList, 0, len(in))
	for _, c := range in {
		c.Text = cleanText(c.Text)
		if c.Text == "" || !hasContent(c.Text) {
			continue
		}
		if c.Start >= c.End {
			continue
		}
		out = append(out, c)
	}
	return out
}

// parseCueText handles VTT/SRT-shaped input: timing lines followed by one or
// more text lines until a blank line. Sequence numbers, the WEBVTT header,
// and NOTE/STYLE blocks are skipped.
func parseCueText(raw []byte) CueList {
	var cues CueList
	var cur *Cue
	var textLines []string

	flush := func() {
		if cur != nil && len(textLines) > 0 {
			cur.Text = strings.Join(textLines, " ")
			cues = append(cues, *cur)
		}
		cur = nil
		textLines = nil
	}

	sc := bufio.NewScanner(strings.NewReader(string(raw)))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	first := true
	skipBlock := false
	for sc.Scan() {
		line := sc.Text()
		if first {
			line = strings.TrimPrefix(line, "\uFEFF")
			first = false
		}
		trimmed := strings.TrimSpace(line)

		if skipBlock {
			if trimmed == "" {
				skipBlock = false
			}
			continue
		}
		if strings.HasPrefix(trimmed, "WEBVTT") {
			continue
		}
		if strings.HasPrefix(trimmed, "NOTE") || strings.HasPrefix(trimmed, "STYLE") {
			skipBlock = true
			continue
		}
		if trimmed == "" {
			flush()
			continue
		}

		if m := timingRe.FindStringSubmatch(trimmed); m != nil {
			flush()
			cur = &Cue{
				Start: timestampFromParts(m[1], m[2], m[3], m[4]),
				End:   timestampFromParts(m[5], m[6], m[7], m[8]),
			}
			continue
		}

		if cur == nil {
			// Cue identifier or stray line before any timing; ignore.
			continue
		}
		textLines = append(textLines, trimmed)
	}
	flush()
	return cues
}

func timestampFromParts(hh, mm, ss, ms string) time.Duration {
	h := atoi(hh) // empty hours field parses as 0
	return time.Duration(h)*time.Hour +
		time.Duration(atoi(mm))*time.Minute +
		time.Duration(atoi(ss))*time.Second +
		time.Duration(atoi(ms))*time.Millisecond
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

type xmlTranscript struct {
	XMLName xml.Name `xml:"transcript"`
	Texts   []struct {
		Start float64 `xml:"start,attr"`
		Dur   float64 `xml:"dur,attr"`
		Body  string  `xml:",chardata"`
	} `xml:"text"`
}

// parseXMLTranscript handles <transcript><text start="S" dur="D"> payloads.
// End offset is start+dur; elements without a duration are dropped later by
// the start<end invariant.
func parseXMLTranscript(raw []byte) (CueList, error) {
	var doc xmlTranscript
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode xml transcript: %w", err)
	}

	cues := make(CueList, 0, len(doc.Texts))
	for _, t := range doc.Texts {
		start := time.Duration(t.Start * float64(time.Second))
		cues = append(cues, Cue{
			Start: start,
			End:   start + time.Duration(t.Dur*float64(time.Second)),
			Text:  t.Body,
		})
	}
	return cues, nil
}

type jsonEvents struct {
	Events []struct {
		StartMs int64 `json:"tStartMs"`
		DurMs   int64 `json:"dDurationMs"`
		Segs    []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

// parseJSONEvents handles the JSON event-stream shape: start offsets in
// milliseconds, optional duration, text fragmented across sub-segments.
func parseJSONEvents(raw []byte) (CueList, error) {
	var doc jsonEvents
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode json events: %w", err)
	}

	cues := make(CueList, 0, len(doc.Events))
	for i, ev := range doc.Events {
		var sb strings.Builder
		for _, seg := range ev.Segs {
			sb.WriteString(seg.UTF8)
		}

		start := time.Duration(ev.StartMs) * time.Millisecond
		end := start + defaultCueDuration
		if ev.DurMs > 0 {
			end = start + time.Duration(ev.DurMs)*time.Millisecond
		} else if i+1 < len(doc.Events) {
			if next := time.Duration(doc.Events[i+1].StartMs) * time.Millisecond; next > start {
				end = next
			}
		}

		cues = append(cues, Cue{Start: start, End: end, Text: sb.String()})
	}
	return cues, nil
}
