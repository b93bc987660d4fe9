package timedtext

import (
	"fmt"
	"strings"
	"time"
)

// Serialize renders cues into the requested output format. SRT uses 1-based
// contiguous sequence numbers and comma decimals; VTT starts with a WEBVTT
// header and uses dot decimals; PlainText discards timing entirely.
func Serialize(cues CueList, format OutputFormat) string {
	var sb strings.Builder

	switch format {
	case FormatVTT:
		sb.WriteString("WEBVTT\n\n")
		for _, c := range cues {
			fmt.Fprintf(&sb, "%s --> %s\n%s\n\n",
				formatTimestamp(c.Start, '.'),
				formatTimestamp(c.End, '.'),
				c.Text)
		}
	case FormatPlainText:
		for i, c := range cues {
			if i > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString(c.Text)
		}
		if len(cues) > 0 {
			sb.WriteString("\n")
		}
	default: // FormatSRT
		for i, c := range cues {
			fmt.Fprintf(&sb, "%d\n%s --> %s\n%s\n\n",
				i+1,
				formatTimestamp(c.Start, ','),
				formatTimestamp(c.End, ','),
				c.Text)
		}
	}

	return sb.String()
}

func formatTimestamp(d time.Duration, decimal byte) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	ms := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", h, m, s, decimal, ms)
}
