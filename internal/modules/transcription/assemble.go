package transcription

import (
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/podreach-backend/internal/platform/gcp"
)

// chunkTranscript is one chunk's recognition output, or the error it failed with.
type chunkTranscript struct {
	Index  int
	Offset time.Duration
	Result *gcp.SpeechResult
	Err    error
}

// Assemble joins chunk transcripts in chunk order. Each segment line carries its
// absolute position as [hh:mm:ss]; failed chunks leave a marker so gaps are visible.
func Assemble(chunks []chunkTranscript) string {
	var b strings.Builder
	line := func(at time.Duration, text string) {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("[")
		b.WriteString(Timestamp(at))
		b.WriteString("] ")
		b.WriteString(text)
	}
	for _, c := range chunks {
		if c.Err != nil {
			line(c.Offset, "[transcription unavailable for this segment]")
			continue
		}
		if c.Result == nil {
			continue
		}
		if len(c.Result.Segments) == 0 {
			if t := strings.TrimSpace(c.Result.PrimaryText); t != "" {
				line(c.Offset, t)
			}
			continue
		}
		for _, seg := range c.Result.Segments {
			text := strings.TrimSpace(seg.Text)
			if text == "" {
				continue
			}
			if seg.SpeakerTag > 0 {
				text = fmt.Sprintf("Speaker %d: %s", seg.SpeakerTag, text)
			}
			line(c.Offset+time.Duration(seg.StartSec*float64(time.Second)), text)
		}
	}
	return b.String()
}

// Timestamp formats d as hh:mm:ss.
func Timestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}
