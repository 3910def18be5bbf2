package transcription

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/podreach-backend/internal/platform/gcp"
)

func TestTimestamp(t *testing.T) {
	cases := map[time.Duration]string{
		0:                                  "00:00:00",
		59 * time.Second:                   "00:00:59",
		58*time.Minute + 2*time.Second:     "00:58:02",
		2*time.Hour + 3*time.Minute + 4500: "02:03:00",
		-time.Second:                       "00:00:00",
	}
	for d, want := range cases {
		if got := Timestamp(d); got != want {
			t.Fatalf("Timestamp(%v)=%q want %q", d, got, want)
		}
	}
}

func TestAssembleOffsetsAndGaps(t *testing.T) {
	chunks := []chunkTranscript{
		{Index: 0, Offset: 0, Result: &gcp.SpeechResult{Segments: []gcp.Segment{
			{Text: "welcome to the show", StartSec: 1, SpeakerTag: 1},
			{Text: "thanks for having me", StartSec: 65, SpeakerTag: 2},
		}}},
		{Index: 1, Offset: 58 * time.Minute, Err: errors.New("deadline exceeded")},
		{Index: 2, Offset: 116 * time.Minute, Result: &gcp.SpeechResult{PrimaryText: "that's a wrap"}},
	}
	got := Assemble(chunks)
	want := strings.Join([]string{
		"[00:00:01] Speaker 1: welcome to the show",
		"[00:01:05] Speaker 2: thanks for having me",
		"[00:58:00] [transcription unavailable for this segment]",
		"[01:56:00] that's a wrap",
	}, "\n")
	if got != want {
		t.Fatalf("assembled:\n%s\nwant:\n%s", got, want)
	}
}

func TestAssembleSkipsBlankSegments(t *testing.T) {
	got := Assemble([]chunkTranscript{{Result: &gcp.SpeechResult{Segments: []gcp.Segment{{Text: "  "}, {Text: "hi", StartSec: 3}}}}})
	if got != "[00:00:03] hi" {
		t.Fatalf("got %q", got)
	}
}
