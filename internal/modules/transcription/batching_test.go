package transcription

import (
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/podreach-backend/internal/domain"
)

func TestEffectiveBatchSize(t *testing.T) {
	cases := []struct {
		max      int
		pressure float64
		want     int
	}{
		{5, 0, 5},
		{5, 0.29, 5},
		{5, 0.3, 2},
		{5, 0.5, 2},
		{5, 0.51, 1},
		{1, 0.4, 1},
		{0, 0, 1},
	}
	for _, tc := range cases {
		if got := EffectiveBatchSize(tc.max, tc.pressure); got != tc.want {
			t.Fatalf("EffectiveBatchSize(%d, %v)=%d want %d", tc.max, tc.pressure, got, tc.want)
		}
	}
}

func ep(minutes int) *types.Episode {
	return &types.Episode{ID: uuid.New(), DurationSec: minutes * 60}
}

func TestNextSubBatchRespectsSizeAndDuration(t *testing.T) {
	queue := []*types.Episode{ep(60), ep(60), ep(50), ep(30)}

	batch, rest := nextSubBatch(queue, 5, 180*time.Minute)
	if len(batch) != 3 || len(rest) != 1 {
		t.Fatalf("duration cap: batch=%d rest=%d", len(batch), len(rest))
	}

	batch, rest = nextSubBatch(queue, 2, 180*time.Minute)
	if len(batch) != 2 || len(rest) != 2 {
		t.Fatalf("size cap: batch=%d rest=%d", len(batch), len(rest))
	}
}

func TestNextSubBatchAlwaysTakesFirst(t *testing.T) {
	queue := []*types.Episode{ep(240), ep(10)}
	batch, rest := nextSubBatch(queue, 5, 180*time.Minute)
	if len(batch) != 1 || batch[0] != queue[0] || len(rest) != 1 {
		t.Fatalf("batch=%d rest=%d", len(batch), len(rest))
	}
}

func TestUnknownDurationIsEstimated(t *testing.T) {
	e := &types.Episode{ID: uuid.New()}
	if got := episodeDuration(e); got != estimatedDuration {
		t.Fatalf("got %v", got)
	}
	queue := make([]*types.Episode, 8)
	for i := range queue {
		queue[i] = &types.Episode{ID: uuid.New()}
	}
	batch, _ := nextSubBatch(queue, 10, 180*time.Minute)
	if len(batch) != 6 {
		t.Fatalf("expected 6 estimated 30m episodes, got %d", len(batch))
	}
}
