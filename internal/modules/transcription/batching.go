package transcription

import (
	"math"
	"runtime"
	"runtime/debug"
	"time"

	types "github.com/yungbote/podreach-backend/internal/domain"
)

// EffectiveBatchSize shrinks maxSize under memory pressure (fraction of the limit in
// use): full below 30%, halved up to 50%, serialized above.
func EffectiveBatchSize(maxSize int, pressure float64) int {
	if maxSize < 1 {
		maxSize = 1
	}
	switch {
	case pressure > 0.5:
		return 1
	case pressure >= 0.3:
		return max(1, maxSize/2)
	}
	return maxSize
}

// HeapPressure returns a func reporting heap in use as a fraction of the Go soft
// memory limit, or of fallbackLimit when no limit is set. Zero when neither is known.
func HeapPressure(fallbackLimit int64) func() float64 {
	return func() float64 {
		limit := debug.SetMemoryLimit(-1)
		if limit == math.MaxInt64 {
			limit = fallbackLimit
		}
		if limit <= 0 {
			return 0
		}
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		return float64(ms.HeapInuse) / float64(limit)
	}
}

// estimatedDuration is used for batching when the feed omitted a duration.
const estimatedDuration = 30 * time.Minute

func episodeDuration(e *types.Episode) time.Duration {
	if e.DurationSec > 0 {
		return e.Duration()
	}
	return estimatedDuration
}

// nextSubBatch takes episodes from the front of queue while the sub-batch stays
// within size and maxTotal. The first episode is always taken.
func nextSubBatch(queue []*types.Episode, size int, maxTotal time.Duration) (batch, rest []*types.Episode) {
	var total time.Duration
	i := 0
	for ; i < len(queue) && i < size; i++ {
		d := episodeDuration(queue[i])
		if i > 0 && maxTotal > 0 && total+d > maxTotal {
			break
		}
		total += d
	}
	if i == 0 && len(queue) > 0 {
		i = 1
	}
	return queue[:i], queue[i:]
}
