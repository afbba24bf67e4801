package collector

import (
	"sync"
	"time"

	"github.com/soldalen/heatpumpctl/internal/source"
)

// powerBuffer holds recent power-meter readings for short-window averaging.
// The power loop is the only writer; the heat-pump loop reads it when
// building an aligned sample, so access is mutex-guarded. This is the one
// piece of state shared between the two cadences.
type powerBuffer struct {
	mu       sync.Mutex
	readings []source.PowerReading
	maxAge   time.Duration
}

func newPowerBuffer(maxAge time.Duration) *powerBuffer {
	return &powerBuffer{maxAge: maxAge}
}

func (b *powerBuffer) Add(reading source.PowerReading) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.readings = append(b.readings, reading)
	b.prune(reading.Timestamp)
}

// AverageSince returns the mean power in watts over readings newer than
// cutoff. ok is false when the window holds no samples; an empty window is
// a gap, never zero watts.
func (b *powerBuffer) AverageSince(cutoff time.Time) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var sum float64
	var n int
	for _, r := range b.readings {
		if r.Timestamp.After(cutoff) {
			sum += r.PowerWatts
			n++
		}
	}
	if n == 0 {
		return 0, false
	}

	return sum / float64(n), true
}

// NearestWithin returns the reading closest in time to ts, if any lies
// within the tolerance.
func (b *powerBuffer) NearestWithin(ts time.Time, tolerance time.Duration) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var best float64
	bestDist := tolerance + 1
	for _, r := range b.readings {
		dist := ts.Sub(r.Timestamp)
		if dist < 0 {
			dist = -dist
		}
		if dist <= tolerance && dist < bestDist {
			best = r.PowerWatts
			bestDist = dist
		}
	}

	return best, bestDist <= tolerance
}

// LastTimestamp returns the newest buffered timestamp.
func (b *powerBuffer) LastTimestamp() (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.readings) == 0 {
		return time.Time{}, false
	}

	return b.readings[len(b.readings)-1].Timestamp, true
}

// prune drops readings older than maxAge. Callers hold the mutex.
func (b *powerBuffer) prune(now time.Time) {
	cutoff := now.Add(-b.maxAge)
	i := 0
	for i < len(b.readings) && b.readings[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		b.readings = append(b.readings[:0], b.readings[i:]...)
	}
}
