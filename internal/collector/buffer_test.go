package collector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soldalen/heatpumpctl/internal/source"
)

func TestAverageSince(t *testing.T) {
	now := time.Now().UTC()
	b := newPowerBuffer(10 * time.Minute)

	b.Add(source.PowerReading{Timestamp: now.Add(-4 * time.Minute), PowerWatts: 2000})
	b.Add(source.PowerReading{Timestamp: now.Add(-2 * time.Minute), PowerWatts: 3000})
	b.Add(source.PowerReading{Timestamp: now, PowerWatts: 2500})

	avg, ok := b.AverageSince(now.Add(-5 * time.Minute))
	require.True(t, ok)
	assert.InDelta(t, 2500.0, avg, 1e-9)

	// Only the two most recent readings fall inside a 3-minute window
	avg, ok = b.AverageSince(now.Add(-3 * time.Minute))
	require.True(t, ok)
	assert.InDelta(t, 2750.0, avg, 1e-9)
}

func TestAverageSinceEmptyWindowIsGap(t *testing.T) {
	now := time.Now().UTC()
	b := newPowerBuffer(10 * time.Minute)

	_, ok := b.AverageSince(now.Add(-5 * time.Minute))
	assert.False(t, ok, "empty buffer must read as a gap")

	b.Add(source.PowerReading{Timestamp: now.Add(-8 * time.Minute), PowerWatts: 1200})

	_, ok = b.AverageSince(now.Add(-5 * time.Minute))
	assert.False(t, ok, "only stale readings must read as a gap, not as zero watts")
}

func TestNearestWithin(t *testing.T) {
	now := time.Now().UTC()
	b := newPowerBuffer(time.Hour)

	b.Add(source.PowerReading{Timestamp: now.Add(-10 * time.Minute), PowerWatts: 1000})
	b.Add(source.PowerReading{Timestamp: now.Add(-3 * time.Minute), PowerWatts: 1800})

	watts, ok := b.NearestWithin(now, 5*time.Minute)
	require.True(t, ok)
	assert.InDelta(t, 1800.0, watts, 1e-9)

	_, ok = b.NearestWithin(now, time.Minute)
	assert.False(t, ok, "nothing within tolerance")
}

func TestBufferPrunesOldReadings(t *testing.T) {
	now := time.Now().UTC()
	b := newPowerBuffer(10 * time.Minute)

	b.Add(source.PowerReading{Timestamp: now.Add(-15 * time.Minute), PowerWatts: 900})
	b.Add(source.PowerReading{Timestamp: now, PowerWatts: 2100})

	avg, ok := b.AverageSince(now.Add(-time.Hour))
	require.True(t, ok)
	assert.InDelta(t, 2100.0, avg, 1e-9, "reading past maxAge was pruned on Add")

	last, ok := b.LastTimestamp()
	require.True(t, ok)
	assert.Equal(t, now, last)
}
