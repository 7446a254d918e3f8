package waveform

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedSine alimenta 325*sin(2π50t) a 1000 Hz a partir de t=0 até a amostra
// que finaliza a captura (t=21ms)
func feedSine(t *testing.T, c *CycleCapturer) {
	t.Helper()
	for i := 0; i <= 20; i++ {
		ts := int64(i * 1000)
		require.False(t, c.Capture(sine(ts), ts), "amostra %d", i)
	}
	require.True(t, c.Capture(sine(21000), 21000))
}

func sine(ts int64) float64 {
	return 325 * math.Sin(2*math.Pi*50*float64(ts)/1e6)
}

func TestCaptureFinalizesAfterOnePeriod(t *testing.T) {
	c := NewCycleCapturer(0.02)
	assert.Equal(t, Accumulating, c.State())

	feedSine(t, c)

	assert.Equal(t, Captured, c.State())
	assert.Equal(t, 21, c.Len())

	loopStart, ok := c.LoopStart()
	assert.True(t, ok)
	assert.Equal(t, int64(21000), loopStart)

	points := c.Points()
	assert.Equal(t, 0.0, points[0].Time)
	assert.InDelta(t, 0.02, points[20].Time, 1e-12)
	for i := 1; i < len(points); i++ {
		assert.Greater(t, points[i].Time, points[i-1].Time)
	}
}

func TestCaptureIsOneShot(t *testing.T) {
	c := NewCycleCapturer(0.02)
	feedSine(t, c)

	before := c.Points()
	for ts := int64(22000); ts < 100000; ts += 1000 {
		assert.True(t, c.Capture(999, ts))
	}
	assert.Equal(t, before, c.Points())

	loopStart, _ := c.LoopStart()
	assert.Equal(t, int64(21000), loopStart)
}

func TestCaptureStartsAtFirstTimestamp(t *testing.T) {
	c := NewCycleCapturer(0.02)
	c.Capture(1, 5_000_000)
	c.Capture(2, 5_010_000)

	points := c.Points()
	require.Len(t, points, 2)
	assert.Equal(t, 0.0, points[0].Time)
	assert.InDelta(t, 0.01, points[1].Time, 1e-12)
}

func TestCaptureReset(t *testing.T) {
	c := NewCycleCapturer(0.02)
	feedSine(t, c)

	c.Reset()
	assert.Equal(t, Accumulating, c.State())
	assert.Equal(t, 0, c.Len())
	_, ok := c.LoopStart()
	assert.False(t, ok)
}

func TestCaptureIgnoresOutOfOrderTimestamps(t *testing.T) {
	c := NewCycleCapturer(0.02)
	require.False(t, c.Capture(1, 10_000))
	require.False(t, c.Capture(2, 15_000))

	// Volta no tempo: dentro e antes do início do ciclo
	assert.False(t, c.Capture(3, 12_000))
	assert.False(t, c.Capture(4, 9_000))
	assert.Equal(t, 2, c.Len())

	require.False(t, c.Capture(5, 16_000))
	points := c.Points()
	require.Len(t, points, 3)
	assert.Equal(t, 5.0, points[2].Voltage)
	assert.InDelta(t, 0.006, points[2].Time, 1e-12)
	assert.Equal(t, Accumulating, c.State())
}
