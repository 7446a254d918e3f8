package waveform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcb_monitor/internal/config"
	"mcb_monitor/internal/models"
)

func TestPipelineWarmupPassThrough(t *testing.T) {
	p := NewPipeline(config.DefaultPipeline(), nil)

	for i, raw := range []float64{1750, 1760, 1740, 1755} {
		r := p.Process(raw, int64(i*1000))
		assert.Equal(t, raw, r.Voltage)
		assert.Equal(t, raw, r.RawVoltage)
		assert.Equal(t, 0.0, r.DCOffset)
		assert.False(t, r.CycleCaptured)
		// histórico curto: fallback de escala
		assert.InDelta(t, raw*0.1, r.Current, 1e-9)
	}
	assert.False(t, p.Offset().Valid)
}

func TestPipelineRemovesOffset(t *testing.T) {
	p := NewPipeline(config.DefaultPipeline(), nil)
	raws := []float64{1750, 1755, 1745, 1760, 1738, 1752, 1748, 1751, 1749, 1753, 1747, 1756}

	var readings []models.Reading
	for i, raw := range raws {
		readings = append(readings, p.Process(raw, int64(i*1000)))
	}

	for _, r := range readings[9:] {
		assert.Equal(t, 1738.0, r.DCOffset)
		assert.Equal(t, r.RawVoltage-1738, r.Voltage)
	}
	assert.Equal(t, int64(len(raws)), p.Processed())
}

func TestPipelineTimestampInSeconds(t *testing.T) {
	p := NewPipeline(config.DefaultPipeline(), nil)
	r := p.Process(1, 1_500_000)
	assert.Equal(t, 1.5, r.Timestamp)
}

func TestPipelineSynthesizesAfterCapture(t *testing.T) {
	p := NewPipeline(config.DefaultPipeline(), nil)

	for i := 0; i <= 21; i++ {
		ts := int64(i * 1000)
		p.Process(sine(ts)+1750, ts)
	}
	require.Equal(t, Captured, p.CycleState())
	assert.Len(t, p.ReferenceCycle(), 21)

	// Após a captura a tensão vem do ciclo, não da amostra bruta
	a := p.Process(0, 21000+20000)
	b := p.Process(99999, 21000+40000)
	assert.True(t, a.CycleCaptured)
	assert.Equal(t, 21, a.CycleSampleCount)
	assert.Equal(t, a.Voltage, b.Voltage)
}

func TestPipelineDeterministic(t *testing.T) {
	run := func() []models.Reading {
		p := NewPipeline(config.DefaultPipeline(), nil)
		var out []models.Reading
		for i := 0; i < 300; i++ {
			ts := int64(i * 1000)
			out = append(out, p.Process(sine(ts)+1750, ts))
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestPipelineSharedPowerFactor(t *testing.T) {
	pf := NewPowerFactor(1000, 0.8)
	p := NewPipeline(config.DefaultPipeline(), pf)

	require.NoError(t, p.SetTargetCurrentAndPowerFactor(500, 0.5))
	assert.Equal(t, 0.5, pf.Snapshot().PowerFactor)

	r := p.Process(100, 0)
	assert.Equal(t, 0.5, r.PowerFactor)
}

func TestPipelineReset(t *testing.T) {
	p := NewPipeline(config.DefaultPipeline(), nil)
	for i := 0; i <= 25; i++ {
		p.Process(1750, int64(i*1000))
	}
	require.Equal(t, Captured, p.CycleState())

	p.Reset()
	assert.Equal(t, Accumulating, p.CycleState())
	assert.False(t, p.Offset().Valid)
	assert.Equal(t, int64(0), p.Processed())
	assert.Equal(t, 0.8, p.PowerFactor().Snapshot().PowerFactor)
}

func TestPipelineDiagnostics(t *testing.T) {
	p := NewPipeline(config.DefaultPipeline(), nil)

	d := p.Diagnostics()
	assert.Equal(t, "accumulating", d.CycleState)
	assert.False(t, d.OffsetValid)

	for i := 0; i <= 21; i++ {
		ts := int64(i * 1000)
		p.Process(sine(ts)+1750, ts)
	}
	p.Process(1750, 26_000)

	d = p.Diagnostics()
	assert.Equal(t, "captured", d.CycleState)
	assert.Equal(t, 21, d.ReferencePoints)
	assert.Equal(t, 0.021, d.LoopStart)
	assert.InDelta(t, 0.005, d.Phase, 1e-12)
	assert.True(t, d.OffsetValid)
	assert.Equal(t, 23, d.OffsetWindow)
	assert.Equal(t, int64(23), d.Processed)
}

func TestGuardsReturnFallbackOnPanic(t *testing.T) {
	var nilPoints []CyclePoint

	floatTests := []struct {
		name     string
		fallback float64
		fn       func() float64
		want     float64
	}{
		{"sem falha", -1, func() float64 { return 2.5 }, 2.5},
		{"panic com valor", 7, func() float64 { panic("falha") }, 7},
		{"índice fora da faixa", 3, func() float64 { return nilPoints[1].Voltage }, 3},
		{"ponteiro nulo", 0, func() float64 {
			var s *CycleSynthesizer
			v, _ := s.Synthesize(1)
			return v
		}, 0},
	}
	for _, tt := range floatTests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.Equal(t, tt.want, guardFloat("teste", tt.fallback, tt.fn))
			})
		})
	}

	boolTests := []struct {
		name     string
		fallback bool
		fn       func() bool
		want     bool
	}{
		{"sem falha", false, func() bool { return true }, true},
		{"panic", true, func() bool { panic(errors.New("falha")) }, true},
		{"ponteiro nulo", false, func() bool {
			var c *CycleCapturer
			return c.Capture(1, 1)
		}, false},
	}
	for _, tt := range boolTests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.Equal(t, tt.want, guardBool("teste", tt.fallback, tt.fn))
			})
		})
	}
}
