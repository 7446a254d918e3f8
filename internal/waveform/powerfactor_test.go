package waveform

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPowerFactorSet(t *testing.T) {
	pf := NewPowerFactor(1000, 0.8)
	assert.Equal(t, 0.8, pf.Snapshot().PowerFactor)

	require.NoError(t, pf.Set(1500, 0.9))
	state := pf.Snapshot()
	assert.Equal(t, 1500.0, state.TargetCurrent)
	assert.Equal(t, 0.9, state.PowerFactor)
}

func TestPowerFactorRejectsInvalid(t *testing.T) {
	pf := NewPowerFactor(1000, 0.8)

	assert.ErrorIs(t, pf.Set(1000, 1.2), ErrInvalidPowerFactor)
	assert.ErrorIs(t, pf.Set(1000, -0.1), ErrInvalidPowerFactor)
	assert.ErrorIs(t, pf.Set(1000, math.NaN()), ErrInvalidPowerFactor)
	assert.ErrorIs(t, pf.Set(-1, 0.5), ErrInvalidCurrent)
	assert.ErrorIs(t, pf.Set(math.Inf(1), 0.5), ErrInvalidCurrent)

	state := pf.Snapshot()
	assert.Equal(t, 1000.0, state.TargetCurrent)
	assert.Equal(t, 0.8, state.PowerFactor)
}

func TestPowerFactorSnapshotIsConsistent(t *testing.T) {
	pf := NewPowerFactor(0, 0)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			c := float64(i % 1001)
			_ = pf.Set(c, c/1000)
		}
	}()

	for i := 0; i < 10000; i++ {
		s := pf.Snapshot()
		require.Equal(t, s.TargetCurrent/1000, s.PowerFactor)
	}
	close(stop)
	wg.Wait()
}
