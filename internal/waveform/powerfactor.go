package waveform

import (
	"fmt"
	"math"
	"sync/atomic"

	"mcb_monitor/internal/models"
)

// PowerFactor guarda a corrente alvo e o fator de potência vigentes.
// Leitores sempre observam um par consistente (nunca valores de atualizações diferentes).
type PowerFactor struct {
	state atomic.Pointer[models.PowerFactorState]
}

// NewPowerFactor cria o estado com os valores iniciais, sem validação
func NewPowerFactor(targetCurrent, powerFactor float64) *PowerFactor {
	p := &PowerFactor{}
	p.state.Store(&models.PowerFactorState{
		TargetCurrent: targetCurrent,
		PowerFactor:   powerFactor,
	})
	return p
}

// Set substitui os dois valores de uma vez
func (p *PowerFactor) Set(targetCurrent, powerFactor float64) error {
	if math.IsNaN(powerFactor) || powerFactor < 0 || powerFactor > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidPowerFactor, powerFactor)
	}
	if math.IsNaN(targetCurrent) || math.IsInf(targetCurrent, 0) || targetCurrent < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidCurrent, targetCurrent)
	}
	p.state.Store(&models.PowerFactorState{
		TargetCurrent: targetCurrent,
		PowerFactor:   powerFactor,
	})
	return nil
}

// Snapshot retorna uma cópia do estado atual
func (p *PowerFactor) Snapshot() models.PowerFactorState {
	return *p.state.Load()
}
