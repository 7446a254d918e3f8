package waveform

import (
	"math"

	"mcb_monitor/internal/config"
	"mcb_monitor/internal/models"
)

// CurrentEstimator estima a corrente instantânea a partir da tensão, da
// corrente alvo e do fator de potência, usando a impedância derivada do RMS
// recente da tensão.
type CurrentEstimator struct {
	rmsWindow        int
	minHistory       int
	fallbackScale    float64
	defaultImpedance float64
	defaultVRMS      float64
}

// NewCurrentEstimator cria um estimador com os parâmetros do pipeline
func NewCurrentEstimator(cfg config.PipelineConfig) *CurrentEstimator {
	return &CurrentEstimator{
		rmsWindow:        cfg.RMSWindow,
		minHistory:       cfg.MinRMSHistory,
		fallbackScale:    cfg.FallbackScale,
		defaultImpedance: cfg.DefaultImpedance,
		defaultVRMS:      cfg.DefaultVRMS,
	}
}

// HistoryNeeded retorna quantas tensões recentes Estimate precisa receber
func (e *CurrentEstimator) HistoryNeeded() int {
	if e.minHistory > e.rmsWindow {
		return e.minHistory
	}
	return e.rmsWindow
}

// Estimate retorna a corrente estimada. history são as tensões anteriores,
// da mais antiga à mais recente. Qualquer falha numérica resulta em 0.
func (e *CurrentEstimator) Estimate(voltage float64, timestampUs int64, state models.PowerFactorState, history []float64) (current float64) {
	defer func() {
		if r := recover(); r != nil {
			current = 0
		}
	}()

	pf := math.Max(0, math.Min(1, state.PowerFactor))
	phaseAngle := math.Acos(pf)

	if len(history) < e.minHistory {
		return finiteOrZero(voltage * e.fallbackScale)
	}

	impedance := e.impedance(e.rms(history), state.TargetCurrent)
	if !(impedance > 0) {
		return 0
	}

	amplitude := voltage / impedance
	return finiteOrZero(amplitude * math.Cos(phaseAngle))
}

// rms calcula o RMS das últimas rmsWindow tensões
func (e *CurrentEstimator) rms(history []float64) float64 {
	recent := history
	if len(recent) > e.rmsWindow {
		recent = recent[len(recent)-e.rmsWindow:]
	}
	if len(recent) == 0 {
		return e.defaultVRMS
	}
	var sum float64
	for _, v := range recent {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(recent)))
}

func (e *CurrentEstimator) impedance(vRMS, targetCurrent float64) float64 {
	if vRMS > 1.0 && targetCurrent > 0 {
		return vRMS / targetCurrent
	}
	return e.defaultImpedance
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
