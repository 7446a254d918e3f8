package waveform

import (
	"math"

	"mcb_monitor/pkg/utils"
)

// CaptureState é o estado da captura do ciclo de referência
type CaptureState int

const (
	// Accumulating: ainda coletando o primeiro período após o início do fluxo
	Accumulating CaptureState = iota
	// Captured: ciclo de referência finalizado (terminal)
	Captured
)

func (s CaptureState) String() string {
	if s == Captured {
		return "captured"
	}
	return "accumulating"
}

// CyclePoint é um ponto do ciclo de referência
type CyclePoint struct {
	Time    float64 `json:"time"`    // segundos desde a primeira amostra
	Voltage float64 `json:"voltage"` // tensão AC
}

// CycleCapturer grava o primeiro período (cycleDuration) do fluxo como ciclo
// de referência. A transição Accumulating -> Captured acontece uma única vez.
type CycleCapturer struct {
	durationUs  int64
	started     bool
	startUs     int64
	lastUs      int64
	loopStartUs int64
	state       CaptureState
	points      []CyclePoint
}

// NewCycleCapturer cria um capturador para ciclos de cycleDuration segundos
func NewCycleCapturer(cycleDuration float64) *CycleCapturer {
	return &CycleCapturer{durationUs: secondsToMicros(cycleDuration)}
}

// Capture registra uma amostra AC; retorna true a partir da amostra que
// finaliza o ciclo de referência
func (c *CycleCapturer) Capture(ac float64, timestampUs int64) bool {
	if c.state == Captured {
		return true
	}

	if !c.started {
		c.started = true
		c.startUs = timestampUs
		c.lastUs = timestampUs
	}

	elapsed := timestampUs - c.startUs
	if elapsed <= c.durationUs {
		// Amostras fora de ordem quebrariam a monotonicidade do ciclo
		if timestampUs < c.lastUs {
			return false
		}
		c.lastUs = timestampUs
		c.points = append(c.points, CyclePoint{
			Time:    utils.MicrosToSeconds(elapsed),
			Voltage: ac,
		})
		return false
	}

	c.state = Captured
	c.loopStartUs = timestampUs
	return true
}

// State retorna o estado da captura
func (c *CycleCapturer) State() CaptureState {
	return c.state
}

// Captured informa se o ciclo de referência foi finalizado
func (c *CycleCapturer) Captured() bool {
	return c.state == Captured
}

// Len retorna o número de pontos do ciclo de referência
func (c *CycleCapturer) Len() int {
	return len(c.points)
}

// LoopStart retorna o timestamp (µs) em que o ciclo foi finalizado
func (c *CycleCapturer) LoopStart() (int64, bool) {
	return c.loopStartUs, c.state == Captured
}

// Points retorna uma cópia do ciclo de referência
func (c *CycleCapturer) Points() []CyclePoint {
	out := make([]CyclePoint, len(c.points))
	copy(out, c.points)
	return out
}

// DurationMicros retorna a duração do ciclo em microssegundos
func (c *CycleCapturer) DurationMicros() int64 {
	return c.durationUs
}

// Reset volta ao estado inicial para uma nova conexão
func (c *CycleCapturer) Reset() {
	c.started = false
	c.startUs = 0
	c.lastUs = 0
	c.loopStartUs = 0
	c.state = Accumulating
	c.points = nil
}

func secondsToMicros(s float64) int64 {
	us := int64(math.Round(s * 1e6))
	if us < 1 {
		us = 1
	}
	return us
}
