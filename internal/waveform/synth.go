package waveform

import (
	"math"
	"sort"

	"mcb_monitor/pkg/utils"
)

// CycleSynthesizer reconstrói uma onda contínua repetindo o ciclo de referência.
// A fase de um timestamp é (timestamp - loopStart) mod cycleDuration, calculada
// em microssegundos inteiros para que a repetição seja exata.
type CycleSynthesizer struct {
	capturer *CycleCapturer
}

// NewCycleSynthesizer cria um sintetizador sobre o ciclo do capturador
func NewCycleSynthesizer(capturer *CycleCapturer) *CycleSynthesizer {
	return &CycleSynthesizer{capturer: capturer}
}

// Synthesize retorna a tensão do ciclo na fase do timestamp; ok é falso
// enquanto o ciclo não foi capturado ou está vazio
func (s *CycleSynthesizer) Synthesize(timestampUs int64) (float64, bool) {
	c := s.capturer
	if c.state != Captured || len(c.points) == 0 {
		return 0, false
	}

	phase := utils.MicrosToSeconds(s.phaseMicros(timestampUs))
	points := c.points

	// Primeiro ponto com Time >= fase
	i := sort.Search(len(points), func(i int) bool {
		return points[i].Time >= phase
	})

	switch {
	case i == 0:
		return points[0].Voltage, true
	case i == len(points):
		return points[len(points)-1].Voltage, true
	}

	p1, p2 := points[i-1], points[i]
	if p2.Time == p1.Time {
		return p1.Voltage, true
	}
	v := p1.Voltage + (p2.Voltage-p1.Voltage)*(phase-p1.Time)/(p2.Time-p1.Time)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return p1.Voltage, true
	}
	return v, true
}

// Phase retorna a fase (segundos) do timestamp dentro do ciclo de referência
func (s *CycleSynthesizer) Phase(timestampUs int64) (float64, bool) {
	if !s.capturer.Captured() {
		return 0, false
	}
	return utils.MicrosToSeconds(s.phaseMicros(timestampUs)), true
}

func (s *CycleSynthesizer) phaseMicros(timestampUs int64) int64 {
	d := s.capturer.durationUs
	phase := (timestampUs - s.capturer.loopStartUs) % d
	if phase < 0 {
		phase += d
	}
	return phase
}
