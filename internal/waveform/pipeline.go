package waveform

import (
	"fmt"

	"mcb_monitor/internal/config"
	"mcb_monitor/internal/models"
	"mcb_monitor/pkg/logger"
	"mcb_monitor/pkg/utils"
)

var log = logger.With("waveform")

// Pipeline transforma amostras brutas em leituras de tensão e corrente:
// remove o offset DC, captura o primeiro ciclo, sintetiza a onda periódica
// e estima a corrente. Uma instância por conexão; não é segura para uso
// concorrente, exceto pelo PowerFactor compartilhado.
type Pipeline struct {
	offset    *OffsetTracker
	capturer  *CycleCapturer
	synth     *CycleSynthesizer
	estimator *CurrentEstimator
	history   *RollingWindow
	pf        *PowerFactor

	processed int64
	lastUs    int64
}

// NewPipeline cria um pipeline. Se pf for nil é criado um estado próprio com
// os valores iniciais da configuração.
func NewPipeline(cfg config.PipelineConfig, pf *PowerFactor) *Pipeline {
	if pf == nil {
		pf = NewPowerFactor(cfg.TargetCurrent, cfg.PowerFactor)
	}
	capturer := NewCycleCapturer(cfg.CycleDuration)
	return &Pipeline{
		offset:    NewOffsetTracker(cfg.WindowSize, cfg.MinOffsetSamples),
		capturer:  capturer,
		synth:     NewCycleSynthesizer(capturer),
		estimator: NewCurrentEstimator(cfg),
		history:   NewRollingWindow(cfg.HistorySize),
		pf:        pf,
	}
}

// Process executa todas as etapas para uma amostra e sempre emite uma leitura
func (p *Pipeline) Process(raw float64, timestampUs int64) models.Reading {
	p.processed++
	p.lastUs = timestampUs

	offset := p.offset.Update(raw)
	ac := p.offset.Remove(raw, offset)

	wasCaptured := p.capturer.Captured()
	captured := guardBool("captura", false, func() bool {
		return p.capturer.Capture(ac, timestampUs)
	})
	if captured && !wasCaptured {
		log.Infof("Ciclo de referência capturado: %d pontos em %v",
			p.capturer.Len(), utils.MicrosToDuration(p.capturer.DurationMicros()))
	}

	voltage := ac
	if captured {
		voltage = guardFloat("síntese", ac, func() float64 {
			if v, ok := p.synth.Synthesize(timestampUs); ok {
				return v
			}
			return ac
		})
	}

	state := p.pf.Snapshot()
	history := p.history.Last(p.estimator.HistoryNeeded())
	current := p.estimator.Estimate(voltage, timestampUs, state, history)

	p.history.Push(voltage)

	reading := models.Reading{
		Voltage:          voltage,
		Current:          current,
		Timestamp:        utils.MicrosToSeconds(timestampUs),
		PowerFactor:      state.PowerFactor,
		RawVoltage:       raw,
		CycleCaptured:    p.capturer.Captured(),
		CycleSampleCount: p.capturer.Len(),
	}
	if offset.Valid {
		reading.DCOffset = offset.Value
	}
	return reading
}

// ProcessSample é um atalho para Process com uma amostra decodificada
func (p *Pipeline) ProcessSample(s models.Sample) models.Reading {
	return p.Process(s.RawValue, s.Timestamp)
}

// SetTargetCurrentAndPowerFactor atualiza o estado compartilhado
func (p *Pipeline) SetTargetCurrentAndPowerFactor(targetCurrent, powerFactor float64) error {
	return p.pf.Set(targetCurrent, powerFactor)
}

// PowerFactor retorna o estado de fator de potência usado pelo pipeline
func (p *Pipeline) PowerFactor() *PowerFactor {
	return p.pf
}

// CycleState retorna o estado da captura do ciclo de referência
func (p *Pipeline) CycleState() CaptureState {
	return p.capturer.State()
}

// ReferenceCycle retorna uma cópia do ciclo de referência capturado
func (p *Pipeline) ReferenceCycle() []CyclePoint {
	return p.capturer.Points()
}

// Offset retorna a estimativa atual de offset DC
func (p *Pipeline) Offset() Offset {
	return p.offset.Current()
}

// Processed retorna o número de amostras processadas desde o último Reset
func (p *Pipeline) Processed() int64 {
	return p.processed
}

// Reset descarta offset, ciclo e histórico. O fator de potência é mantido.
func (p *Pipeline) Reset() {
	p.offset.Reset()
	p.capturer.Reset()
	p.history.Reset()
	p.processed = 0
	p.lastUs = 0
}

// Diagnostics resume o estado interno para consulta externa
func (p *Pipeline) Diagnostics() models.PipelineDiagnostics {
	offset := p.Offset()
	d := models.PipelineDiagnostics{
		CycleState:      p.CycleState().String(),
		ReferencePoints: p.capturer.Len(),
		DCOffset:        offset.Value,
		OffsetValid:     offset.Valid,
		OffsetWindow:    p.offset.WindowLen(),
		Processed:       p.Processed(),
	}
	if loopStart, ok := p.capturer.LoopStart(); ok {
		d.LoopStart = utils.MicrosToSeconds(loopStart)
	}
	if phase, ok := p.synth.Phase(p.lastUs); ok {
		d.Phase = phase
	}
	return d
}

func guardBool(stage string, fallback bool, fn func() bool) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Warnf("Falha na etapa de %s: %v", stage, fmt.Sprint(r))
			result = fallback
		}
	}()
	return fn()
}

func guardFloat(stage string, fallback float64, fn func() float64) (result float64) {
	defer func() {
		if r := recover(); r != nil {
			log.Warnf("Falha na etapa de %s: %v", stage, fmt.Sprint(r))
			result = fallback
		}
	}()
	return fn()
}
