package waveform

// Offset é a estimativa de offset DC; Valid é falso durante o aquecimento
type Offset struct {
	Value float64
	Valid bool
}

// OffsetTracker estima o offset DC como o mínimo da janela de amostras brutas.
// Assume que o pico negativo da onda AC toca a linha de base dentro da janela.
type OffsetTracker struct {
	window     *RollingWindow
	minSamples int
	current    Offset
}

// NewOffsetTracker cria um rastreador com janela de windowSize amostras que
// passa a produzir offset a partir de minSamples amostras
func NewOffsetTracker(windowSize, minSamples int) *OffsetTracker {
	return &OffsetTracker{
		window:     NewRollingWindow(windowSize),
		minSamples: minSamples,
	}
}

// Update adiciona uma amostra bruta e retorna o offset atual
func (t *OffsetTracker) Update(raw float64) Offset {
	t.window.Push(raw)
	if t.window.Len() >= t.minSamples {
		if min, ok := t.window.Min(); ok {
			t.current = Offset{Value: min, Valid: true}
		}
	}
	return t.current
}

// Remove subtrai o offset da amostra; sem offset válido a amostra passa inalterada
func (t *OffsetTracker) Remove(raw float64, offset Offset) float64 {
	if !offset.Valid {
		return raw
	}
	return raw - offset.Value
}

// Current retorna a última estimativa de offset
func (t *OffsetTracker) Current() Offset {
	return t.current
}

// WindowLen retorna o número de amostras na janela
func (t *OffsetTracker) WindowLen() int {
	return t.window.Len()
}

// Reset descarta a janela e o offset
func (t *OffsetTracker) Reset() {
	t.window.Reset()
	t.current = Offset{}
}
