package waveform

import "math"

// RollingWindow guarda os N valores mais recentes em ordem de chegada.
// Ao exceder a capacidade o valor mais antigo é descartado (FIFO).
type RollingWindow struct {
	values []float64
	start  int
	count  int
}

// NewRollingWindow cria uma janela com a capacidade indicada
func NewRollingWindow(capacity int) *RollingWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &RollingWindow{values: make([]float64, capacity)}
}

// Push adiciona um valor, descartando o mais antigo se a janela estiver cheia
func (w *RollingWindow) Push(v float64) {
	if w.count < len(w.values) {
		w.values[(w.start+w.count)%len(w.values)] = v
		w.count++
		return
	}
	w.values[w.start] = v
	w.start = (w.start + 1) % len(w.values)
}

// Len retorna o número de valores na janela
func (w *RollingWindow) Len() int {
	return w.count
}

// Min retorna o menor valor da janela; ok é falso com a janela vazia
func (w *RollingWindow) Min() (min float64, ok bool) {
	if w.count == 0 {
		return 0, false
	}
	min = math.Inf(1)
	for i := 0; i < w.count; i++ {
		if v := w.values[(w.start+i)%len(w.values)]; v < min {
			min = v
		}
	}
	return min, true
}

// Last retorna uma cópia dos n valores mais recentes, do mais antigo ao mais novo
func (w *RollingWindow) Last(n int) []float64 {
	if n > w.count {
		n = w.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	first := w.count - n
	for i := 0; i < n; i++ {
		out[i] = w.values[(w.start+first+i)%len(w.values)]
	}
	return out
}

// Values retorna uma cópia de todos os valores em ordem de chegada
func (w *RollingWindow) Values() []float64 {
	return w.Last(w.count)
}

// Reset esvazia a janela mantendo a capacidade
func (w *RollingWindow) Reset() {
	w.start = 0
	w.count = 0
}
