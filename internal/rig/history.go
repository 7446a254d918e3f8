package rig

import (
	"sync"

	"mcb_monitor/internal/models"
)

// ReadingHistory guarda as leituras mais recentes em memória. Com capacidade
// zero não guarda nada.
type ReadingHistory struct {
	mutex sync.RWMutex
	items []models.Reading
	start int
	count int
}

// NewReadingHistory cria um histórico com a capacidade informada
func NewReadingHistory(capacity int) *ReadingHistory {
	if capacity < 0 {
		capacity = 0
	}
	return &ReadingHistory{items: make([]models.Reading, capacity)}
}

// Add adiciona uma leitura, sobrescrevendo a mais antiga quando cheio
func (h *ReadingHistory) Add(r models.Reading) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if len(h.items) == 0 {
		return
	}
	if h.count < len(h.items) {
		h.items[(h.start+h.count)%len(h.items)] = r
		h.count++
		return
	}
	h.items[h.start] = r
	h.start = (h.start + 1) % len(h.items)
}

// Recent retorna cópia das últimas limit leituras (todas se limit <= 0),
// da mais antiga à mais nova
func (h *ReadingHistory) Recent(limit int) []models.Reading {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	n := h.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.Reading, n)
	first := h.count - n
	for i := 0; i < n; i++ {
		out[i] = h.items[(h.start+first+i)%len(h.items)]
	}
	return out
}

// Len retorna quantas leituras estão guardadas
func (h *ReadingHistory) Len() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.count
}

// Clear descarta todas as leituras
func (h *ReadingHistory) Clear() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.start = 0
	h.count = 0
}
