package rig

import (
	"context"
	"sync"
	"sync/atomic"

	"mcb_monitor/internal/models"
)

// ReadingQueue é uma fila limitada entre o worker da conexão e os
// consumidores. Cheia, descarta a leitura mais antiga; Push nunca bloqueia.
type ReadingQueue struct {
	mutex   sync.Mutex
	items   []models.Reading
	head    int
	count   int
	notify  chan struct{}
	dropped atomic.Int64
}

// NewReadingQueue cria uma fila com a capacidade informada
func NewReadingQueue(capacity int) *ReadingQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &ReadingQueue{
		items:  make([]models.Reading, capacity),
		notify: make(chan struct{}, 1),
	}
}

// Push enfileira uma leitura; retorna true se uma leitura antiga foi descartada
func (q *ReadingQueue) Push(r models.Reading) (dropped bool) {
	q.mutex.Lock()
	if q.count == len(q.items) {
		q.head = (q.head + 1) % len(q.items)
		q.count--
		dropped = true
	}
	q.items[(q.head+q.count)%len(q.items)] = r
	q.count++
	q.mutex.Unlock()

	if dropped {
		q.dropped.Add(1)
	}

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return dropped
}

// Drain remove e retorna até max leituras (todas se max <= 0), da mais antiga à mais nova
func (q *ReadingQueue) Drain(max int) []models.Reading {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	n := q.count
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}

	out := make([]models.Reading, n)
	for i := 0; i < n; i++ {
		out[i] = q.items[(q.head+i)%len(q.items)]
	}
	q.head = (q.head + n) % len(q.items)
	q.count -= n
	return out
}

// Wait bloqueia até haver leituras ou o contexto ser cancelado
func (q *ReadingQueue) Wait(ctx context.Context) bool {
	for {
		if q.Len() > 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-q.notify:
		}
	}
}

// Len retorna o número de leituras na fila
func (q *ReadingQueue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.count
}

// Dropped retorna o total de leituras descartadas por estouro
func (q *ReadingQueue) Dropped() int64 {
	return q.dropped.Load()
}
