package waveform

import "errors"

var (
	// ErrInvalidPowerFactor indica fator de potência fora de [0, 1]
	ErrInvalidPowerFactor = errors.New("fator de potência fora de [0, 1]")
	// ErrInvalidCurrent indica corrente alvo negativa ou não finita
	ErrInvalidCurrent = errors.New("corrente alvo inválida")
)
