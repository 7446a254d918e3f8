package rig

import (
	"errors"
	"net"
	"os"
)

var (
	// ErrNotConnected indica que não há conexão ativa com a bancada
	ErrNotConnected = errors.New("bancada não conectada")
	// ErrMalformedRecord indica um registro numérico que não pôde ser decodificado
	ErrMalformedRecord = errors.New("registro malformado")
	// ErrEmptyRecord indica um registro vazio entre delimitadores
	ErrEmptyRecord = errors.New("registro vazio")
	// ErrInvalidCommand indica parâmetros de comando fora da faixa
	ErrInvalidCommand = errors.New("comando inválido")
	// ErrRecordTooLong indica que o buffer excedeu o tamanho máximo sem delimitador
	ErrRecordTooLong = errors.New("registro excede o tamanho máximo")
)

// isTimeout verifica se o erro é um timeout de leitura (sem efeito colateral)
func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
