package utils

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"
)

// Float32ToBytes converte um valor float32 para bytes (IEEE 754, big endian)
func Float32ToBytes(val float32) []byte {
	bytes := make([]byte, 4)
	binary.BigEndian.PutUint32(bytes, math.Float32bits(val))
	return bytes
}

// Int16ToBytes converte um valor int16 para bytes
func Int16ToBytes(val int16) []byte {
	bytes := make([]byte, 2)
	binary.BigEndian.PutUint16(bytes, uint16(val))
	return bytes
}

// FormatNumber formata um número com a menor representação exata
// (16 -> "16", 0.01 -> "0.01")
func FormatNumber(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// FormatDecimal formata um número sempre com parte decimal
// (1000 -> "1000.0", 0.8 -> "0.8"), o formato esperado pelo firmware
func FormatDecimal(value float64) string {
	s := strconv.FormatFloat(value, 'f', -1, 64)
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return s
	}
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// FormatFloat formata um float com precisão específica, sem zeros à direita
func FormatFloat(value float64, precision int) string {
	s := strconv.FormatFloat(value, 'f', precision, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s
}
