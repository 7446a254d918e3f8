package rig

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"mcb_monitor/internal/models"
)

// RecordKind identifica o tipo de um registro decodificado
type RecordKind int

const (
	// KindSample é um registro "tensão,timestamp"
	KindSample RecordKind = iota
	// KindMessage é um texto de status ou confirmação da bancada
	KindMessage
)

// Record é o resultado da decodificação de um registro
type Record struct {
	Kind    RecordKind
	Sample  models.Sample
	Message models.DeviceMessage
}

// Decode interpreta um registro. Dois campos numéricos viram amostra;
// qualquer outro texto é repassado como mensagem da bancada. Um registro
// que começa com número mas não tem exatamente dois campos decodificáveis
// retorna ErrMalformedRecord.
func Decode(record string, receivedAt time.Time) (Record, error) {
	record = strings.TrimSpace(record)
	if record == "" {
		return Record{}, ErrEmptyRecord
	}

	fields := strings.Split(record, ",")
	if looksNumeric(fields[0]) {
		if len(fields) != 2 {
			return Record{}, fmt.Errorf("%w: %q: esperados 2 campos, recebidos %d", ErrMalformedRecord, record, len(fields))
		}
		sample, err := parseSample(fields[0], fields[1])
		if err != nil {
			return Record{}, fmt.Errorf("%w: %q: %v", ErrMalformedRecord, record, err)
		}
		return Record{Kind: KindSample, Sample: sample}, nil
	}

	return Record{
		Kind: KindMessage,
		Message: models.DeviceMessage{
			Text:         record,
			ReceivedAt:   receivedAt,
			Confirmation: isConfirmation(record),
		},
	}, nil
}

func parseSample(rawField, tsField string) (models.Sample, error) {
	raw, err := strconv.ParseFloat(strings.TrimSpace(rawField), 64)
	if err != nil {
		return models.Sample{}, err
	}
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return models.Sample{}, fmt.Errorf("valor não finito")
	}

	tsField = strings.TrimSpace(tsField)
	ts, err := strconv.ParseInt(tsField, 10, 64)
	if err != nil {
		// Alguns firmwares enviam o timestamp como float ("123456.0")
		f, ferr := strconv.ParseFloat(tsField, 64)
		if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt64/2 {
			return models.Sample{}, fmt.Errorf("timestamp inválido %q", tsField)
		}
		ts = int64(math.Round(f))
	}
	return models.Sample{RawValue: raw, Timestamp: ts}, nil
}

func looksNumeric(field string) bool {
	field = strings.TrimSpace(field)
	if field == "" {
		return false
	}
	switch c := field[0]; {
	case c >= '0' && c <= '9', c == '-', c == '+', c == '.':
		return true
	}
	return false
}

func isConfirmation(text string) bool {
	upper := strings.ToUpper(text)
	return strings.HasPrefix(upper, "CONFIG") || strings.HasPrefix(upper, "RL")
}
