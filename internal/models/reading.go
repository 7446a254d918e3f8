package models

import (
	"time"

	"mcb_monitor/pkg/utils"
)

// Sample é uma amostra bruta recebida da bancada
type Sample struct {
	RawValue  float64 // Valor bruto do ADC (com offset DC)
	Timestamp int64   // Microssegundos desde o início do microcontrolador
}

// Seconds retorna o timestamp da amostra em segundos
func (s Sample) Seconds() float64 {
	return utils.MicrosToSeconds(s.Timestamp)
}

// Reading é a unidade emitida pelo pipeline para cada amostra processada
type Reading struct {
	Voltage          float64 `json:"voltage"`
	Current          float64 `json:"current"`
	Timestamp        float64 `json:"timestamp"` // segundos
	PowerFactor      float64 `json:"powerFactor"`
	RawVoltage       float64 `json:"rawVoltage"`
	DCOffset         float64 `json:"dcOffset"` // 0 enquanto o offset não foi calculado
	CycleCaptured    bool    `json:"cycleCaptured"`
	CycleSampleCount int     `json:"cycleSampleCount"`
}

// PowerFactorState é o alvo de corrente e fator de potência vigentes
type PowerFactorState struct {
	TargetCurrent float64 `json:"targetCurrent"`
	PowerFactor   float64 `json:"powerFactor"`
}

// PipelineDiagnostics resume o estado interno do pipeline da conexão atual
type PipelineDiagnostics struct {
	CycleState      string  `json:"cycleState"`
	ReferencePoints int     `json:"referencePoints"`
	LoopStart       float64 `json:"loopStart"` // segundos; 0 antes da captura
	Phase           float64 `json:"phase"`     // fase da última amostra no ciclo
	DCOffset        float64 `json:"dcOffset"`
	OffsetValid     bool    `json:"offsetValid"`
	OffsetWindow    int     `json:"offsetWindow"`
	Processed       int64   `json:"processed"`
}

// DeviceMessage é um registro de texto da bancada que não é uma amostra
type DeviceMessage struct {
	Text         string    `json:"text"`
	ReceivedAt   time.Time `json:"receivedAt"`
	Confirmation bool      `json:"confirmation"` // confirmação de configuração R-L
}

// Estados de conexão da bancada
const (
	StatusIdle         = "idle"
	StatusConnecting   = "connecting"
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusError        = "error"
)

// RigStatus representa o estado atual da conexão com a bancada
type RigStatus struct {
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
	SessionID        string    `json:"sessionId,omitempty"`
	Address          string    `json:"address,omitempty"`
	LastError        string    `json:"lastError,omitempty"`
	ErrorCount       int       `json:"errorCount,omitempty"`
	SamplesProcessed int64     `json:"samplesProcessed"`
	MalformedRecords int64     `json:"malformedRecords"`
	DeviceMessages   int64     `json:"deviceMessages"`
	DroppedReadings  int64     `json:"droppedReadings"`
}

// Label retorna o texto de notificação ("connected", "error: <motivo>", ...)
func (s RigStatus) Label() string {
	if s.Status == StatusError && s.LastError != "" {
		return StatusError + ": " + s.LastError
	}
	return s.Status
}
