package models

import "time"

// Tipos de mensagem WebSocket
const (
	MessageWelcome       = "welcome"
	MessageReading       = "reading"
	MessageStatus        = "status"
	MessageDeviceMessage = "device_message"
	MessagePowerFactor   = "power_factor"
	MessagePing          = "ping"
	MessagePong          = "pong"
	MessageError         = "error"
	MessageCommandResult = "command_result"
	MessageHistory       = "history"
)

// WebSocketMessage representa a estrutura base de todas as mensagens WebSocket
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// ReadingMessage transporta uma leitura reconstruída
type ReadingMessage struct {
	WebSocketMessage
	Reading Reading `json:"reading"`
}

// StatusMessage é uma mensagem específica para atualizações de status
type StatusMessage struct {
	WebSocketMessage
	Status     string `json:"status"`
	Label      string `json:"label"`
	SessionID  string `json:"sessionId,omitempty"`
	LastError  string `json:"lastError,omitempty"`
	ErrorCount int    `json:"errorCount,omitempty"`
}

// DeviceTextMessage repassa um texto recebido da bancada
type DeviceTextMessage struct {
	WebSocketMessage
	Message DeviceMessage `json:"message"`
}

// PowerFactorMessage informa o alvo de corrente e fator de potência vigentes
type PowerFactorMessage struct {
	WebSocketMessage
	State PowerFactorState `json:"state"`
}

// CommandResultMessage informa o resultado de um comando enviado à bancada
type CommandResultMessage struct {
	WebSocketMessage
	Command   string `json:"command"`
	RequestID string `json:"requestId,omitempty"`
	OK        bool   `json:"ok"`
}

// CommandMessage é uma mensagem de comando do cliente para o servidor
type CommandMessage struct {
	Type   string                 `json:"type"`
	Params map[string]interface{} `json:"params,omitempty"`
	ID     string                 `json:"id,omitempty"`
}

// ClientCommand representa um comando enviado pelo cliente
type ClientCommand struct {
	Command  string
	Params   map[string]interface{}
	ClientID string
	ID       string
}

// HistoryMessage transporta as leituras recentes pedidas por um cliente
type HistoryMessage struct {
	WebSocketMessage
	Readings  []Reading `json:"readings"`
	Count     int       `json:"count"`
	RequestID string    `json:"requestId,omitempty"`
}

// PongMessage representa um pong enviado pelo servidor
type PongMessage struct {
	WebSocketMessage
	Time       int64 `json:"time"`
	ServerTime int64 `json:"serverTime"`
}
