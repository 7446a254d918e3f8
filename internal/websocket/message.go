package websocket

import (
	"encoding/json"
	"errors"
	"time"

	"mcb_monitor/internal/models"
)

var errBancadaIndisponivel = errors.New("serviço da bancada indisponível")

// NewReadingMessage cria uma mensagem com uma leitura
func NewReadingMessage(reading models.Reading) *models.ReadingMessage {
	return &models.ReadingMessage{
		WebSocketMessage: models.WebSocketMessage{
			Type:      models.MessageReading,
			Timestamp: time.Now(),
		},
		Reading: reading,
	}
}

// NewStatusMessage cria uma nova mensagem de status
func NewStatusMessage(status models.RigStatus) *models.StatusMessage {
	return &models.StatusMessage{
		WebSocketMessage: models.WebSocketMessage{
			Type:      models.MessageStatus,
			Timestamp: time.Now(),
		},
		Status:     status.Status,
		Label:      status.Label(),
		SessionID:  status.SessionID,
		LastError:  status.LastError,
		ErrorCount: status.ErrorCount,
	}
}

// NewDeviceTextMessage cria uma mensagem com um texto da bancada
func NewDeviceTextMessage(msg models.DeviceMessage) *models.DeviceTextMessage {
	return &models.DeviceTextMessage{
		WebSocketMessage: models.WebSocketMessage{
			Type:      models.MessageDeviceMessage,
			Timestamp: time.Now(),
		},
		Message: msg,
	}
}

// NewPowerFactorMessage cria uma mensagem com o estado de fator de potência
func NewPowerFactorMessage(state models.PowerFactorState) *models.PowerFactorMessage {
	return &models.PowerFactorMessage{
		WebSocketMessage: models.WebSocketMessage{
			Type:      models.MessagePowerFactor,
			Timestamp: time.Now(),
		},
		State: state,
	}
}

// NewCommandResultMessage cria o resultado de um comando; err nil indica sucesso
func NewCommandResultMessage(command, requestID string, err error) *models.CommandResultMessage {
	msg := &models.CommandResultMessage{
		WebSocketMessage: models.WebSocketMessage{
			Type:      models.MessageCommandResult,
			Timestamp: time.Now(),
		},
		Command:   command,
		RequestID: requestID,
		OK:        err == nil,
	}
	if err != nil {
		msg.Error = err.Error()
	}
	return msg
}

// NewHistoryMessage cria a resposta de get_history
func NewHistoryMessage(readings []models.Reading, requestID string) *models.HistoryMessage {
	if readings == nil {
		readings = []models.Reading{}
	}
	return &models.HistoryMessage{
		WebSocketMessage: models.WebSocketMessage{
			Type:      models.MessageHistory,
			Timestamp: time.Now(),
		},
		Readings:  readings,
		Count:     len(readings),
		RequestID: requestID,
	}
}

// NewErrorMessage cria uma nova mensagem de erro
func NewErrorMessage(message string, errorCode string) models.WebSocketMessage {
	return models.WebSocketMessage{
		Type:      models.MessageError,
		Timestamp: time.Now(),
		Error:     message,
		Data: map[string]string{
			"code": errorCode,
		},
	}
}

// SerializeMessage serializa uma mensagem para JSON
func SerializeMessage(message interface{}) ([]byte, error) {
	return json.Marshal(message)
}

// ParseClientCommand analisa um comando recebido do cliente
func ParseClientCommand(data []byte) (models.CommandMessage, error) {
	var command models.CommandMessage
	err := json.Unmarshal(data, &command)
	return command, err
}

// CreatePongResponse cria uma resposta para um ping do cliente
func CreatePongResponse(pingTime int64) *models.PongMessage {
	return &models.PongMessage{
		WebSocketMessage: models.WebSocketMessage{
			Type:      models.MessagePong,
			Timestamp: time.Now(),
		},
		Time:       pingTime,
		ServerTime: time.Now().UnixMilli(),
	}
}
