package main

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mcb_monitor/internal/models"
	"mcb_monitor/internal/waveform"
)

const (
	historySize   = 64
	messageBuffer = 5
)

var errOffline = errors.New("sem conexão com o monitor")

// snapshot é o estado visto pela tela num instante
type snapshot struct {
	Connected   bool
	Reading     *models.Reading
	Status      string
	SessionID   string
	PowerFactor models.PowerFactorState
	Messages    []string
	Received    int64
	History     []float64
	LastError   string
}

// envelope cobre os campos de todas as mensagens do servidor
type envelope struct {
	Type      string                   `json:"type"`
	Error     string                   `json:"error"`
	Reading   *models.Reading          `json:"reading"`
	Label     string                   `json:"label"`
	SessionID string                   `json:"sessionId"`
	State     *models.PowerFactorState `json:"state"`
	Message   *models.DeviceMessage    `json:"message"`
	Command   string                   `json:"command"`
	OK        *bool                    `json:"ok"`
}

// feed mantém a conexão WebSocket e acumula o estado mais recente.
// A tela lê o estado no seu próprio ritmo; leituras intermediárias só
// entram no histórico.
type feed struct {
	url string

	mu      sync.Mutex
	state   snapshot
	history *waveform.RollingWindow
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func newFeed(url string) *feed {
	return &feed{
		url:     url,
		history: waveform.NewRollingWindow(historySize),
		state:   snapshot{Status: "desconectado"},
	}
}

// run conecta e reconecta até o contexto terminar
func (f *feed) run(ctx context.Context) {
	for ctx.Err() == nil {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
		if err != nil {
			f.setError(err.Error())
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
			continue
		}

		f.mu.Lock()
		f.conn = conn
		f.state.Connected = true
		f.state.LastError = ""
		f.mu.Unlock()

		stop := context.AfterFunc(ctx, func() { conn.Close() })
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					f.setError(err.Error())
				}
				break
			}
			f.apply(data)
		}
		stop()
		conn.Close()

		f.mu.Lock()
		f.conn = nil
		f.state.Connected = false
		f.mu.Unlock()
	}
}

// apply processa um frame (várias mensagens separadas por '\n')
func (f *feed) apply(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var msg envelope
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			continue
		}

		switch msg.Type {
		case models.MessageReading:
			if msg.Reading != nil {
				r := *msg.Reading
				f.state.Reading = &r
				f.state.Received++
				f.history.Push(r.Voltage)
			}
		case models.MessageStatus:
			f.state.Status = msg.Label
			f.state.SessionID = msg.SessionID
		case models.MessagePowerFactor:
			if msg.State != nil {
				f.state.PowerFactor = *msg.State
			}
		case models.MessageDeviceMessage:
			if msg.Message != nil {
				f.pushMessage(msg.Message.Text)
			}
		case models.MessageCommandResult:
			if msg.OK != nil && *msg.OK {
				f.pushMessage("✓ " + msg.Command)
			} else {
				f.pushMessage("✗ " + msg.Command + ": " + msg.Error)
			}
		case models.MessageError:
			f.state.LastError = msg.Error
		}
	}
}

func (f *feed) pushMessage(text string) {
	f.state.Messages = append(f.state.Messages, text)
	if len(f.state.Messages) > messageBuffer {
		f.state.Messages = f.state.Messages[len(f.state.Messages)-messageBuffer:]
	}
}

func (f *feed) setError(text string) {
	f.mu.Lock()
	f.state.LastError = text
	f.mu.Unlock()
}

// snapshot copia o estado atual
func (f *feed) snapshot() snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.state
	s.Messages = append([]string(nil), f.state.Messages...)
	s.History = f.history.Values()
	return s
}

// send envia um comando ao servidor
func (f *feed) send(msgType string, params map[string]interface{}) error {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		return errOffline
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return conn.WriteJSON(models.CommandMessage{Type: msgType, Params: params})
}
