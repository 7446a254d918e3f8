package websocket

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcb_monitor/internal/models"
)

type fakeController struct {
	mu       sync.Mutex
	state    models.PowerFactorState
	commands []string
	params   []map[string]interface{}
	failWith error
	onChange func(models.PowerFactorState)
	history  []models.Reading
	limits   []int
}

func (f *fakeController) GetStatus() models.RigStatus {
	return models.RigStatus{Status: models.StatusConnected, SessionID: "sessao-1"}
}

func (f *fakeController) GetLastReading() *models.Reading {
	return nil
}

func (f *fakeController) PowerFactorState() models.PowerFactorState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeController) SetPowerFactor(current, pf float64) (bool, error) {
	f.mu.Lock()
	f.state = models.PowerFactorState{TargetCurrent: current, PowerFactor: pf}
	onChange := f.onChange
	f.mu.Unlock()
	if onChange != nil {
		onChange(models.PowerFactorState{TargetCurrent: current, PowerFactor: pf})
	}
	return false, nil
}

func (f *fakeController) SendNamedCommand(name string, params map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.commands = append(f.commands, name)
	f.params = append(f.params, params)
	return nil
}

func (f *fakeController) History(limit int) []models.Reading {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limit)
	if limit < len(f.history) {
		return f.history[len(f.history)-limit:]
	}
	return f.history
}

func (f *fakeController) ClearHistory() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = nil
}

func startHub(t *testing.T, interval time.Duration, controller Controller) (*Hub, *websocket.Conn) {
	t.Helper()
	hub := NewHub(interval)
	hub.SetController(controller)
	go hub.Run()
	t.Cleanup(hub.Shutdown)

	srv := httptest.NewServer(NewHandler(hub))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	readUntil(t, conn, models.MessageWelcome)
	return hub, conn
}

// readUntil lê frames (que podem conter várias mensagens separadas por '\n')
// até encontrar uma mensagem do tipo pedido
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "aguardando %s", msgType)
		for _, line := range strings.Split(string(data), "\n") {
			var msg map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(line), &msg))
			if msg["type"] == msgType {
				return msg
			}
		}
	}
}

// readAll lê até encontrar todos os tipos pedidos, em qualquer ordem
func readAll(t *testing.T, conn *websocket.Conn, msgTypes ...string) map[string]map[string]interface{} {
	t.Helper()
	found := make(map[string]map[string]interface{})
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for len(found) < len(msgTypes) {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "aguardando %v", msgTypes)
		for _, line := range strings.Split(string(data), "\n") {
			var msg map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(line), &msg))
			for _, want := range msgTypes {
				if msg["type"] == want {
					found[want] = msg
				}
			}
		}
	}
	return found
}

func send(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func TestHubInitialData(t *testing.T) {
	hub := NewHub(0)
	hub.SetController(&fakeController{state: models.PowerFactorState{TargetCurrent: 1000, PowerFactor: 0.8}})
	go hub.Run()
	defer hub.Shutdown()

	srv := httptest.NewServer(NewHandler(hub))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	welcome := readUntil(t, conn, models.MessageWelcome)
	data := welcome["data"].(map[string]interface{})
	assert.NotEmpty(t, data["clientId"])

	status := readUntil(t, conn, models.MessageStatus)
	assert.Equal(t, "connected", status["label"])
	assert.Equal(t, "sessao-1", status["sessionId"])

	pf := readUntil(t, conn, models.MessagePowerFactor)
	state := pf["state"].(map[string]interface{})
	assert.Equal(t, 0.8, state["powerFactor"])

	assert.Equal(t, 1, hub.ClientCount())
}

func TestHubPing(t *testing.T) {
	_, conn := startHub(t, 0, &fakeController{})

	send(t, conn, map[string]interface{}{"type": "ping", "params": map[string]interface{}{"time": 12345}})
	pong := readUntil(t, conn, models.MessagePong)
	assert.Equal(t, float64(12345), pong["time"])
}

func TestHubSetPowerFactor(t *testing.T) {
	controller := &fakeController{}
	hub, conn := startHub(t, 0, controller)
	controller.mu.Lock()
	controller.onChange = hub.BroadcastPowerFactor
	controller.mu.Unlock()
	readUntil(t, conn, models.MessagePowerFactor)

	send(t, conn, map[string]interface{}{
		"type":   "set_power_factor",
		"id":     "req-1",
		"params": map[string]interface{}{"current": 1500.0, "powerFactor": 0.9},
	})

	msgs := readAll(t, conn, models.MessageCommandResult, models.MessagePowerFactor)
	result := msgs[models.MessageCommandResult]
	assert.Equal(t, true, result["ok"])
	assert.Equal(t, "req-1", result["requestId"])

	pf := msgs[models.MessagePowerFactor]
	state := pf["state"].(map[string]interface{})
	assert.Equal(t, 1500.0, state["targetCurrent"])
	assert.Equal(t, 0.9, state["powerFactor"])

	send(t, conn, map[string]interface{}{"type": "set_power_factor", "params": map[string]interface{}{"current": 1}})
	errMsg := readUntil(t, conn, models.MessageError)
	assert.Contains(t, errMsg["error"], "powerFactor")
}

func TestHubSendCommand(t *testing.T) {
	controller := &fakeController{}
	_, conn := startHub(t, 0, controller)

	send(t, conn, map[string]interface{}{
		"type":   "send_command",
		"params": map[string]interface{}{"command": "trip_test", "type": "C", "rating": 16},
	})
	result := readUntil(t, conn, models.MessageCommandResult)
	assert.Equal(t, true, result["ok"])
	assert.Equal(t, "trip_test", result["command"])

	controller.mu.Lock()
	require.Len(t, controller.commands, 1)
	assert.Equal(t, "C", controller.params[0]["type"])
	controller.failWith = errors.New("bancada não conectada")
	controller.mu.Unlock()

	send(t, conn, map[string]interface{}{"type": "send_command", "params": map[string]interface{}{"command": "stop"}})
	result = readUntil(t, conn, models.MessageCommandResult)
	assert.Equal(t, false, result["ok"])
	assert.Equal(t, "bancada não conectada", result["error"])
}

func TestHubInvalidMessages(t *testing.T) {
	_, conn := startHub(t, 0, &fakeController{})

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	msg := readUntil(t, conn, models.MessageError)
	assert.Equal(t, "invalid_format", msg["data"].(map[string]interface{})["code"])

	send(t, conn, map[string]interface{}{"type": "launch"})
	msg = readUntil(t, conn, models.MessageError)
	assert.Equal(t, "unknown_command", msg["data"].(map[string]interface{})["code"])
}

func TestHubBroadcastReading(t *testing.T) {
	hub, conn := startHub(t, 0, &fakeController{})

	hub.BroadcastReading(models.Reading{Voltage: 230.5, Current: 12, Timestamp: 1.5})
	msg := readUntil(t, conn, models.MessageReading)
	reading := msg["reading"].(map[string]interface{})
	assert.Equal(t, 230.5, reading["voltage"])
	assert.Equal(t, 1.5, reading["timestamp"])

	hub.BroadcastDeviceMessage(models.DeviceMessage{Text: "RL CONFIG OK", Confirmation: true})
	dev := readUntil(t, conn, models.MessageDeviceMessage)
	assert.Equal(t, true, dev["message"].(map[string]interface{})["confirmation"])
}

func TestHubDecimatesReadings(t *testing.T) {
	hub := NewHub(time.Hour)

	for i := 0; i < 5; i++ {
		hub.BroadcastReading(models.Reading{Voltage: float64(i)})
	}
	assert.Equal(t, int64(4), hub.Stats().SkippedReadings)
	assert.Len(t, hub.broadcast, 1)
}

func TestHubPingWithoutController(t *testing.T) {
	hub := NewHub(0)
	go hub.Run()
	defer hub.Shutdown()

	srv := httptest.NewServer(NewHandler(hub))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	readUntil(t, conn, models.MessageWelcome)

	send(t, conn, map[string]interface{}{"type": "ping", "params": map[string]interface{}{"time": 42}})
	pong := readUntil(t, conn, models.MessagePong)
	assert.Equal(t, float64(42), pong["time"])

	send(t, conn, map[string]interface{}{"type": "get_status", "id": "req-9"})
	result := readUntil(t, conn, models.MessageCommandResult)
	assert.Equal(t, false, result["ok"])
	assert.Equal(t, "req-9", result["requestId"])
}

func TestHubHistory(t *testing.T) {
	controller := &fakeController{history: []models.Reading{{Voltage: 1}, {Voltage: 2}, {Voltage: 3}}}
	_, conn := startHub(t, 0, controller)

	send(t, conn, map[string]interface{}{
		"type":   "get_history",
		"id":     "h-1",
		"params": map[string]interface{}{"limit": 2},
	})
	msg := readUntil(t, conn, models.MessageHistory)
	assert.Equal(t, "h-1", msg["requestId"])
	assert.Equal(t, 2.0, msg["count"])
	readings := msg["readings"].([]interface{})
	assert.Equal(t, 3.0, readings[1].(map[string]interface{})["voltage"])

	send(t, conn, map[string]interface{}{"type": "get_history", "params": map[string]interface{}{"limit": 1e9}})
	readUntil(t, conn, models.MessageHistory)

	send(t, conn, map[string]interface{}{"type": "clear_history"})
	result := readUntil(t, conn, models.MessageCommandResult)
	assert.Equal(t, true, result["ok"])
	assert.Equal(t, "clear_history", result["command"])

	send(t, conn, map[string]interface{}{"type": "get_history"})
	msg = readUntil(t, conn, models.MessageHistory)
	assert.Equal(t, 0.0, msg["count"])
	assert.Empty(t, msg["readings"])

	controller.mu.Lock()
	defer controller.mu.Unlock()
	assert.Equal(t, []int{2, maxHistoryLimit, defaultHistoryLimit}, controller.limits)
}
