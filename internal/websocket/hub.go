package websocket

import (
	"context"
	"sync"
	"time"

	"mcb_monitor/internal/models"
	"mcb_monitor/pkg/logger"
)

var log = logger.With("ws")

// Controller é o lado da bancada que o hub consulta e comanda
type Controller interface {
	GetStatus() models.RigStatus
	GetLastReading() *models.Reading
	PowerFactorState() models.PowerFactorState
	SetPowerFactor(current, powerFactor float64) (sent bool, err error)
	SendNamedCommand(name string, params map[string]interface{}) error
	History(limit int) []models.Reading
	ClearHistory()
}

// Limites do get_history
const (
	defaultHistoryLimit = 500
	maxHistoryLimit     = 5000
)

// directMessage é uma resposta destinada a um único cliente
type directMessage struct {
	clientID string
	payload  []byte
}

// HubStats resume a atividade do hub
type HubStats struct {
	Clients           int     `json:"clients"`
	TotalClients      int64   `json:"totalClients"`
	TotalMessages     int64   `json:"totalMessages"`
	MessagesPerSecond float64 `json:"messagesPerSecond"`
	DroppedMessages   int64   `json:"droppedMessages"`
	SkippedReadings   int64   `json:"skippedReadings"`
}

// Hub gerencia todas as conexões WebSocket e distribuição de mensagens
type Hub struct {
	// Clientes registrados
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client

	// Mensagens para todos os clientes
	broadcast chan []byte

	// Mensagens para um cliente específico
	direct chan directMessage

	// Comandos recebidos dos clientes
	commands chan models.ClientCommand

	mu sync.RWMutex

	controller     Controller
	controllerLock sync.RWMutex

	// Intervalo mínimo entre leituras enviadas (decimação para exibição)
	displayInterval time.Duration
	lastReadingSent time.Time
	readingLock     sync.Mutex

	stats struct {
		totalMessages      int64
		totalClients       int64
		droppedMessages    int64
		skippedReadings    int64
		messagesPerSecond  float64
		lastStatsReset     time.Time
		messagesSinceReset int64
	}
	statsLock sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub cria uma nova instância do Hub
func NewHub(displayInterval time.Duration) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		clients:         make(map[*Client]bool),
		register:        make(chan *Client),
		unregister:      make(chan *Client),
		broadcast:       make(chan []byte, 256),
		direct:          make(chan directMessage, 64),
		commands:        make(chan models.ClientCommand, 100),
		displayInterval: displayInterval,
		ctx:             ctx,
		cancel:          cancel,
		done:            make(chan struct{}),
	}

	h.stats.lastStatsReset = time.Now()
	return h
}

// SetController define o serviço da bancada usado pelos comandos dos clientes
func (h *Hub) SetController(c Controller) {
	h.controllerLock.Lock()
	defer h.controllerLock.Unlock()
	h.controller = c
}

func (h *Hub) getController() Controller {
	h.controllerLock.RLock()
	defer h.controllerLock.RUnlock()
	return h.controller
}

// Run inicia o loop principal do hub para gerenciar clientes e mensagens
func (h *Hub) Run() {
	defer close(h.done)
	log.Infof("Iniciando WebSocket Hub")

	statsTicker := time.NewTicker(30 * time.Second)
	defer statsTicker.Stop()

	pingTicker := time.NewTicker(5 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			log.Infof("Encerrando WebSocket Hub")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mu.Unlock()

			log.Infof("Novo cliente WebSocket conectado. ID: %s. Total: %d", client.id, clientCount)

			h.statsLock.Lock()
			h.stats.totalClients++
			h.statsLock.Unlock()

			h.sendInitialDataToClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case message := <-h.broadcast:
			h.statsLock.Lock()
			h.stats.totalMessages++
			h.stats.messagesSinceReset++
			h.statsLock.Unlock()

			h.mu.RLock()
			var slow []*Client
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Cliente lento, será desconectado
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()

			for _, client := range slow {
				log.Warnf("Cliente %s não acompanha o fluxo, desconectando", client.id)
				h.removeClient(client)
			}

		case msg := <-h.direct:
			if client := h.getClientByID(msg.clientID); client != nil {
				select {
				case client.send <- msg.payload:
				default:
					h.countDropped()
				}
			}

		case cmd := <-h.commands:
			go h.handleClientCommand(cmd)

		case <-statsTicker.C:
			h.statsLock.Lock()
			elapsed := time.Since(h.stats.lastStatsReset).Seconds()
			if elapsed > 0 {
				h.stats.messagesPerSecond = float64(h.stats.messagesSinceReset) / elapsed
			}
			h.stats.messagesSinceReset = 0
			h.stats.lastStatsReset = time.Now()
			mps := h.stats.messagesPerSecond
			total := h.stats.totalMessages
			h.statsLock.Unlock()

			log.Infof("Estatísticas WebSocket: %d clientes, %.2f msgs/seg, total: %d mensagens",
				h.ClientCount(), mps, total)

		case <-pingTicker.C:
			h.sendPingToAllClients()
		}
	}
}

// BroadcastReading envia uma leitura, respeitando o intervalo de exibição
func (h *Hub) BroadcastReading(reading models.Reading) {
	h.readingLock.Lock()
	now := time.Now()
	if h.displayInterval > 0 && now.Sub(h.lastReadingSent) < h.displayInterval {
		h.readingLock.Unlock()
		h.statsLock.Lock()
		h.stats.skippedReadings++
		h.statsLock.Unlock()
		return
	}
	h.lastReadingSent = now
	h.readingLock.Unlock()

	h.publish(NewReadingMessage(reading), "leitura")
}

// BroadcastStatus envia atualização de status para todos os clientes
func (h *Hub) BroadcastStatus(status models.RigStatus) {
	h.publish(NewStatusMessage(status), "status")
}

// BroadcastDeviceMessage repassa um texto da bancada para todos os clientes
func (h *Hub) BroadcastDeviceMessage(msg models.DeviceMessage) {
	h.publish(NewDeviceTextMessage(msg), "mensagem da bancada")
}

// BroadcastPowerFactor envia o estado de fator de potência para todos os clientes
func (h *Hub) BroadcastPowerFactor(state models.PowerFactorState) {
	h.publish(NewPowerFactorMessage(state), "fator de potência")
}

// publish serializa e enfileira sem bloquear quem produz os dados
func (h *Hub) publish(message interface{}, kind string) {
	jsonMessage, err := SerializeMessage(message)
	if err != nil {
		log.Errorf("Erro ao serializar mensagem de %s: %v", kind, err)
		return
	}

	select {
	case h.broadcast <- jsonMessage:
	default:
		h.countDropped()
	}
}

// sendTo enfileira uma mensagem para um único cliente
func (h *Hub) sendTo(clientID string, message interface{}) {
	jsonMessage, err := SerializeMessage(message)
	if err != nil {
		log.Errorf("Erro ao serializar resposta: %v", err)
		return
	}

	select {
	case h.direct <- directMessage{clientID: clientID, payload: jsonMessage}:
	case <-h.ctx.Done():
	}
}

// handleClientCommand processa comandos recebidos dos clientes
func (h *Hub) handleClientCommand(cmd models.ClientCommand) {
	log.Infof("Comando recebido do cliente %s: %s", cmd.ClientID, cmd.Command)

	if cmd.Command == models.MessagePing {
		h.sendTo(cmd.ClientID, CreatePongResponse(paramInt(cmd.Params, "time")))
		return
	}

	controller := h.getController()
	if controller == nil {
		h.sendTo(cmd.ClientID, NewCommandResultMessage(cmd.Command, cmd.ID, errBancadaIndisponivel))
		return
	}

	switch cmd.Command {
	case "get_status":
		h.sendTo(cmd.ClientID, NewStatusMessage(controller.GetStatus()))
		h.sendTo(cmd.ClientID, NewPowerFactorMessage(controller.PowerFactorState()))

	case "set_power_factor":
		current, okC := cmd.Params["current"].(float64)
		pf, okP := cmd.Params["powerFactor"].(float64)
		if !okC || !okP {
			h.sendTo(cmd.ClientID, NewErrorMessage("Parâmetros current e powerFactor são obrigatórios", "invalid_params"))
			return
		}
		sent, err := controller.SetPowerFactor(current, pf)
		result := NewCommandResultMessage(cmd.Command, cmd.ID, err)
		result.Data = map[string]interface{}{"sent": sent}
		h.sendTo(cmd.ClientID, result)

	case "send_command":
		name, _ := cmd.Params["command"].(string)
		if name == "" {
			h.sendTo(cmd.ClientID, NewErrorMessage("Parâmetro command é obrigatório", "invalid_params"))
			return
		}
		err := controller.SendNamedCommand(name, cmd.Params)
		if err != nil {
			log.Warnf("Comando %s do cliente %s falhou: %v", name, cmd.ClientID, err)
		}
		h.sendTo(cmd.ClientID, NewCommandResultMessage(name, cmd.ID, err))

	case "get_history":
		limit := int(paramInt(cmd.Params, "limit"))
		if limit <= 0 {
			limit = defaultHistoryLimit
		}
		limit = min(limit, maxHistoryLimit)
		h.sendTo(cmd.ClientID, NewHistoryMessage(controller.History(limit), cmd.ID))

	case "clear_history":
		controller.ClearHistory()
		h.sendTo(cmd.ClientID, NewCommandResultMessage(cmd.Command, cmd.ID, nil))

	default:
		log.Warnf("Comando desconhecido: %s", cmd.Command)
		h.sendTo(cmd.ClientID, NewErrorMessage("Comando desconhecido: "+cmd.Command, "unknown_command"))
	}
}

// sendInitialDataToClient envia boas-vindas, status e fator de potência.
// Chamado no loop do hub: escreve direto no canal do cliente.
func (h *Hub) sendInitialDataToClient(client *Client) {
	messages := []interface{}{
		models.WebSocketMessage{
			Type:      models.MessageWelcome,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"message":  "Conectado ao monitor da bancada MCB",
				"clientId": client.id,
			},
		},
	}

	if controller := h.getController(); controller != nil {
		messages = append(messages,
			NewStatusMessage(controller.GetStatus()),
			NewPowerFactorMessage(controller.PowerFactorState()),
		)
		if last := controller.GetLastReading(); last != nil {
			messages = append(messages, NewReadingMessage(*last))
		}
	}

	for _, m := range messages {
		if jsonMsg, err := SerializeMessage(m); err == nil {
			select {
			case client.send <- jsonMsg:
			default:
			}
		}
	}
}

// Shutdown encerra o hub e fecha todos os clientes
func (h *Hub) Shutdown() {
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(time.Second):
	}
}

// removeClient desregistra um cliente; só é chamado pelo loop do hub
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		log.Infof("Cliente WebSocket desconectado. ID: %s. Total: %d", client.id, len(h.clients))
	}
}

// closeAllClients fecha todas as conexões dos clientes
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	log.Infof("Fechando todas as conexões de clientes WebSocket")
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// ClientCount retorna o número atual de clientes conectados
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats retorna as estatísticas do hub
func (h *Hub) Stats() HubStats {
	h.statsLock.Lock()
	defer h.statsLock.Unlock()
	return HubStats{
		Clients:           h.ClientCount(),
		TotalClients:      h.stats.totalClients,
		TotalMessages:     h.stats.totalMessages,
		MessagesPerSecond: h.stats.messagesPerSecond,
		DroppedMessages:   h.stats.droppedMessages,
		SkippedReadings:   h.stats.skippedReadings,
	}
}

func (h *Hub) countDropped() {
	h.statsLock.Lock()
	h.stats.droppedMessages++
	h.statsLock.Unlock()
}

// getClientByID retorna um cliente pelo seu ID
func (h *Hub) getClientByID(clientID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.id == clientID {
			return client
		}
	}
	return nil
}

// sendPingToAllClients envia ping de aplicação para todos os clientes
func (h *Hub) sendPingToAllClients() {
	if h.ClientCount() == 0 {
		return
	}
	ping := models.PongMessage{
		WebSocketMessage: models.WebSocketMessage{
			Type:      models.MessagePing,
			Timestamp: time.Now(),
		},
		ServerTime: time.Now().UnixMilli(),
	}
	h.publish(ping, "ping")
}

func paramInt(params map[string]interface{}, key string) int64 {
	if v, ok := params[key].(float64); ok {
		return int64(v)
	}
	return 0
}
