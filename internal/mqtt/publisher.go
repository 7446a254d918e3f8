package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"mcb_monitor/internal/config"
	"mcb_monitor/internal/models"
	"mcb_monitor/pkg/logger"
)

var log = logger.With("mqtt")

// Tópicos publicados (relativos ao prefixo)
const (
	TopicReading       = "reading"
	TopicStatus        = "status"
	TopicPowerFactor   = "power_factor"
	TopicDeviceMessage = "device_message"

	publishTimeout = 2 * time.Second
)

// sink é o destino das publicações
type sink interface {
	publish(topic string, qos byte, retained bool, payload []byte) error
	isConnected() bool
	close()
}

// pahoSink publica via cliente paho
type pahoSink struct {
	client paho.Client
}

func (p *pahoSink) publish(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timeout publicando em %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("erro publicando em %s: %w", topic, err)
	}
	return nil
}

func (p *pahoSink) isConnected() bool {
	return p.client.IsConnected()
}

func (p *pahoSink) close() {
	p.client.Disconnect(250)
}

// Publisher publica leituras (decimadas), status e mensagens da bancada num broker MQTT
type Publisher struct {
	config config.MQTTConfig
	sink   sink
	now    func() time.Time

	mu          sync.Mutex
	lastReading time.Time

	published atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
}

// NewPublisher cria um publicador. Nada é enviado até Start.
func NewPublisher(cfg config.MQTTConfig) *Publisher {
	return &Publisher{config: cfg, now: time.Now}
}

// Start conecta ao broker. A conexão é refeita automaticamente pelo paho.
func (p *Publisher) Start() error {
	if !p.config.Enabled {
		log.Infof("Publicador MQTT desabilitado por configuração")
		return nil
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(p.config.Broker)
	opts.SetClientID(p.config.ClientID)
	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
		opts.SetPassword(p.config.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(paho.Client) {
		log.Infof("Conectado ao broker %s", p.config.Broker)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warnf("Conexão com o broker perdida: %v", err)
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		return fmt.Errorf("erro ao conectar ao broker MQTT: %w", token.Error())
	}

	p.mu.Lock()
	p.sink = &pahoSink{client: client}
	p.mu.Unlock()
	return nil
}

// Stop desconecta do broker
func (p *Publisher) Stop() {
	p.mu.Lock()
	s := p.sink
	p.sink = nil
	p.mu.Unlock()

	if s != nil {
		s.close()
		log.Infof("Publicador MQTT parado (%d publicadas, %d descartadas)",
			p.published.Load(), p.skipped.Load())
	}
}

// Topic retorna o tópico completo para um nome relativo
func (p *Publisher) Topic(name string) string {
	prefix := strings.TrimSuffix(p.config.TopicPrefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// HandleReading publica a leitura respeitando o intervalo mínimo de publicação
func (p *Publisher) HandleReading(reading models.Reading) {
	now := p.now()

	p.mu.Lock()
	if p.sink == nil {
		p.mu.Unlock()
		return
	}
	if !p.lastReading.IsZero() && now.Sub(p.lastReading) < p.config.PublishInterval {
		p.mu.Unlock()
		p.skipped.Add(1)
		return
	}
	p.lastReading = now
	p.mu.Unlock()

	p.send(TopicReading, false, reading)
}

// HandleStatus publica o status da bancada (retido)
func (p *Publisher) HandleStatus(status models.RigStatus) {
	p.send(TopicStatus, true, statusPayload{
		Status:    status.Status,
		Label:     status.Label(),
		SessionID: status.SessionID,
		Address:   status.Address,
		LastError: status.LastError,
		Timestamp: status.Timestamp,
	})
}

// HandlePowerFactor publica o alvo de corrente e fator de potência (retido)
func (p *Publisher) HandlePowerFactor(state models.PowerFactorState) {
	p.send(TopicPowerFactor, true, state)
}

// HandleMessage repassa uma mensagem de texto da bancada
func (p *Publisher) HandleMessage(msg models.DeviceMessage) {
	p.send(TopicDeviceMessage, false, msg)
}

// IsConnected informa se há conexão ativa com o broker
func (p *Publisher) IsConnected() bool {
	p.mu.Lock()
	s := p.sink
	p.mu.Unlock()
	return s != nil && s.isConnected()
}

// Stats retorna publicadas, descartadas pela decimação e falhas
func (p *Publisher) Stats() (published, skipped, failed int64) {
	return p.published.Load(), p.skipped.Load(), p.failed.Load()
}

type statusPayload struct {
	Status    string    `json:"status"`
	Label     string    `json:"label"`
	SessionID string    `json:"sessionId,omitempty"`
	Address   string    `json:"address,omitempty"`
	LastError string    `json:"lastError,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (p *Publisher) send(topic string, retained bool, v interface{}) {
	p.mu.Lock()
	s := p.sink
	p.mu.Unlock()
	if s == nil {
		return
	}

	payload, err := json.Marshal(v)
	if err != nil {
		log.Errorf("Erro ao serializar %s: %v", topic, err)
		return
	}

	if err := s.publish(p.Topic(topic), p.config.QoS, retained, payload); err != nil {
		if p.failed.Add(1)%100 == 1 {
			log.Warnf("%v", err)
		}
		return
	}
	p.published.Add(1)
}
