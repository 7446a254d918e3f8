package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"mcb_monitor/internal/config"
	"mcb_monitor/internal/models"
	"mcb_monitor/pkg/logger"
	"mcb_monitor/pkg/utils"
)

var log = logger.With("redis")

// Service mantém no Redis o estado ao vivo da bancada: última leitura,
// status da conexão e fator de potência, mais uma lista limitada das
// leituras gravadas recentemente.
type Service struct {
	client    *redis.Client
	ctx       context.Context
	cancel    context.CancelFunc
	prefix    string
	config    config.RedisConfig
	connected bool
	mutex     sync.RWMutex

	pending     *models.Reading
	pendingLock sync.Mutex
	done        chan struct{}
}

// NewService cria um novo serviço Redis. Sem conexão o serviço funciona em
// modo offline e as gravações são ignoradas.
func NewService(cfg config.RedisConfig) (*Service, error) {
	ctx, cancel := context.WithCancel(context.Background())

	service := &Service{
		ctx:    ctx,
		cancel: cancel,
		prefix: cfg.Prefix,
		config: cfg,
	}

	if !cfg.Enabled {
		log.Infof("Serviço Redis desabilitado por configuração")
		return service, nil
	}

	service.client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := service.TestConnection(); err != nil {
		log.Warnf("Aviso: %v. O Redis será utilizado em modo offline.", err)
	}

	return service, nil
}

// TestConnection testa a conexão com o Redis
func (s *Service) TestConnection() error {
	if !s.config.Enabled || s.client == nil {
		return fmt.Errorf("serviço Redis desabilitado")
	}

	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	result, err := s.client.Ping(ctx).Result()
	if err != nil {
		s.setConnected(false)
		return fmt.Errorf("erro ao conectar ao Redis: %w", err)
	}

	log.Infof("Conexão com o Redis estabelecida. Resposta: %s", result)
	s.setConnected(true)
	return nil
}

// IsConnected verifica se o serviço está conectado
func (s *Service) IsConnected() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.connected && s.config.Enabled
}

func (s *Service) setConnected(connected bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.connected = connected
}

// Key formata uma chave com o prefixo configurado
func (s *Service) Key(name string) string {
	return fmt.Sprintf("%s:%s", s.prefix, name)
}

// Start inicia a gravação periódica da última leitura
func (s *Service) Start() {
	if !s.config.Enabled {
		return
	}
	s.done = make(chan struct{})
	go s.runFlushLoop()
}

// HandleReading guarda a leitura para a próxima gravação. Chamado para cada
// amostra, não acessa a rede.
func (s *Service) HandleReading(reading models.Reading) {
	if !s.config.Enabled {
		return
	}
	s.pendingLock.Lock()
	s.pending = &reading
	s.pendingLock.Unlock()
}

func (s *Service) runFlushLoop() {
	defer close(s.done)

	interval := s.config.UpdateInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Tentativas de reconexão espaçadas
	retry := time.NewTicker(10 * time.Second)
	defer retry.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-retry.C:
			if !s.IsConnected() {
				s.TestConnection()
			}
		case <-ticker.C:
			s.pendingLock.Lock()
			reading := s.pending
			s.pending = nil
			s.pendingLock.Unlock()

			if reading != nil {
				if err := s.WriteReading(*reading); err != nil {
					log.Errorf("Erro ao escrever leitura no Redis: %v", err)
				}
			}
		}
	}
}

// WriteReading grava a leitura como hash e como JSON
func (s *Service) WriteReading(reading models.Reading) error {
	if !s.IsConnected() {
		return nil
	}

	jsonData, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("erro ao serializar leitura: %w", err)
	}

	pipe := s.client.Pipeline()
	key := s.Key("reading")

	pipe.HSet(s.ctx, key, readingFields(reading))
	pipe.Expire(s.ctx, key, s.config.TTL)
	pipe.Set(s.ctx, s.Key("reading:json"), string(jsonData), s.config.TTL)

	if s.config.HistorySize > 0 {
		listKey := s.Key("readings")
		pipe.LPush(s.ctx, listKey, string(jsonData))
		pipe.LTrim(s.ctx, listKey, 0, int64(s.config.HistorySize-1))
	}

	if _, err := pipe.Exec(s.ctx); err != nil {
		s.setConnected(false)
		return fmt.Errorf("erro ao executar pipeline Redis: %w", err)
	}
	return nil
}

// WriteStatus grava o status da conexão com a bancada
func (s *Service) WriteStatus(status models.RigStatus) error {
	if !s.IsConnected() {
		return nil
	}

	jsonData, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("erro ao serializar status: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(s.ctx, s.Key("status"), status.Label(), 0)
	pipe.Set(s.ctx, s.Key("status:json"), string(jsonData), 0)
	if status.SessionID != "" {
		pipe.Set(s.ctx, s.Key("session"), status.SessionID, 0)
	}
	if status.LastError != "" {
		pipe.Set(s.ctx, s.Key("ultimo_erro"), status.LastError, 0)
	}
	pipe.Set(s.ctx, s.Key("erros_consecutivos"), status.ErrorCount, 0)
	pipe.Set(s.ctx, s.Key("status:atualizado"), utils.FormatDateTimeMs(status.Timestamp), 0)

	if _, err := pipe.Exec(s.ctx); err != nil {
		s.setConnected(false)
		return fmt.Errorf("erro ao escrever status no Redis: %w", err)
	}
	return nil
}

// WritePowerFactor grava corrente alvo e fator de potência
func (s *Service) WritePowerFactor(state models.PowerFactorState) error {
	if !s.IsConnected() {
		return nil
	}

	err := s.client.HSet(s.ctx, s.Key("power_factor"), map[string]interface{}{
		"targetCurrent": state.TargetCurrent,
		"powerFactor":   state.PowerFactor,
		"updatedAt":     time.Now().UnixMilli(),
	}).Err()
	if err != nil {
		s.setConnected(false)
		return fmt.Errorf("erro ao escrever fator de potência no Redis: %w", err)
	}
	return nil
}

// GetLatestReading lê a última leitura gravada
func (s *Service) GetLatestReading() (*models.Reading, error) {
	if !s.IsConnected() {
		return nil, fmt.Errorf("Redis não conectado")
	}

	data, err := s.client.Get(s.ctx, s.Key("reading:json")).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("erro ao ler leitura do Redis: %w", err)
	}

	var reading models.Reading
	if err := json.Unmarshal([]byte(data), &reading); err != nil {
		return nil, fmt.Errorf("erro ao decodificar leitura: %w", err)
	}
	return &reading, nil
}

// GetRecentReadings lê até limit leituras da lista (todas se limit <= 0),
// da mais antiga à mais nova
func (s *Service) GetRecentReadings(limit int) ([]models.Reading, error) {
	if !s.IsConnected() {
		return nil, fmt.Errorf("Redis não conectado")
	}

	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	items, err := s.client.LRange(s.ctx, s.Key("readings"), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("erro ao ler leituras do Redis: %w", err)
	}
	return decodeReadings(items), nil
}

// ClearReadings apaga a lista de leituras recentes
func (s *Service) ClearReadings() error {
	if !s.IsConnected() {
		return nil
	}
	if err := s.client.Del(s.ctx, s.Key("readings")).Err(); err != nil {
		return fmt.Errorf("erro ao limpar leituras no Redis: %w", err)
	}
	return nil
}

// decodeReadings converte a lista do Redis (mais nova primeiro) em ordem
// cronológica, ignorando itens inválidos
func decodeReadings(items []string) []models.Reading {
	out := make([]models.Reading, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		var r models.Reading
		if err := json.Unmarshal([]byte(items[i]), &r); err != nil {
			log.Warnf("Leitura inválida na lista: %v", err)
			continue
		}
		out = append(out, r)
	}
	return out
}

// Shutdown encerra o serviço e fecha a conexão
func (s *Service) Shutdown() {
	s.cancel()
	if s.done != nil {
		<-s.done
	}
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			log.Errorf("Erro ao fechar conexão Redis: %v", err)
		}
	}
	s.setConnected(false)
	log.Infof("Serviço Redis encerrado")
}

func readingFields(r models.Reading) map[string]interface{} {
	return map[string]interface{}{
		"voltage":          r.Voltage,
		"current":          r.Current,
		"timestamp":        r.Timestamp,
		"powerFactor":      r.PowerFactor,
		"rawVoltage":       r.RawVoltage,
		"dcOffset":         r.DCOffset,
		"cycleCaptured":    r.CycleCaptured,
		"cycleSampleCount": r.CycleSampleCount,
	}
}
