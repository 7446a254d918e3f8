package rig

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mcb_monitor/internal/config"
	"mcb_monitor/internal/models"
	"mcb_monitor/internal/waveform"
	"mcb_monitor/pkg/logger"
)

var log = logger.With("rig")

// ReadingHandler recebe as leituras produzidas pelo pipeline
type ReadingHandler func(reading models.Reading)

// StatusHandler recebe as mudanças de estado da conexão
type StatusHandler func(status models.RigStatus)

// MessageHandler recebe os textos de status/confirmação da bancada
type MessageHandler func(msg models.DeviceMessage)

// PowerFactorHandler recebe o novo alvo de corrente e fator de potência
type PowerFactorHandler func(state models.PowerFactorState)

// Resolver descobre o endereço da bancada a cada tentativa de conexão
type Resolver func(ctx context.Context) (string, error)

// dispatchBatch limita quantas leituras o dispatcher entrega por rodada
const dispatchBatch = 256

// Service gerencia a conexão com a bancada: um worker por conexão lê os
// registros, alimenta um pipeline novo e enfileira as leituras; um
// dispatcher entrega as leituras aos handlers sem bloquear o worker.
type Service struct {
	config      config.RigConfig
	pipelineCfg config.PipelineConfig
	client      *Client
	queue       *ReadingQueue
	history     *ReadingHistory
	powerFactor *waveform.PowerFactor
	resolver    Resolver

	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	mutex   sync.RWMutex

	// conexão atual
	connCancel context.CancelFunc
	connDone   chan struct{}
	connMutex  sync.Mutex

	status            models.RigStatus
	lastReading       *models.Reading
	consecutiveErrors int

	// estado do pipeline da sessão atual
	diagnostics    models.PipelineDiagnostics
	referenceCycle []waveform.CyclePoint

	readingHandlers []ReadingHandler
	statusHandlers  []StatusHandler
	messageHandlers []MessageHandler
	pfHandlers      []PowerFactorHandler
	handlersLock    sync.RWMutex

	samples   atomic.Int64
	malformed atomic.Int64
	messages  atomic.Int64

	dispatchDone chan struct{}
}

// NewService cria o serviço da bancada. O PowerFactor é compartilhado por
// todas as conexões do serviço.
func NewService(cfg config.RigConfig, pipelineCfg config.PipelineConfig) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		config:      cfg,
		pipelineCfg: pipelineCfg,
		client:      NewClient(cfg.Address(), cfg.DialTimeout, cfg.ReadTimeout, cfg.WriteTimeout),
		queue:       NewReadingQueue(cfg.QueueSize),
		history:     NewReadingHistory(cfg.HistorySize),
		powerFactor: waveform.NewPowerFactor(pipelineCfg.TargetCurrent, pipelineCfg.PowerFactor),
		ctx:         ctx,
		cancel:      cancel,
		status: models.RigStatus{
			Status:    models.StatusIdle,
			Timestamp: time.Now(),
			Address:   cfg.Address(),
		},
	}
}

// SetResolver faz cada tentativa de conexão resolver o endereço antes de
// discar, ignorando o host configurado
func (s *Service) SetResolver(resolver Resolver) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.resolver = resolver
}

// Start inicia o dispatcher e, se configurado, a conexão automática
func (s *Service) Start() error {
	s.mutex.Lock()
	if s.running {
		s.mutex.Unlock()
		return nil
	}
	s.running = true
	s.dispatchDone = make(chan struct{})
	s.mutex.Unlock()

	log.Infof("Iniciando serviço da bancada %q (%s)", s.config.Name, s.client.Address())

	go s.dispatch()

	if s.config.AutoConnect {
		return s.Connect()
	}
	return nil
}

// Stop encerra a conexão e o dispatcher
func (s *Service) Stop() {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return
	}
	s.running = false
	done := s.dispatchDone
	s.mutex.Unlock()

	log.Infof("Parando serviço da bancada")
	s.Disconnect()
	s.cancel()
	<-done
}

// IsRunning verifica se o serviço está em execução
func (s *Service) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.running
}

// Connect inicia o worker de conexão (com reconexão automática).
// Não faz nada se já houver um worker ativo.
func (s *Service) Connect() error {
	if !s.IsRunning() {
		return fmt.Errorf("serviço da bancada não iniciado")
	}

	s.connMutex.Lock()
	defer s.connMutex.Unlock()

	if s.connCancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(s.ctx)
	s.connCancel = cancel
	s.connDone = make(chan struct{})

	go s.run(ctx, s.connDone)
	return nil
}

// Disconnect encerra o worker e fecha a conexão
func (s *Service) Disconnect() {
	s.connMutex.Lock()
	cancel := s.connCancel
	done := s.connDone
	s.connCancel = nil
	s.connDone = nil
	s.connMutex.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	// Fechar a conexão desbloqueia a leitura em andamento
	s.client.Close()
	<-done

	s.mutex.Lock()
	s.consecutiveErrors = 0
	s.mutex.Unlock()
	s.updateStatus(models.StatusDisconnected, "", "")
}

// IsConnected verifica se há conexão ativa com a bancada
func (s *Service) IsConnected() bool {
	return s.client.IsConnected()
}

// SendCommand codifica e envia um comando. Comandos de fator de potência
// também atualizam o estado usado pelo estimador de corrente.
func (s *Service) SendCommand(cmd Command) error {
	if err := s.writeCommand(cmd); err != nil {
		return err
	}

	if pfc, ok := cmd.(PowerFactorCommand); ok {
		return s.setPowerFactorState(pfc.PowerFactorState())
	}
	return nil
}

// SetPowerFactor atualiza o estado do estimador e, com a bancada conectada,
// envia o comando correspondente. sent informa se o comando foi enviado.
func (s *Service) SetPowerFactor(current, powerFactor float64) (sent bool, err error) {
	if err := s.setPowerFactorState(current, powerFactor); err != nil {
		return false, err
	}
	if !s.IsConnected() {
		return false, nil
	}
	if err := s.writeCommand(SetPowerFactor{Current: current, PowerFactor: powerFactor}); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) writeCommand(cmd Command) error {
	payload, err := cmd.Encode()
	if err != nil {
		return err
	}
	if err := s.client.Write(payload); err != nil {
		return err
	}
	log.Infof("Comando enviado: %s", cmd.Name())
	return nil
}

func (s *Service) setPowerFactorState(current, powerFactor float64) error {
	if err := s.powerFactor.Set(current, powerFactor); err != nil {
		return err
	}

	state := s.powerFactor.Snapshot()
	s.handlersLock.RLock()
	handlers := s.pfHandlers
	s.handlersLock.RUnlock()
	for _, handler := range handlers {
		handler(state)
	}
	return nil
}

// PowerFactor retorna o estado compartilhado de fator de potência
func (s *Service) PowerFactor() *waveform.PowerFactor {
	return s.powerFactor
}

// PowerFactorState retorna uma cópia do estado de fator de potência
func (s *Service) PowerFactorState() models.PowerFactorState {
	return s.powerFactor.Snapshot()
}

// SendNamedCommand monta o comando pelo nome e parâmetros (WebSocket/REST) e envia
func (s *Service) SendNamedCommand(name string, params map[string]interface{}) error {
	cmd, err := ParseCommand(name, params)
	if err != nil {
		return err
	}
	return s.SendCommand(cmd)
}

// RegisterReadingHandler registra uma função para receber as leituras
func (s *Service) RegisterReadingHandler(handler ReadingHandler) {
	s.handlersLock.Lock()
	defer s.handlersLock.Unlock()
	s.readingHandlers = append(s.readingHandlers, handler)
}

// RegisterStatusHandler registra uma função para receber mudanças de estado
func (s *Service) RegisterStatusHandler(handler StatusHandler) {
	s.handlersLock.Lock()
	defer s.handlersLock.Unlock()
	s.statusHandlers = append(s.statusHandlers, handler)
}

// RegisterMessageHandler registra uma função para receber mensagens da bancada
func (s *Service) RegisterMessageHandler(handler MessageHandler) {
	s.handlersLock.Lock()
	defer s.handlersLock.Unlock()
	s.messageHandlers = append(s.messageHandlers, handler)
}

// RegisterPowerFactorHandler registra uma função para receber mudanças de fator de potência
func (s *Service) RegisterPowerFactorHandler(handler PowerFactorHandler) {
	s.handlersLock.Lock()
	defer s.handlersLock.Unlock()
	s.pfHandlers = append(s.pfHandlers, handler)
}

// GetStatus retorna o status atual com os contadores atualizados
func (s *Service) GetStatus() models.RigStatus {
	s.mutex.RLock()
	status := s.status
	s.mutex.RUnlock()
	s.fillCounters(&status)
	return status
}

// GetLastReading retorna a última leitura produzida
func (s *Service) GetLastReading() *models.Reading {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.lastReading == nil {
		return nil
	}
	r := *s.lastReading
	return &r
}

// History retorna as últimas limit leituras (todas se limit <= 0)
func (s *Service) History(limit int) []models.Reading {
	return s.history.Recent(limit)
}

// ClearHistory descarta as leituras guardadas em memória
func (s *Service) ClearHistory() {
	n := s.history.Len()
	s.history.Clear()
	log.Infof("Histórico de leituras limpo (%d leituras)", n)
}

// Diagnostics retorna o estado do pipeline após a última amostra da sessão
func (s *Service) Diagnostics() models.PipelineDiagnostics {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.diagnostics
}

// ReferenceCycle retorna o ciclo de referência da sessão; nil antes da captura
func (s *Service) ReferenceCycle() []waveform.CyclePoint {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.referenceCycle == nil {
		return nil
	}
	out := make([]waveform.CyclePoint, len(s.referenceCycle))
	copy(out, s.referenceCycle)
	return out
}

// run é o loop de conexão: conecta, lê até falhar e reconecta
func (s *Service) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		if ctx.Err() != nil {
			return
		}

		sessionID, err := s.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.handleConnectionError(err)
			if !sleepContext(ctx, s.config.ReconnectDelay) {
				return
			}
			continue
		}

		err = s.readLoop(ctx, sessionID)
		s.client.Close()

		if ctx.Err() != nil {
			return
		}
		if err != nil && !errors.Is(err, io.EOF) {
			s.handleConnectionError(err)
		} else {
			log.Warnf("Bancada encerrou a conexão")
			s.updateStatus(models.StatusDisconnected, "", sessionID)
		}

		if !sleepContext(ctx, s.config.ReconnectDelay) {
			return
		}
	}
}

func (s *Service) connect(ctx context.Context) (string, error) {
	s.mutex.RLock()
	resolver := s.resolver
	s.mutex.RUnlock()

	// Com resolver, cada tentativa consulta o mDNS antes de discar
	if resolver != nil {
		address, err := resolver(ctx)
		if err != nil {
			return "", fmt.Errorf("bancada não encontrada via mDNS: %w", err)
		}
		s.client.SetAddress(address)
	}

	// Em erro, o status só muda quando a conexão voltar
	if s.GetStatus().Status != models.StatusError {
		s.updateStatus(models.StatusConnecting, "", "")
	}
	if err := s.client.Connect(ctx); err != nil {
		return "", err
	}

	sessionID := uuid.NewString()

	s.mutex.Lock()
	if s.consecutiveErrors > 0 {
		log.Infof("Comunicação com a bancada restaurada após %d tentativas", s.consecutiveErrors)
	}
	s.consecutiveErrors = 0
	s.mutex.Unlock()

	s.updateStatus(models.StatusConnected, "", sessionID)
	return sessionID, nil
}

// readLoop lê registros até erro ou cancelamento. Cada conexão tem seu
// próprio pipeline.
func (s *Service) readLoop(ctx context.Context, sessionID string) error {
	reader, err := s.client.Reader()
	if err != nil {
		return err
	}

	pipeline := waveform.NewPipeline(s.pipelineCfg, s.powerFactor)
	framer := NewFramer(reader, s.config.Delimiters)
	log.Infof("Sessão %s iniciada", sessionID)

	s.mutex.Lock()
	s.diagnostics = pipeline.Diagnostics()
	s.referenceCycle = nil
	s.mutex.Unlock()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		record, err := framer.Next()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, ErrRecordTooLong) {
				s.malformed.Add(1)
				log.Warnf("Descartado buffer sem delimitador (%d bytes)", maxRecordSize)
				continue
			}
			if n := framer.Buffered(); n > 0 {
				log.Debugf("Descartados %d bytes de registro incompleto", n)
			}
			return err
		}

		s.handleRecord(pipeline, record)
	}
}

func (s *Service) handleRecord(pipeline *waveform.Pipeline, record string) {
	decoded, err := Decode(record, time.Now())
	if err != nil {
		if errors.Is(err, ErrMalformedRecord) {
			s.malformed.Add(1)
			if logger.IsDebugEnabled() {
				log.Debugf("Registro descartado: %v", err)
			}
		}
		return
	}

	switch decoded.Kind {
	case KindSample:
		reading := pipeline.ProcessSample(decoded.Sample)
		diagnostics := pipeline.Diagnostics()

		s.mutex.Lock()
		s.lastReading = &reading
		s.diagnostics = diagnostics
		if reading.CycleCaptured && s.referenceCycle == nil {
			s.referenceCycle = pipeline.ReferenceCycle()
		}
		s.mutex.Unlock()

		s.history.Add(reading)
		s.samples.Add(1)
		s.queue.Push(reading)

	case KindMessage:
		s.messages.Add(1)
		log.Infof("Mensagem da bancada: %s", decoded.Message.Text)
		s.notifyMessageHandlers(decoded.Message)
	}
}

// handleConnectionError trata erros de conexão com a bancada
func (s *Service) handleConnectionError(err error) {
	s.mutex.Lock()
	s.consecutiveErrors++
	count := s.consecutiveErrors
	s.mutex.Unlock()

	log.Errorf("Erro ao comunicar com a bancada: %v. Tentativa %d", err, count)
	s.client.SetConnected(false)

	if count >= s.config.MaxConsecutiveErrors {
		s.updateStatus(models.StatusError, err.Error(), "")
		return
	}
	s.updateStatus(models.StatusDisconnected, err.Error(), "")
}

// updateStatus atualiza o status e notifica os handlers quando muda
func (s *Service) updateStatus(status, errorMsg, sessionID string) {
	s.mutex.Lock()
	changed := s.status.Status != status || s.status.LastError != errorMsg
	s.status = models.RigStatus{
		Status:     status,
		Timestamp:  time.Now(),
		SessionID:  sessionID,
		Address:    s.client.Address(),
		LastError:  errorMsg,
		ErrorCount: s.consecutiveErrors,
	}
	snapshot := s.status
	s.mutex.Unlock()

	if !changed {
		return
	}

	s.fillCounters(&snapshot)

	switch status {
	case models.StatusError:
		log.Warnf("Status da bancada alterado para %s", snapshot.Label())
	case models.StatusConnected:
		log.Infof("Status da bancada: conectado (sessão %s)", sessionID)
	default:
		log.Infof("Status da bancada: %s", snapshot.Label())
	}

	s.handlersLock.RLock()
	handlers := s.statusHandlers
	s.handlersLock.RUnlock()

	for _, handler := range handlers {
		handler(snapshot)
	}
}

func (s *Service) fillCounters(status *models.RigStatus) {
	status.SamplesProcessed = s.samples.Load()
	status.MalformedRecords = s.malformed.Load()
	status.DeviceMessages = s.messages.Load()
	status.DroppedReadings = s.queue.Dropped()
}

// dispatch entrega as leituras enfileiradas aos handlers registrados
func (s *Service) dispatch() {
	defer close(s.dispatchDone)

	for s.queue.Wait(s.ctx) {
		batch := s.queue.Drain(dispatchBatch)

		s.handlersLock.RLock()
		handlers := s.readingHandlers
		s.handlersLock.RUnlock()

		for _, reading := range batch {
			for _, handler := range handlers {
				handler(reading)
			}
		}
	}
}

func (s *Service) notifyMessageHandlers(msg models.DeviceMessage) {
	s.handlersLock.RLock()
	handlers := s.messageHandlers
	s.handlersLock.RUnlock()

	for _, handler := range handlers {
		handler(msg)
	}
}

// sleepContext espera d ou até o cancelamento; retorna false se cancelado
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
