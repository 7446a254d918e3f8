package plc

import (
	"context"
	"sync"
	"time"

	"mcb_monitor/internal/config"
	"mcb_monitor/internal/models"
	"mcb_monitor/pkg/logger"
	"mcb_monitor/pkg/utils"
)

var log = logger.With("plc")

// Layout do DB espelhado (offsets em bytes)
const (
	offsetVoltage       = 0  // REAL
	offsetCurrent       = 4  // REAL
	offsetPowerFactor   = 8  // REAL
	offsetTargetCurrent = 12 // REAL
	offsetDCOffset      = 16 // REAL
	offsetStatus        = 20 // INT
	offsetCycleCaptured = 22 // INT (0/1)
	blockSize           = 24
)

// Códigos de status gravados no PLC
var statusCodes = map[string]int16{
	models.StatusIdle:         0,
	models.StatusConnecting:   1,
	models.StatusConnected:    2,
	models.StatusDisconnected: 3,
	models.StatusError:        4,
}

// Snapshot é o conjunto de valores espelhados a cada atualização
type Snapshot struct {
	Reading models.Reading
	State   models.PowerFactorState
	Status  string
}

// blockWriter é a parte do cliente S7 usada pelo serviço
type blockWriter interface {
	WriteDataBlock(dbNumber int, startOffset int, data []byte) error
	IsConnected() bool
	Disconnect()
}

// PLCService espelha os valores ao vivo da bancada num DB do PLC
type PLCService struct {
	client          blockWriter
	config          config.PLCConfig
	ctx             context.Context
	cancel          context.CancelFunc
	updateFrequency time.Duration
	snapshot        Snapshot
	dirty           bool
	mutex           sync.RWMutex
	running         bool
	done            chan struct{}
}

// NewPLCService cria um novo serviço de PLC
func NewPLCService(cfg config.PLCConfig) *PLCService {
	return newService(cfg, NewS7Client(cfg))
}

func newService(cfg config.PLCConfig, client blockWriter) *PLCService {
	ctx, cancel := context.WithCancel(context.Background())
	return &PLCService{
		client:          client,
		config:          cfg,
		ctx:             ctx,
		cancel:          cancel,
		updateFrequency: cfg.UpdateRate,
		snapshot:        Snapshot{Status: models.StatusIdle},
	}
}

// Start inicia o loop de atualização. Uma falha na conexão inicial não impede
// o início; o loop tenta reconectar a cada gravação.
func (s *PLCService) Start() error {
	if !s.config.Enabled {
		log.Infof("Serviço PLC desabilitado por configuração")
		return nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return nil
	}

	if c, ok := s.client.(*S7Client); ok {
		if err := c.Connect(); err != nil {
			log.Warnf("PLC indisponível: %v. Nova tentativa na próxima atualização.", err)
		}
	}

	if s.updateFrequency <= 0 {
		s.updateFrequency = 200 * time.Millisecond
	}

	s.done = make(chan struct{})
	go s.runUpdateLoop()

	s.running = true
	log.Infof("Serviço PLC iniciado (DB%d, a cada %v)", s.config.DBNumber, s.updateFrequency)
	return nil
}

// Stop para o serviço de comunicação com o PLC
func (s *PLCService) Stop() {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return
	}
	s.running = false
	done := s.done
	s.mutex.Unlock()

	s.cancel()
	<-done
	s.client.Disconnect()
	log.Infof("Serviço PLC parado")
}

// IsRunning verifica se o serviço está em execução
func (s *PLCService) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.running
}

// IsConnected informa se a última comunicação com o PLC funcionou
func (s *PLCService) IsConnected() bool {
	return s.IsRunning() && s.client.IsConnected()
}

// HandleReading guarda a leitura para a próxima atualização
func (s *PLCService) HandleReading(reading models.Reading) {
	s.mutex.Lock()
	s.snapshot.Reading = reading
	s.dirty = true
	s.mutex.Unlock()
}

// HandleStatus guarda o status da bancada para a próxima atualização
func (s *PLCService) HandleStatus(status models.RigStatus) {
	s.mutex.Lock()
	s.snapshot.Status = status.Status
	s.dirty = true
	s.mutex.Unlock()
}

// HandlePowerFactor guarda o estado de fator de potência
func (s *PLCService) HandlePowerFactor(state models.PowerFactorState) {
	s.mutex.Lock()
	s.snapshot.State = state
	s.dirty = true
	s.mutex.Unlock()
}

// runUpdateLoop grava o snapshot no PLC quando houver mudanças
func (s *PLCService) runUpdateLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.updateFrequency)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.flush()
		}
	}
}

func (s *PLCService) flush() {
	s.mutex.Lock()
	if !s.dirty {
		s.mutex.Unlock()
		return
	}
	snapshot := s.snapshot
	s.dirty = false
	s.mutex.Unlock()

	if err := s.client.WriteDataBlock(s.config.DBNumber, 0, EncodeBlock(snapshot)); err != nil {
		log.Errorf("Falha ao atualizar PLC: %v", err)
		// Regravar na próxima atualização
		s.mutex.Lock()
		s.dirty = true
		s.mutex.Unlock()
	}
}

// EncodeBlock monta o conteúdo do DB (REAL/INT big endian)
func EncodeBlock(snapshot Snapshot) []byte {
	block := make([]byte, blockSize)
	putReal := func(offset int, v float64) {
		copy(block[offset:], utils.Float32ToBytes(float32(v)))
	}
	putInt := func(offset int, v int16) {
		copy(block[offset:], utils.Int16ToBytes(v))
	}

	putReal(offsetVoltage, snapshot.Reading.Voltage)
	putReal(offsetCurrent, snapshot.Reading.Current)
	putReal(offsetPowerFactor, snapshot.State.PowerFactor)
	putReal(offsetTargetCurrent, snapshot.State.TargetCurrent)
	putReal(offsetDCOffset, snapshot.Reading.DCOffset)

	code, ok := statusCodes[snapshot.Status]
	if !ok {
		code = -1
	}
	putInt(offsetStatus, code)

	var captured int16
	if snapshot.Reading.CycleCaptured {
		captured = 1
	}
	putInt(offsetCycleCaptured, captured)

	return block
}
