package plc

import (
	"fmt"
	"sync"
	"time"

	"github.com/robinson/gos7"

	"mcb_monitor/internal/config"
)

// S7Client encapsula a comunicação com o PLC S7
type S7Client struct {
	client       gos7.Client
	handler      *gos7.TCPClientHandler
	config       config.PLCConfig
	connected    bool
	connectMutex sync.Mutex
}

// NewS7Client cria um novo cliente para PLC S7
func NewS7Client(cfg config.PLCConfig) *S7Client {
	return &S7Client{config: cfg}
}

// Connect estabelece conexão com o PLC
func (c *S7Client) Connect() error {
	c.connectMutex.Lock()
	defer c.connectMutex.Unlock()
	return c.connectLocked()
}

func (c *S7Client) connectLocked() error {
	if c.connected {
		return nil
	}

	if c.handler != nil {
		c.handler.Close()
	}

	handler := gos7.NewTCPClientHandler(c.config.Host, c.config.Rack, c.config.Slot)
	handler.Timeout = c.config.ReadTimeout
	handler.IdleTimeout = 70 * time.Second

	if err := handler.Connect(); err != nil {
		return fmt.Errorf("erro ao conectar ao PLC: %w", err)
	}

	c.handler = handler
	c.client = gos7.NewClient(handler)
	c.connected = true
	log.Infof("Conectado ao PLC em %s (Rack: %d, Slot: %d)",
		c.config.Host, c.config.Rack, c.config.Slot)

	return nil
}

// Disconnect fecha a conexão com o PLC
func (c *S7Client) Disconnect() {
	c.connectMutex.Lock()
	defer c.connectMutex.Unlock()

	if c.handler != nil {
		c.handler.Close()
		c.handler = nil
		c.client = nil
		c.connected = false
		log.Infof("Desconectado do PLC")
	}
}

// IsConnected verifica se o cliente está conectado
func (c *S7Client) IsConnected() bool {
	c.connectMutex.Lock()
	defer c.connectMutex.Unlock()
	return c.connected
}

// WriteDataBlock escreve em um bloco de dados do PLC
func (c *S7Client) WriteDataBlock(dbNumber int, startOffset int, data []byte) error {
	c.connectMutex.Lock()
	defer c.connectMutex.Unlock()

	if err := c.connectLocked(); err != nil {
		return err
	}

	if err := c.client.AGWriteDB(dbNumber, startOffset, len(data), data); err != nil {
		c.connected = false
		return fmt.Errorf("erro ao escrever DB%d: %w", dbNumber, err)
	}
	return nil
}
