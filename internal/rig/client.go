package rig

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"mcb_monitor/pkg/logger"
)

// Client gerencia a conexão TCP com o microcontrolador da bancada
type Client struct {
	address      string
	dialTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	conn      net.Conn
	connected bool
	mutex     sync.Mutex
	writeMu   sync.Mutex
}

// NewClient cria uma nova instância do cliente da bancada
func NewClient(address string, dialTimeout, readTimeout, writeTimeout time.Duration) *Client {
	return &Client{
		address:      address,
		dialTimeout:  dialTimeout,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// Connect estabelece conexão com a bancada
func (c *Client) Connect(ctx context.Context) error {
	c.mutex.Lock()
	if c.connected {
		c.mutex.Unlock()
		return nil
	}
	address := c.address
	c.mutex.Unlock()

	log.Debugf("Tentando conectar à bancada em %s...", address)

	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("erro ao conectar à bancada em %s: %w", address, err)
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.connected {
		conn.Close()
		return nil
	}
	c.conn = conn
	c.connected = true
	log.Infof("Conectado à bancada em %s", address)
	return nil
}

// Write envia um payload já codificado, com timeout de escrita
func (c *Client) Write(payload string) error {
	c.mutex.Lock()
	conn := c.conn
	connected := c.connected
	c.mutex.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if _, err := io.WriteString(conn, payload); err != nil {
		c.SetConnected(false)
		return fmt.Errorf("erro ao enviar comando: %w", err)
	}

	if logger.IsDebugEnabled() {
		log.Debugf("Enviado: %q", payload)
	}
	return nil
}

// Reader retorna um leitor que renova o timeout antes de cada leitura
func (c *Client) Reader() (io.Reader, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.connected || c.conn == nil {
		return nil, ErrNotConnected
	}
	return &deadlineReader{conn: c.conn, timeout: c.readTimeout}, nil
}

// SetAddress troca o endereço usado na próxima conexão
func (c *Client) SetAddress(address string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.address = address
}

// Address retorna o endereço configurado
func (c *Client) Address() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.address
}

// SetConnected define o estado de conexão
func (c *Client) SetConnected(connected bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.connected = connected
}

// IsConnected verifica se o cliente está conectado
func (c *Client) IsConnected() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.connected
}

// Close fecha a conexão com a bancada
func (c *Client) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.connected = false
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	log.Infof("Conexão com a bancada fechada")
	return err
}

type deadlineReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (r *deadlineReader) Read(p []byte) (int, error) {
	if r.timeout > 0 {
		r.conn.SetReadDeadline(time.Now().Add(r.timeout))
	}
	return r.conn.Read(p)
}
