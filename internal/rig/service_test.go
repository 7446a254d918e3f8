package rig

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcb_monitor/internal/config"
	"mcb_monitor/internal/models"
)

func testConfig(t *testing.T, addr string) config.RigConfig {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return config.RigConfig{
		Name:                 "teste",
		Host:                 host,
		Port:                 port,
		Delimiters:           "@\n",
		DialTimeout:          time.Second,
		ReadTimeout:          50 * time.Millisecond,
		WriteTimeout:         time.Second,
		ReconnectDelay:       20 * time.Millisecond,
		MaxConsecutiveErrors: 2,
		QueueSize:            64,
		HistorySize:          16,
		AutoConnect:          true,
	}
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return ln
}

type statusLog struct {
	mu       sync.Mutex
	statuses []models.RigStatus
}

func (l *statusLog) add(s models.RigStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses = append(l.statuses, s)
}

func (l *statusLog) sessions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var ids []string
	for _, s := range l.statuses {
		if s.Status == models.StatusConnected {
			ids = append(ids, s.SessionID)
		}
	}
	return ids
}

func TestServiceStreamsReadings(t *testing.T) {
	ln := listen(t)
	raws := []float64{1750, 1755, 1745, 1760, 1738, 1752, 1748, 1751, 1749, 1753, 1747, 1756}

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for i, raw := range raws {
			fmt.Fprintf(conn, "%v,%d@", raw, i*1000)
		}
		fmt.Fprint(conn, "17a,1@RL CONFIG OK R=25 L=0.01\n")
		time.Sleep(time.Second)
	}()

	svc := NewService(testConfig(t, ln.Addr().String()), config.DefaultPipeline())
	readings := make(chan models.Reading, 64)
	messages := make(chan models.DeviceMessage, 4)
	svc.RegisterReadingHandler(func(r models.Reading) { readings <- r })
	svc.RegisterMessageHandler(func(m models.DeviceMessage) { messages <- m })

	require.NoError(t, svc.Start())
	defer svc.Stop()

	var got []models.Reading
	for len(got) < len(raws) {
		select {
		case r := <-readings:
			got = append(got, r)
		case <-time.After(2 * time.Second):
			t.Fatalf("recebidas %d de %d leituras", len(got), len(raws))
		}
	}

	assert.Equal(t, 1750.0, got[0].Voltage)
	assert.Equal(t, 1738.0, got[11].DCOffset)
	assert.Equal(t, 1756.0-1738, got[11].Voltage)
	assert.Equal(t, 0.011, got[11].Timestamp)

	select {
	case m := <-messages:
		assert.Equal(t, "RL CONFIG OK R=25 L=0.01", m.Text)
		assert.True(t, m.Confirmation)
	case <-time.After(2 * time.Second):
		t.Fatal("mensagem da bancada não recebida")
	}

	status := svc.GetStatus()
	assert.Equal(t, models.StatusConnected, status.Status)
	assert.NotEmpty(t, status.SessionID)
	assert.Equal(t, int64(len(raws)), status.SamplesProcessed)
	assert.Equal(t, int64(1), status.MalformedRecords)
	assert.Equal(t, int64(1), status.DeviceMessages)

	last := svc.GetLastReading()
	require.NotNil(t, last)
	assert.Equal(t, got[11], *last)
}

func TestServiceSendCommand(t *testing.T) {
	ln := listen(t)
	received := make(chan string, 4)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			received <- line
		}
	}()

	svc := NewService(testConfig(t, ln.Addr().String()), config.DefaultPipeline())
	require.NoError(t, svc.Start())
	defer svc.Stop()

	require.Eventually(t, svc.IsConnected, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, svc.SendCommand(SetPowerFactor{Current: 1200, PowerFactor: 0.9}))
	assert.Equal(t, "1200.0,0.900\n", <-received)

	state := svc.PowerFactor().Snapshot()
	assert.Equal(t, 1200.0, state.TargetCurrent)
	assert.Equal(t, 0.9, state.PowerFactor)

	require.NoError(t, svc.SendCommand(Stop))
	assert.Equal(t, "STOP\n", <-received)

	sent, err := svc.SetPowerFactor(800, 0.5)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, "800.0,0.500\n", <-received)
}

func TestServiceSendCommandErrors(t *testing.T) {
	svc := NewService(testConfig(t, "127.0.0.1:1"), config.DefaultPipeline())
	var notified []models.PowerFactorState
	svc.RegisterPowerFactorHandler(func(state models.PowerFactorState) {
		notified = append(notified, state)
	})

	err := svc.SendCommand(SetPowerFactor{Current: 1000, PowerFactor: 2})
	assert.ErrorIs(t, err, ErrInvalidCommand)

	err = svc.SendCommand(Stop)
	assert.ErrorIs(t, err, ErrNotConnected)

	// Sem conexão, só o estado é atualizado
	sent, err := svc.SetPowerFactor(500, 0.6)
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Equal(t, 0.6, svc.PowerFactor().Snapshot().PowerFactor)

	_, err = svc.SetPowerFactor(500, 1.6)
	assert.Error(t, err)
	assert.Equal(t, 0.6, svc.PowerFactor().Snapshot().PowerFactor)

	require.Len(t, notified, 1)
	assert.Equal(t, models.PowerFactorState{TargetCurrent: 500, PowerFactor: 0.6}, notified[0])
}

func TestServiceErrorStatusAfterRepeatedFailures(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	svc := NewService(testConfig(t, addr), config.DefaultPipeline())
	require.NoError(t, svc.Start())
	defer svc.Stop()

	require.Eventually(t, func() bool {
		return svc.GetStatus().Status == models.StatusError
	}, 3*time.Second, 10*time.Millisecond)

	status := svc.GetStatus()
	assert.Contains(t, status.Label(), "error: ")
	assert.GreaterOrEqual(t, status.ErrorCount, 2)
	assert.False(t, svc.IsConnected())
}

func TestServiceReconnectsWithNewSession(t *testing.T) {
	ln := listen(t)

	go func() {
		for i := 0; i < 2; i++ {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			fmt.Fprintf(conn, "1750,%d@", i)
			if i == 0 {
				conn.Close()
				continue
			}
			time.Sleep(time.Second)
			conn.Close()
		}
	}()

	svc := NewService(testConfig(t, ln.Addr().String()), config.DefaultPipeline())
	statuses := &statusLog{}
	svc.RegisterStatusHandler(statuses.add)

	require.NoError(t, svc.Start())
	defer svc.Stop()

	require.Eventually(t, func() bool {
		return len(statuses.sessions()) >= 2
	}, 3*time.Second, 10*time.Millisecond)

	ids := statuses.sessions()
	assert.NotEqual(t, ids[0], ids[1])
}

func TestServiceDisconnect(t *testing.T) {
	ln := listen(t)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(2 * time.Second)
	}()

	cfg := testConfig(t, ln.Addr().String())
	cfg.AutoConnect = false
	svc := NewService(cfg, config.DefaultPipeline())
	require.NoError(t, svc.Start())
	defer svc.Stop()

	assert.Equal(t, models.StatusIdle, svc.GetStatus().Status)

	require.NoError(t, svc.Connect())
	require.NoError(t, svc.Connect())
	require.Eventually(t, svc.IsConnected, 2*time.Second, 10*time.Millisecond)

	svc.Disconnect()
	assert.False(t, svc.IsConnected())
	assert.Equal(t, models.StatusDisconnected, svc.GetStatus().Status)
}

func TestServiceConnectRequiresStart(t *testing.T) {
	svc := NewService(testConfig(t, "127.0.0.1:1"), config.DefaultPipeline())
	assert.Error(t, svc.Connect())
}

func TestServiceResolverOverridesConfiguredHost(t *testing.T) {
	ln := listen(t)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(time.Second)
	}()

	// Host estático inalcançável; só o resolver aponta para o listener
	cfg := testConfig(t, "10.255.255.1:8888")
	cfg.DialTimeout = 200 * time.Millisecond
	svc := NewService(cfg, config.DefaultPipeline())

	var calls atomic.Int32
	svc.SetResolver(func(ctx context.Context) (string, error) {
		calls.Add(1)
		return ln.Addr().String(), nil
	})

	require.NoError(t, svc.Start())
	defer svc.Stop()

	require.Eventually(t, svc.IsConnected, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
	assert.Equal(t, ln.Addr().String(), svc.GetStatus().Address)
}

func TestServiceResolverFailureIsConnectionError(t *testing.T) {
	cfg := testConfig(t, "127.0.0.1:1")
	svc := NewService(cfg, config.DefaultPipeline())
	svc.SetResolver(func(ctx context.Context) (string, error) {
		return "", errors.New("nenhuma bancada")
	})

	require.NoError(t, svc.Start())
	defer svc.Stop()

	require.Eventually(t, func() bool {
		return svc.GetStatus().Status == models.StatusError
	}, 3*time.Second, 10*time.Millisecond)
	assert.Contains(t, svc.GetStatus().LastError, "mDNS")
}

func TestServiceKeepsHistoryAndCycle(t *testing.T) {
	ln := listen(t)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		// 50 Hz a 1 kHz: o ciclo fecha na amostra de 21 ms
		for i := 0; i < 30; i++ {
			ts := i * 1000
			fmt.Fprintf(conn, "%.3f,%d@", 1750+325*math.Sin(2*math.Pi*50*float64(ts)/1e6), ts)
		}
		time.Sleep(time.Second)
	}()

	svc := NewService(testConfig(t, ln.Addr().String()), config.DefaultPipeline())
	assert.Nil(t, svc.ReferenceCycle())

	require.NoError(t, svc.Start())
	defer svc.Stop()

	require.Eventually(t, func() bool {
		return svc.GetStatus().SamplesProcessed == 30
	}, 2*time.Second, 10*time.Millisecond)

	history := svc.History(0)
	require.Len(t, history, 16)
	assert.Equal(t, 0.014, history[0].Timestamp)
	assert.Equal(t, 0.029, history[15].Timestamp)
	assert.Len(t, svc.History(4), 4)

	diag := svc.Diagnostics()
	assert.Equal(t, "captured", diag.CycleState)
	assert.Equal(t, 21, diag.ReferencePoints)
	assert.Equal(t, int64(30), diag.Processed)
	assert.True(t, diag.OffsetValid)

	cycle := svc.ReferenceCycle()
	require.Len(t, cycle, 21)
	assert.Equal(t, 0.0, cycle[0].Time)

	svc.ClearHistory()
	assert.Empty(t, svc.History(0))
	require.NotNil(t, svc.GetLastReading())
}
