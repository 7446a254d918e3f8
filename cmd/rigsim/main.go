// Command rigsim simula a bancada de teste: envia rajadas de amostras
// "tensão,timestamp@" de uma senoide de 50 Hz com offset DC e responde aos
// comandos recebidos.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"math"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/grandcat/zeroconf"

	"mcb_monitor/internal/discovery"
	"mcb_monitor/pkg/logger"
)

var log = logger.With("rigsim")

// signalConfig descreve o sinal gerado
type signalConfig struct {
	Offset     float64
	Amplitude  float64
	Frequency  float64
	SampleRate int
	Burst      time.Duration
	Period     time.Duration
}

func main() {
	addr := flag.String("addr", ":8888", "endereço TCP de escuta")
	rate := flag.Int("rate", 10000, "amostras por segundo dentro da rajada")
	burst := flag.Duration("burst", 100*time.Millisecond, "duração de cada rajada")
	period := flag.Duration("period", time.Second, "intervalo entre rajadas")
	offset := flag.Float64("offset", 1750, "offset DC do ADC")
	amplitude := flag.Float64("amplitude", 325, "amplitude de pico")
	frequency := flag.Float64("freq", 50, "frequência da rede (Hz)")
	announce := flag.Bool("mdns", false, "anunciar a bancada via mDNS")
	flag.Parse()

	logger.Init()
	logger.SetIncludeFile(false)

	cfg := signalConfig{
		Offset:     *offset,
		Amplitude:  *amplitude,
		Frequency:  *frequency,
		SampleRate: *rate,
		Burst:      *burst,
		Period:     *period,
	}
	if cfg.SampleRate <= 0 || cfg.Burst <= 0 || cfg.Period <= 0 {
		fmt.Fprintln(os.Stderr, "rate, burst e period devem ser positivos")
		os.Exit(2)
	}

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Fatal("Erro ao abrir porta", err)
	}
	log.Infof("Simulador escutando em %s (%d amostras/s, rajada %v a cada %v)",
		ln.Addr(), cfg.SampleRate, cfg.Burst, cfg.Period)

	if *announce {
		port := ln.Addr().(*net.TCPAddr).Port
		host, _ := os.Hostname()
		server, err := zeroconf.Register(host+"-rigsim", discovery.RigServiceType, discovery.ServiceDomain,
			port, []string{"sim=1"}, nil)
		if err != nil {
			log.Warnf("Falha ao anunciar via mDNS: %v", err)
		} else {
			defer server.Shutdown()
			log.Infof("Anunciado como %s", discovery.RigServiceType)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Errorf("Erro no accept: %v", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			serve(ctx, conn, cfg)
		}()
	}
	wg.Wait()
	log.Infof("Simulador encerrado")
}

// serve atende um cliente até a conexão cair ou o contexto terminar
func serve(ctx context.Context, conn net.Conn, cfg signalConfig) {
	log.Infof("Cliente conectado: %s", conn.RemoteAddr())
	defer log.Infof("Cliente desconectado: %s", conn.RemoteAddr())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writeMu sync.Mutex
	write := func(s string) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		_, err := conn.Write([]byte(s))
		return err
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go func() {
		defer cancel()
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			cmd := strings.TrimSpace(scanner.Text())
			if cmd == "" {
				continue
			}
			log.Infof("Comando recebido: %s", cmd)
			if err := write(reply(cmd)); err != nil {
				return
			}
		}
	}()

	start := time.Now()
	ticker := time.NewTicker(cfg.Period)
	defer ticker.Stop()

	for {
		elapsed := time.Since(start)
		if err := write(formatBurst(cfg, elapsed.Microseconds())); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// formatBurst gera os registros de uma rajada começando em startUs
func formatBurst(cfg signalConfig, startUs int64) string {
	n := int(math.Round(cfg.Burst.Seconds() * float64(cfg.SampleRate)))
	stepUs := 1e6 / float64(cfg.SampleRate)

	var b strings.Builder
	for k := 0; k < n; k++ {
		ts := startUs + int64(math.Round(float64(k)*stepUs))
		t := float64(ts) / 1e6
		v := cfg.Offset + cfg.Amplitude*math.Sin(2*math.Pi*cfg.Frequency*t)
		fmt.Fprintf(&b, "%.2f,%d@", v, ts)
	}
	return b.String()
}

// reply monta a resposta da bancada a um comando
func reply(cmd string) string {
	upper := strings.ToUpper(cmd)
	if strings.HasPrefix(upper, "CONFIG:RL") {
		r, l := "?", "?"
		for _, field := range strings.Split(cmd, ",")[1:] {
			key, value, ok := strings.Cut(field, ":")
			if !ok {
				continue
			}
			switch strings.ToUpper(strings.TrimSpace(key)) {
			case "R":
				r = strings.TrimSpace(value)
			case "L":
				l = strings.TrimSpace(value)
			}
		}
		return fmt.Sprintf("RL CONFIG OK R=%s L=%s\n", r, l)
	}
	return "OK " + cmd + "\n"
}
