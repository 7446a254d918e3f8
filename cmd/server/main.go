package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mcb_monitor/internal/config"
	"mcb_monitor/internal/server"
	"mcb_monitor/pkg/logger"
)

func main() {
	logger.Init()
	defer logger.Sync()

	displayBanner()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Erro ao carregar configurações", err)
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.Warnf("%v, usando INFO", err)
	}
	logger.SetLevel(level)

	if cfg.Log.File {
		if err := logger.EnableFileLogging(cfg.Log.Dir, "mcb"); err != nil {
			logger.Warnf("Log em arquivo desabilitado: %v", err)
		}
	}

	logger.Info("Iniciando MCB Monitor")
	logger.Infof("Configuração carregada: bancada %q em %s, Redis em %s:%d (habilitado: %v)",
		cfg.Rig.Name, cfg.Rig.Address(), cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Enabled)
	logger.Infof("Pipeline: janela de offset %d, ciclo %.3fs, alvo %.1fA, fp %.2f",
		cfg.Pipeline.WindowSize, cfg.Pipeline.CycleDuration,
		cfg.Pipeline.TargetCurrent, cfg.Pipeline.PowerFactor)

	srv, err := server.NewServer(cfg)
	if err != nil {
		logger.Fatal("Erro ao criar servidor", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Infof("Sinal %v recebido, desligando servidor...", sig)
	case err := <-errCh:
		if err != nil {
			logger.Error("Servidor encerrado com erro", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Erro durante o shutdown do servidor", err)
	}

	logger.Info("Servidor encerrado com sucesso")
}

// displayBanner exibe um banner de inicialização
func displayBanner() {
	banner := `
  __  __  ____ ____    __  __             _ _
 |  \/  |/ ___| __ )  |  \/  | ___  _ __ (_) |_ ___  _ __
 | |\/| | |   |  _ \  | |\/| |/ _ \| '_ \| | __/ _ \| '__|
 | |  | | |___| |_) | | |  | | (_) | | | | | || (_) | |
 |_|  |_|\____|____/  |_|  |_|\___/|_| |_|_|\__\___/|_|   v` + server.Version + `
`
	fmt.Println(banner)
	fmt.Printf("Iniciando em %s\n\n", time.Now().Format("2006-01-02 15:04:05"))
}
