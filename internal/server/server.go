package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"mcb_monitor/internal/config"
	"mcb_monitor/internal/discovery"
	"mcb_monitor/internal/models"
	"mcb_monitor/internal/mqtt"
	"mcb_monitor/internal/plc"
	"mcb_monitor/internal/redis"
	"mcb_monitor/internal/rig"
	"mcb_monitor/internal/websocket"
	"mcb_monitor/pkg/logger"
)

// Version é a versão anunciada em /info e no mDNS
const Version = "1.0.0"

// Server encapsula o servidor HTTP com todos os componentes
type Server struct {
	config           *config.Config
	httpServer       *http.Server
	router           *http.ServeMux
	rigService       *rig.Service
	redisService     *redis.Service
	plcService       *plc.PLCService
	mqttPublisher    *mqtt.Publisher
	wsHub            *websocket.Hub
	discoveryService *discovery.DiscoveryService
	serverInfo       ServerInfo
}

// ServerInfo contém informações sobre o servidor
type ServerInfo struct {
	IP           string
	Port         int
	StartTime    time.Time
	Connections  int
	Version      string
	WebSocketURL string
	APIURL       string
}

// NewServer cria uma nova instância do servidor
func NewServer(cfg *config.Config) (*Server, error) {
	server := &Server{
		config: cfg,
		router: http.NewServeMux(),
		serverInfo: ServerInfo{
			StartTime: time.Now(),
			Version:   Version,
			Port:      cfg.Server.Port,
		},
	}

	ip := localIP()
	server.serverInfo.IP = ip
	server.serverInfo.WebSocketURL = fmt.Sprintf("ws://%s:%d/ws", ip, cfg.Server.Port)
	server.serverInfo.APIURL = fmt.Sprintf("http://%s:%d/api", ip, cfg.Server.Port)

	if err := server.initComponents(); err != nil {
		return nil, err
	}

	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return server, nil
}

// initComponents cria os serviços e liga os handlers da bancada aos consumidores
func (s *Server) initComponents() error {
	s.wsHub = websocket.NewHub(s.config.Server.DisplayInterval)
	go s.wsHub.Run()

	redisService, err := redis.NewService(s.config.Redis)
	if err != nil {
		return fmt.Errorf("erro ao inicializar serviço Redis: %w", err)
	}
	s.redisService = redisService

	s.rigService = rig.NewService(s.config.Rig, s.config.Pipeline)
	s.wsHub.SetController(s.rigService)

	s.plcService = plc.NewPLCService(s.config.PLC)
	s.mqttPublisher = mqtt.NewPublisher(s.config.MQTT)
	s.discoveryService = discovery.NewDiscoveryService(s.config.Server.Port, s.config.Discovery)

	if s.config.Rig.Host == "" || s.config.Discovery.BrowseRig {
		s.rigService.SetResolver(s.discoveryService.ResolveRig)
	}

	s.wireHandlers()
	return nil
}

// wireHandlers registra os consumidores de leituras, status, mensagens e fator de potência
func (s *Server) wireHandlers() {
	s.rigService.RegisterReadingHandler(s.wsHub.BroadcastReading)
	s.rigService.RegisterReadingHandler(s.redisService.HandleReading)
	s.rigService.RegisterReadingHandler(s.mqttPublisher.HandleReading)
	s.rigService.RegisterReadingHandler(s.plcService.HandleReading)

	s.rigService.RegisterStatusHandler(s.wsHub.BroadcastStatus)
	s.rigService.RegisterStatusHandler(s.mqttPublisher.HandleStatus)
	s.rigService.RegisterStatusHandler(s.plcService.HandleStatus)
	s.rigService.RegisterStatusHandler(func(status models.RigStatus) {
		if err := s.redisService.WriteStatus(status); err != nil {
			logger.Warnf("Falha ao gravar status no Redis: %v", err)
		}
	})

	s.rigService.RegisterMessageHandler(s.wsHub.BroadcastDeviceMessage)
	s.rigService.RegisterMessageHandler(s.mqttPublisher.HandleMessage)

	s.rigService.RegisterPowerFactorHandler(s.wsHub.BroadcastPowerFactor)
	s.rigService.RegisterPowerFactorHandler(s.mqttPublisher.HandlePowerFactor)
	s.rigService.RegisterPowerFactorHandler(s.plcService.HandlePowerFactor)
	s.rigService.RegisterPowerFactorHandler(func(state models.PowerFactorState) {
		if err := s.redisService.WritePowerFactor(state); err != nil {
			logger.Warnf("Falha ao gravar fator de potência no Redis: %v", err)
		}
	})
}

// Start inicia os serviços e o servidor HTTP (bloqueia até o shutdown)
func (s *Server) Start() error {
	if err := s.discoveryService.Start(); err != nil {
		logger.Warnf("Erro ao iniciar serviço de descoberta: %v", err)
	}

	s.redisService.Start()

	if err := s.mqttPublisher.Start(); err != nil {
		logger.Warnf("Erro ao iniciar publicador MQTT: %v", err)
	}

	if err := s.plcService.Start(); err != nil {
		logger.Errorf("Erro ao iniciar serviço PLC: %v", err)
	}

	// Estado inicial para os espelhos
	state := s.rigService.PowerFactorState()
	s.plcService.HandlePowerFactor(state)
	s.mqttPublisher.HandlePowerFactor(state)
	if err := s.redisService.WritePowerFactor(state); err != nil {
		logger.Warnf("Falha ao gravar fator de potência no Redis: %v", err)
	}

	if err := s.rigService.Start(); err != nil {
		return fmt.Errorf("erro ao iniciar serviço da bancada: %w", err)
	}

	s.logServerInfo()

	logger.Infof("Iniciando servidor HTTP na porta %d", s.config.Server.Port)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("erro ao iniciar servidor HTTP: %w", err)
	}
	return nil
}

// Shutdown encerra graciosamente o servidor e todos os serviços
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Iniciando shutdown do servidor")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("Erro ao encerrar servidor HTTP: %v", err)
	}

	s.discoveryService.Stop()

	// A bancada para primeiro: nenhum handler é chamado depois disso
	s.rigService.Stop()

	s.plcService.Stop()
	s.mqttPublisher.Stop()
	s.wsHub.Shutdown()
	s.redisService.Shutdown()

	logger.Info("Shutdown completo")
	return nil
}

// localIP obtém o endereço IP local ("localhost" se não houver rede)
func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "localhost"
	}

	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}
	return "localhost"
}

// GetServerInfo retorna informações sobre o servidor
func (s *Server) GetServerInfo() ServerInfo {
	info := s.serverInfo
	info.Connections = s.wsHub.ClientCount()
	return info
}

// logServerInfo exibe informações do servidor no log
func (s *Server) logServerInfo() {
	logger.Info("===============================================")
	logger.Info("               MCB Monitor Server              ")
	logger.Info("===============================================")
	logger.Infof("Versão: %s", s.serverInfo.Version)
	logger.Infof("Endereço IP: %s", s.serverInfo.IP)
	logger.Infof("Porta HTTP: %d", s.serverInfo.Port)
	logger.Infof("WebSocket URL: %s", s.serverInfo.WebSocketURL)
	logger.Infof("API URL: %s", s.serverInfo.APIURL)
	logger.Infof("Bancada: %s", s.rigService.GetStatus().Address)
	if s.discoveryService.IsRunning() {
		logger.Infof("mDNS: %s.%s.%s",
			s.discoveryService.GetInstanceName(),
			discovery.ServiceType,
			discovery.ServiceDomain)
	}
	logger.Info("===============================================")
	logger.Info("Servidor pronto para conexões!")
}
