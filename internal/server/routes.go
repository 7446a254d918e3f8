package server

import (
	"encoding/json"
	"net/http"
	"time"

	"mcb_monitor/internal/api"
	"mcb_monitor/internal/websocket"
	"mcb_monitor/pkg/logger"
	"mcb_monitor/pkg/utils"
)

// setupRoutes configura todas as rotas do servidor
func (s *Server) setupRoutes() {
	wsHandler := websocket.NewHandler(s.wsHub)

	var browser api.Browser
	if s.config.Discovery.Enabled {
		browser = s.discoveryService
	}
	var cache api.ReadingCache
	if s.config.Redis.Enabled {
		cache = s.redisService
	}

	apiRouter := api.NewRouter(api.NewHandler(s.rigService, cache, browser), "/api")
	apiRouter.Setup()

	s.router.HandleFunc("/health", s.healthHandler)
	s.router.HandleFunc("/info", s.infoHandler)

	s.router.Handle("/ws", wsHandler)
	s.router.HandleFunc("/ws/health", wsHandler.GetHealthHandler())

	s.router.Handle("/api/", apiRouter.Handler())
}

// healthHandler responde com o status de saúde do servidor
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	rigStatus := s.rigService.GetStatus()

	services := map[string]string{
		"rig":       rigStatus.Label(),
		"websocket": "ok",
		"redis":     serviceState(s.config.Redis.Enabled, s.redisService.IsConnected()),
		"plc":       serviceState(s.config.PLC.Enabled, s.plcService.IsConnected()),
		"mqtt":      serviceState(s.config.MQTT.Enabled, s.mqttPublisher.IsConnected()),
		"discovery": serviceState(s.config.Discovery.Enabled, s.discoveryService.IsRunning()),
	}

	status := "ok"
	if !s.rigService.IsConnected() || services["redis"] == "offline" {
		status = "degraded"
	}

	writeJSON(w, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now(),
		"services":  services,
	})
}

// infoHandler retorna informações sobre o servidor e a bancada
func (s *Server) infoHandler(w http.ResponseWriter, r *http.Request) {
	info := s.GetServerInfo()
	rigStatus := s.rigService.GetStatus()
	published, skipped, failed := s.mqttPublisher.Stats()

	writeJSON(w, map[string]interface{}{
		"name":        "MCB Monitor",
		"version":     info.Version,
		"ip":          info.IP,
		"port":        info.Port,
		"websocket":   info.WebSocketURL,
		"api":         info.APIURL,
		"startTime":   info.StartTime,
		"uptime":      utils.FormatDuration(time.Since(info.StartTime)),
		"connections": info.Connections,
		"hub":         s.wsHub.Stats(),
		"rig": map[string]interface{}{
			"status":           rigStatus.Label(),
			"address":          rigStatus.Address,
			"sessionId":        rigStatus.SessionID,
			"samplesProcessed": rigStatus.SamplesProcessed,
			"malformedRecords": rigStatus.MalformedRecords,
			"droppedReadings":  rigStatus.DroppedReadings,
			"lastUpdate":       utils.TimeAgo(rigStatus.Timestamp),
			"powerFactor":      s.rigService.PowerFactorState(),
		},
		"mqtt": map[string]interface{}{
			"enabled":   s.config.MQTT.Enabled,
			"published": published,
			"skipped":   skipped,
			"failed":    failed,
		},
		"discovery": map[string]interface{}{
			"enabled":      s.config.Discovery.Enabled,
			"running":      s.discoveryService.IsRunning(),
			"instanceName": s.discoveryService.GetInstanceName(),
		},
	})
}

func serviceState(enabled, up bool) string {
	switch {
	case !enabled:
		return "disabled"
	case up:
		return "ok"
	}
	return "offline"
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Errorf("Erro ao codificar resposta JSON: %v", err)
	}
}
