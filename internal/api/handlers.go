package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"mcb_monitor/internal/discovery"
	"mcb_monitor/internal/models"
	"mcb_monitor/internal/rig"
	"mcb_monitor/internal/waveform"
	"mcb_monitor/pkg/logger"
)

var log = logger.With("api")

// Rig é o serviço da bancada visto pela API
type Rig interface {
	GetStatus() models.RigStatus
	GetLastReading() *models.Reading
	PowerFactorState() models.PowerFactorState
	SetPowerFactor(current, powerFactor float64) (sent bool, err error)
	SendNamedCommand(name string, params map[string]interface{}) error
	Connect() error
	Disconnect()
	IsConnected() bool
	History(limit int) []models.Reading
	ClearHistory()
	Diagnostics() models.PipelineDiagnostics
	ReferenceCycle() []waveform.CyclePoint
}

// ReadingCache fornece as leituras gravadas no Redis
type ReadingCache interface {
	IsConnected() bool
	GetLatestReading() (*models.Reading, error)
	GetRecentReadings(limit int) ([]models.Reading, error)
	ClearReadings() error
}

// Limites de GET /api/readings
const (
	defaultReadingsLimit = 200
	maxReadingsLimit     = 5000
)

// Browser procura bancadas na rede
type Browser interface {
	Browse(ctx context.Context) ([]discovery.RigEntry, error)
}

// Handler contém os handlers HTTP para a API
type Handler struct {
	rig     Rig
	cache   ReadingCache
	browser Browser
}

// NewHandler cria um novo handler de API. cache e browser são opcionais.
func NewHandler(rigService Rig, cache ReadingCache, browser Browser) *Handler {
	return &Handler{
		rig:     rigService,
		cache:   cache,
		browser: browser,
	}
}

// GetStatus retorna o status atual da conexão com a bancada
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return
	}

	status := h.rig.GetStatus()
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"label":     status.Label(),
		"connected": h.rig.IsConnected(),
		"pipeline":  h.rig.Diagnostics(),
	})
}

// GetReading retorna a última leitura reconstruída
func (h *Handler) GetReading(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return
	}

	reading := h.rig.GetLastReading()

	// Depois de um reinício, a última leitura só existe no Redis
	if reading == nil && h.cache != nil && h.cache.IsConnected() {
		cached, err := h.cache.GetLatestReading()
		if err != nil {
			log.Warnf("Erro ao ler leitura do cache: %v", err)
		} else {
			reading = cached
		}
	}

	if reading == nil {
		h.respondWithError(w, http.StatusNotFound, "Nenhum dado disponível")
		return
	}
	h.respondWithJSON(w, http.StatusOK, reading)
}

// Readings lista (GET) ou apaga (DELETE) as leituras recentes
func (h *Handler) Readings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := defaultReadingsLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				h.respondWithError(w, http.StatusBadRequest, "Parâmetro limit inválido")
				return
			}
			limit = min(n, maxReadingsLimit)
		}

		source := "memory"
		readings := h.rig.History(limit)

		// Sem leituras em memória (ex.: após reinício), usa a lista do Redis
		if len(readings) == 0 && h.cache != nil && h.cache.IsConnected() {
			cached, err := h.cache.GetRecentReadings(limit)
			if err != nil {
				log.Warnf("Erro ao ler leituras do cache: %v", err)
			} else if len(cached) > 0 {
				readings = cached
				source = "redis"
			}
		}

		h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"readings": readings,
			"count":    len(readings),
			"source":   source,
		})

	case http.MethodDelete:
		h.rig.ClearHistory()
		if h.cache != nil && h.cache.IsConnected() {
			if err := h.cache.ClearReadings(); err != nil {
				h.respondWithError(w, http.StatusBadGateway, err.Error())
				return
			}
		}
		h.respondWithJSON(w, http.StatusOK, map[string]interface{}{"cleared": true})

	default:
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
	}
}

// GetCycle retorna o ciclo de referência capturado na sessão atual
func (h *Handler) GetCycle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return
	}

	points := h.rig.ReferenceCycle()
	if points == nil {
		h.respondWithError(w, http.StatusNotFound, "Ciclo de referência ainda não capturado")
		return
	}
	diag := h.rig.Diagnostics()
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"state":     diag.CycleState,
		"loopStart": diag.LoopStart,
		"points":    points,
	})
}

// powerFactorRequest é o corpo de POST /api/power-factor
type powerFactorRequest struct {
	Current     *float64 `json:"current"`
	PowerFactor *float64 `json:"powerFactor"`
}

// PowerFactor consulta (GET) ou altera (POST) o alvo de corrente e fator de potência
func (h *Handler) PowerFactor(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.respondWithJSON(w, http.StatusOK, h.rig.PowerFactorState())

	case http.MethodPost:
		var req powerFactorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondWithError(w, http.StatusBadRequest, "JSON inválido: "+err.Error())
			return
		}
		if req.Current == nil || req.PowerFactor == nil {
			h.respondWithError(w, http.StatusBadRequest, "Campos current e powerFactor são obrigatórios")
			return
		}

		sent, err := h.rig.SetPowerFactor(*req.Current, *req.PowerFactor)
		if err != nil {
			h.respondWithError(w, statusForError(err), err.Error())
			return
		}
		h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"state": h.rig.PowerFactorState(),
			"sent":  sent,
		})

	default:
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
	}
}

// commandRequest é o corpo de POST /api/command
type commandRequest struct {
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params"`
}

// SendCommand envia um comando nomeado à bancada
func (h *Handler) SendCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "JSON inválido: "+err.Error())
		return
	}
	if req.Command == "" {
		h.respondWithError(w, http.StatusBadRequest, "Campo command é obrigatório")
		return
	}

	if err := h.rig.SendNamedCommand(req.Command, req.Params); err != nil {
		log.Warnf("Comando %s falhou: %v", req.Command, err)
		h.respondWithError(w, statusForError(err), err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"command": req.Command,
		"ok":      true,
	})
}

// Connect inicia a conexão com a bancada
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return
	}

	if err := h.rig.Connect(); err != nil {
		h.respondWithError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	h.respondWithJSON(w, http.StatusAccepted, h.rig.GetStatus())
}

// Disconnect encerra a conexão com a bancada
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return
	}

	h.rig.Disconnect()
	h.respondWithJSON(w, http.StatusOK, h.rig.GetStatus())
}

// Discover procura bancadas via mDNS
func (h *Handler) Discover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return
	}
	if h.browser == nil {
		h.respondWithError(w, http.StatusServiceUnavailable, "Descoberta desabilitada")
		return
	}

	entries, err := h.browser.Browse(r.Context())
	if err != nil {
		h.respondWithError(w, http.StatusBadGateway, err.Error())
		return
	}
	if entries == nil {
		entries = []discovery.RigEntry{}
	}
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{"rigs": entries})
}

// statusForError traduz erros do domínio em códigos HTTP
func statusForError(err error) int {
	switch {
	case errors.Is(err, rig.ErrInvalidCommand),
		errors.Is(err, waveform.ErrInvalidPowerFactor),
		errors.Is(err, waveform.ErrInvalidCurrent):
		return http.StatusBadRequest
	case errors.Is(err, rig.ErrNotConnected):
		return http.StatusConflict
	}
	return http.StatusBadGateway
}

// respondWithError responde com erro em formato JSON
func (h *Handler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON responde com JSON
func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Errorf("Erro ao codificar resposta JSON: %v", err)
		fmt.Fprintf(w, `{"error":"Erro interno ao processar resposta"}`)
	}
}
