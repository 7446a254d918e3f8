package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"mcb_monitor/pkg/logger"
)

// Config representa a configuração completa da aplicação
type Config struct {
	Server    ServerConfig    `json:"server"`
	Rig       RigConfig       `json:"rig"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Redis     RedisConfig     `json:"redis"`
	PLC       PLCConfig       `json:"plc"`
	MQTT      MQTTConfig      `json:"mqtt"`
	Discovery DiscoveryConfig `json:"discovery"`
	Log       LogConfig       `json:"log"`
}

// ServerConfig contém configurações do servidor HTTP/WebSocket
type ServerConfig struct {
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"readTimeout"`
	WriteTimeout    time.Duration `json:"writeTimeout"`
	ShutdownTimeout time.Duration `json:"shutdownTimeout"`
	// Intervalo mínimo entre leituras enviadas aos clientes WebSocket
	DisplayInterval time.Duration `json:"displayInterval"`
}

// RigConfig contém configurações da conexão com o microcontrolador da bancada
type RigConfig struct {
	Name                 string        `json:"name"`
	Host                 string        `json:"host"`
	Port                 int           `json:"port"`
	Delimiters           string        `json:"delimiters"`
	DialTimeout          time.Duration `json:"dialTimeout"`
	ReadTimeout          time.Duration `json:"readTimeout"`
	WriteTimeout         time.Duration `json:"writeTimeout"`
	ReconnectDelay       time.Duration `json:"reconnectDelay"`
	MaxConsecutiveErrors int           `json:"maxConsecutiveErrors"`
	QueueSize            int           `json:"queueSize"`
	HistorySize          int           `json:"historySize"`
	AutoConnect          bool          `json:"autoConnect"`
	Debug                bool          `json:"debug"`
}

// Address retorna host:porta da bancada
func (r RigConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// PipelineConfig contém os parâmetros da reconstrução da forma de onda
type PipelineConfig struct {
	WindowSize       int     `json:"windowSize"`
	MinOffsetSamples int     `json:"minOffsetSamples"`
	CycleDuration    float64 `json:"cycleDuration"`
	HistorySize      int     `json:"historySize"`
	RMSWindow        int     `json:"rmsWindow"`
	MinRMSHistory    int     `json:"minRmsHistory"`
	FallbackScale    float64 `json:"fallbackScale"`
	DefaultImpedance float64 `json:"defaultImpedance"`
	DefaultVRMS      float64 `json:"defaultVrms"`
	TargetCurrent    float64 `json:"targetCurrent"`
	PowerFactor      float64 `json:"powerFactor"`
}

// RedisConfig contém configurações do Redis
type RedisConfig struct {
	Host     string        `json:"host"`
	Port     int           `json:"port"`
	Password string        `json:"password"`
	DB       int           `json:"db"`
	Prefix   string        `json:"prefix"`
	Enabled  bool          `json:"enabled"`
	TTL      time.Duration `json:"ttl"`

	// Tamanho da lista de leituras recentes (0 desliga)
	HistorySize int `json:"historySize"`

	// Intervalo de gravação da última leitura
	UpdateInterval time.Duration `json:"updateInterval"`
}

// PLCConfig contém configurações para espelhar os valores ao vivo num PLC S7
type PLCConfig struct {
	Enabled      bool          `json:"enabled"`
	Host         string        `json:"host"`
	Rack         int           `json:"rack"`
	Slot         int           `json:"slot"`
	DBNumber     int           `json:"dbNumber"`
	UpdateRate   time.Duration `json:"updateRate"`
	ReadTimeout  time.Duration `json:"readTimeout"`
	WriteTimeout time.Duration `json:"writeTimeout"`
}

// MQTTConfig contém configurações do publicador MQTT
type MQTTConfig struct {
	Enabled         bool          `json:"enabled"`
	Broker          string        `json:"broker"`
	ClientID        string        `json:"clientId"`
	Username        string        `json:"username"`
	Password        string        `json:"password"`
	TopicPrefix     string        `json:"topicPrefix"`
	QoS             byte          `json:"qos"`
	PublishInterval time.Duration `json:"publishInterval"`
}

// DiscoveryConfig contém configurações do mDNS
type DiscoveryConfig struct {
	Enabled       bool          `json:"enabled"`
	BrowseRig     bool          `json:"browseRig"`
	BrowseTimeout time.Duration `json:"browseTimeout"`
}

// LogConfig contém configurações de log
type LogConfig struct {
	Level string `json:"level"`
	Dir   string `json:"dir"`
	File  bool   `json:"file"`
}

// Load carrega a configuração do arquivo, do .env e das variáveis de ambiente
func Load() (*Config, error) {
	return LoadFrom("config.json")
}

// LoadFrom carrega a configuração a partir de um caminho específico
func LoadFrom(path string) (*Config, error) {
	config := getDefaultConfig()

	if _, err := os.Stat(path); err == nil {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("erro ao abrir %s: %w", path, err)
		}
		defer file.Close()

		decoder := json.NewDecoder(file)
		if err := decoder.Decode(&config); err != nil {
			return nil, fmt.Errorf("erro ao decodificar %s: %w", path, err)
		}
	}

	// .env é opcional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warnf("Erro ao carregar .env: %v", err)
	}

	applyEnvironmentOverrides(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejeita combinações de valores impossíveis
func (c *Config) Validate() error {
	p := c.Pipeline
	switch {
	case p.WindowSize <= 0:
		return fmt.Errorf("pipeline.windowSize deve ser positivo: %d", p.WindowSize)
	case p.MinOffsetSamples <= 0 || p.MinOffsetSamples > p.WindowSize:
		return fmt.Errorf("pipeline.minOffsetSamples fora de [1, %d]: %d", p.WindowSize, p.MinOffsetSamples)
	case p.CycleDuration <= 0:
		return fmt.Errorf("pipeline.cycleDuration deve ser positivo: %v", p.CycleDuration)
	case p.HistorySize <= 0 || p.RMSWindow <= 0:
		return fmt.Errorf("pipeline.historySize e pipeline.rmsWindow devem ser positivos")
	case p.DefaultImpedance <= 0:
		return fmt.Errorf("pipeline.defaultImpedance deve ser positivo: %v", p.DefaultImpedance)
	case p.PowerFactor < 0 || p.PowerFactor > 1:
		return fmt.Errorf("pipeline.powerFactor fora de [0, 1]: %v", p.PowerFactor)
	case p.TargetCurrent < 0:
		return fmt.Errorf("pipeline.targetCurrent negativo: %v", p.TargetCurrent)
	}

	if c.Rig.Delimiters == "" {
		return fmt.Errorf("rig.delimiters não pode ser vazio")
	}
	if c.Rig.QueueSize <= 0 {
		return fmt.Errorf("rig.queueSize deve ser positivo: %d", c.Rig.QueueSize)
	}
	if c.Rig.HistorySize < 0 || c.Redis.HistorySize < 0 {
		return fmt.Errorf("historySize não pode ser negativo")
	}
	if c.Rig.Port <= 0 || c.Rig.Port > 65535 {
		return fmt.Errorf("rig.port inválida: %d", c.Rig.Port)
	}
	return nil
}

// applyEnvironmentOverrides sobrescreve configurações com variáveis de ambiente
func applyEnvironmentOverrides(config *Config) {
	setString(&config.Rig.Name, "RIG_NAME")
	setString(&config.Rig.Host, "RIG_HOST")
	setInt(&config.Rig.Port, "RIG_PORT")
	setString(&config.Rig.Delimiters, "RIG_DELIMITERS")
	setDuration(&config.Rig.ReadTimeout, "RIG_READ_TIMEOUT")
	setDuration(&config.Rig.ReconnectDelay, "RIG_RECONNECT_DELAY")
	setInt(&config.Rig.QueueSize, "RIG_QUEUE_SIZE")
	setInt(&config.Rig.HistorySize, "RIG_HISTORY_SIZE")
	setBool(&config.Rig.AutoConnect, "RIG_AUTO_CONNECT")
	setBool(&config.Rig.Debug, "RIG_DEBUG")

	setInt(&config.Server.Port, "SERVER_PORT")
	setDuration(&config.Server.DisplayInterval, "SERVER_DISPLAY_INTERVAL")

	setFloat(&config.Pipeline.CycleDuration, "PIPELINE_CYCLE_DURATION")
	setInt(&config.Pipeline.WindowSize, "PIPELINE_WINDOW_SIZE")
	setFloat(&config.Pipeline.TargetCurrent, "PIPELINE_TARGET_CURRENT")
	setFloat(&config.Pipeline.PowerFactor, "PIPELINE_POWER_FACTOR")

	setBool(&config.Redis.Enabled, "REDIS_ENABLED")
	setString(&config.Redis.Host, "REDIS_HOST")
	setInt(&config.Redis.Port, "REDIS_PORT")
	setString(&config.Redis.Password, "REDIS_PASSWORD")
	setInt(&config.Redis.DB, "REDIS_DB")
	setString(&config.Redis.Prefix, "REDIS_PREFIX")
	setInt(&config.Redis.HistorySize, "REDIS_HISTORY_SIZE")

	setBool(&config.PLC.Enabled, "PLC_ENABLED")
	setString(&config.PLC.Host, "PLC_HOST")
	setInt(&config.PLC.Rack, "PLC_RACK")
	setInt(&config.PLC.Slot, "PLC_SLOT")
	setInt(&config.PLC.DBNumber, "PLC_DB")

	setBool(&config.MQTT.Enabled, "MQTT_ENABLED")
	setString(&config.MQTT.Broker, "MQTT_BROKER")
	setString(&config.MQTT.ClientID, "MQTT_CLIENT_ID")
	setString(&config.MQTT.Username, "MQTT_USERNAME")
	setString(&config.MQTT.Password, "MQTT_PASSWORD")
	setString(&config.MQTT.TopicPrefix, "MQTT_TOPIC_PREFIX")

	setBool(&config.Discovery.Enabled, "DISCOVERY_ENABLED")
	setBool(&config.Discovery.BrowseRig, "DISCOVERY_BROWSE_RIG")

	setString(&config.Log.Level, "LOG_LEVEL")
	setString(&config.Log.Dir, "LOG_DIR")
	setBool(&config.Log.File, "LOG_FILE")
}

func setString(dst *string, key string) {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		*dst = value
	}
}

func setInt(dst *int, key string) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		logger.Warnf("Valor inválido em %s (%q), mantendo %d", key, value, *dst)
		return
	}
	*dst = parsed
}

func setFloat(dst *float64, key string) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		logger.Warnf("Valor inválido em %s (%q), mantendo %v", key, value, *dst)
		return
	}
	*dst = parsed
}

func setBool(dst *bool, key string) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		logger.Warnf("Valor inválido em %s (%q), mantendo %v", key, value, *dst)
		return
	}
	*dst = parsed
}

func setDuration(dst *time.Duration, key string) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		logger.Warnf("Valor inválido em %s (%q), mantendo %v", key, value, *dst)
		return
	}
	*dst = parsed
}
