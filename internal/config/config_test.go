package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := getDefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "@\n", cfg.Rig.Delimiters)
	assert.Equal(t, 100, cfg.Pipeline.WindowSize)
	assert.Equal(t, 10, cfg.Pipeline.MinOffsetSamples)
	assert.Equal(t, 0.02, cfg.Pipeline.CycleDuration)
	assert.Equal(t, 11, cfg.Pipeline.MinRMSHistory)
	assert.Equal(t, 0.23, cfg.Pipeline.DefaultImpedance)
	assert.Equal(t, "10.91.136.24:8888", cfg.Rig.Address())
}

func TestValidateRejectsImpossibleValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"janela menor que mínimo", func(c *Config) { c.Pipeline.MinOffsetSamples = c.Pipeline.WindowSize + 1 }},
		{"ciclo zero", func(c *Config) { c.Pipeline.CycleDuration = 0 }},
		{"fator de potência acima de 1", func(c *Config) { c.Pipeline.PowerFactor = 1.2 }},
		{"corrente negativa", func(c *Config) { c.Pipeline.TargetCurrent = -1 }},
		{"impedância zero", func(c *Config) { c.Pipeline.DefaultImpedance = 0 }},
		{"sem delimitadores", func(c *Config) { c.Rig.Delimiters = "" }},
		{"fila vazia", func(c *Config) { c.Rig.QueueSize = 0 }},
		{"porta inválida", func(c *Config) { c.Rig.Port = 70000 }},
		{"histórico negativo", func(c *Config) { c.Redis.HistorySize = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getDefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFromFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"rig": {"host": "192.168.0.50", "port": 9000},
		"pipeline": {"windowSize": 50, "minOffsetSamples": 5},
		"redis": {"enabled": true}
	}`), 0644))

	t.Setenv("RIG_PORT", "9100")
	t.Setenv("RIG_DELIMITERS", "@")
	t.Setenv("PIPELINE_POWER_FACTOR", "0.95")
	t.Setenv("SERVER_DISPLAY_INTERVAL", "50ms")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "192.168.0.50", cfg.Rig.Host)
	assert.Equal(t, 9100, cfg.Rig.Port)
	assert.Equal(t, "@", cfg.Rig.Delimiters)
	assert.Equal(t, 50, cfg.Pipeline.WindowSize)
	assert.Equal(t, 5, cfg.Pipeline.MinOffsetSamples)
	assert.Equal(t, 0.95, cfg.Pipeline.PowerFactor)
	assert.Equal(t, 50*time.Millisecond, cfg.Server.DisplayInterval)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Campos ausentes no arquivo mantêm o padrão
	assert.Equal(t, 0.02, cfg.Pipeline.CycleDuration)
}

func TestLoadFromIgnoresInvalidEnvironment(t *testing.T) {
	t.Setenv("RIG_PORT", "abc")
	t.Setenv("RIG_AUTO_CONNECT", "talvez")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "ausente.json"))
	require.NoError(t, err)
	assert.Equal(t, 8888, cfg.Rig.Port)
	assert.True(t, cfg.Rig.AutoConnect)
}

func TestLoadFromRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"pipeline": {"cycleDuration": -1}}`), 0644))

	_, err := LoadFrom(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{`), 0644))
	_, err = LoadFrom(path)
	assert.Error(t, err)
}
