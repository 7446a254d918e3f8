package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, level Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(level)
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		SetLevel(INFO)
		SetIncludeFile(true)
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   DEBUG,
		"INFO":    INFO,
		"":        INFO,
		" warn ":  WARN,
		"warning": WARN,
		"error":   ERROR,
		"fatal":   FATAL,
	}
	for name, want := range tests {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	got, err := ParseLevel("verbose")
	assert.Error(t, err)
	assert.Equal(t, INFO, got)
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t, WARN)

	Infof("não aparece %d", 1)
	Warnf("aviso %d", 2)
	Errorf("erro %d", 3)

	out := buf.String()
	assert.NotContains(t, out, "não aparece")
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "aviso 2")
	assert.Contains(t, out, "erro 3")
	assert.False(t, IsDebugEnabled())
}

func TestComponentPrefixAndSource(t *testing.T) {
	buf := capture(t, DEBUG)

	With("rig").Debugf("registro %s", "ok")

	out := buf.String()
	assert.Contains(t, out, "DEBUG [logger_test.go:")
	assert.Contains(t, out, "[rig] registro ok")
	assert.Equal(t, "rig", With("rig").Name())
}

func TestWithoutSource(t *testing.T) {
	buf := capture(t, INFO)
	SetIncludeFile(false)

	Info("simples")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(buf.String()), "INFO : simples"), buf.String())
}

func TestErrorWithCause(t *testing.T) {
	buf := capture(t, INFO)

	Error("falha ao conectar", assert.AnError)
	assert.Contains(t, buf.String(), "falha ao conectar: "+assert.AnError.Error())
}

func TestFatalPanics(t *testing.T) {
	capture(t, INFO)
	assert.PanicsWithValue(t, "encerrando", func() { Fatal("encerrando", nil) })
}

func TestEnableFileLogging(t *testing.T) {
	capture(t, INFO)
	dir := t.TempDir()

	require.NoError(t, EnableFileLogging(dir, "teste"))
	Infof("para o arquivo")
	Sync()

	files, err := filepath.Glob(filepath.Join(dir, "teste_*.log"))
	require.NoError(t, err)
	require.Len(t, files, 2)

	var found bool
	for _, f := range files {
		data, err := os.ReadFile(f)
		require.NoError(t, err)
		if strings.Contains(string(data), "para o arquivo") {
			found = true
		}
	}
	assert.True(t, found)
}
