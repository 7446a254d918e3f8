package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level representa o nível de log
type Level int

const (
	// DEBUG nível para mensagens detalhadas de depuração
	DEBUG Level = iota
	// INFO nível para informações gerais
	INFO
	// WARN nível para avisos
	WARN
	// ERROR nível para erros
	ERROR
	// FATAL nível para erros fatais (encerra o programa)
	FATAL
)

// String retorna o nome do nível
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// ParseLevel converte o nome de um nível ("debug", "info", ...) para Level
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DEBUG, nil
	case "info", "":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	case "fatal":
		return FATAL, nil
	}
	return INFO, fmt.Errorf("nível de log desconhecido: %q", name)
}

var (
	logLevel = INFO

	logOutput     io.Writer = os.Stdout
	errorOutput   io.Writer = os.Stderr
	fileOutput    io.WriteCloser
	fileOutputErr io.WriteCloser

	timeFormat = "2006-01-02 15:04:05.000"

	stdLogger *log.Logger
	errLogger *log.Logger

	// Flag para incluir o nome do arquivo nos logs
	includeFile = true

	mu sync.RWMutex

	initialized = false
)

// Init inicializa o logger
func Init() {
	mu.Lock()
	defer mu.Unlock()

	if initialized {
		return
	}

	stdLogger = log.New(logOutput, "", 0)
	errLogger = log.New(errorOutput, "", 0)

	initialized = true
}

// SetLevel define o nível mínimo de log
func SetLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()
	logLevel = level
}

// GetLevel retorna o nível atual de log
func GetLevel() Level {
	mu.RLock()
	defer mu.RUnlock()
	return logLevel
}

// IsDebugEnabled verifica se o nível de debug está habilitado
func IsDebugEnabled() bool {
	return GetLevel() <= DEBUG
}

// SetOutput define a saída para todos os logs
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	logOutput = w
	errorOutput = w

	stdLogger = log.New(w, "", 0)
	errLogger = log.New(w, "", 0)
}

// SetIncludeFile liga ou desliga a origem [arquivo:linha] nas mensagens
func SetIncludeFile(include bool) {
	mu.Lock()
	defer mu.Unlock()
	includeFile = include
}

// EnableFileLogging habilita o log para arquivo
func EnableFileLogging(logDir, prefix string) error {
	mu.Lock()

	if err := os.MkdirAll(logDir, 0755); err != nil {
		mu.Unlock()
		return fmt.Errorf("erro ao criar diretório de log: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	if prefix != "" {
		prefix = prefix + "_"
	}

	logFilePath := filepath.Join(logDir, fmt.Sprintf("%s%s.log", prefix, timestamp))
	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		mu.Unlock()
		return fmt.Errorf("erro ao criar arquivo de log: %w", err)
	}

	errFilePath := filepath.Join(logDir, fmt.Sprintf("%s%s_error.log", prefix, timestamp))
	errFile, err := os.OpenFile(errFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logFile.Close()
		mu.Unlock()
		return fmt.Errorf("erro ao criar arquivo de log de erro: %w", err)
	}

	if fileOutput != nil {
		fileOutput.Close()
	}
	if fileOutputErr != nil {
		fileOutputErr.Close()
	}

	fileOutput = logFile
	fileOutputErr = errFile

	// Saídas mistas (terminal + arquivo)
	stdLogger = log.New(io.MultiWriter(logOutput, logFile), "", 0)
	errLogger = log.New(io.MultiWriter(errorOutput, errFile), "", 0)
	mu.Unlock()

	Infof("Logging iniciado em %s", logFilePath)
	return nil
}

// Sync fecha os arquivos de log abertos
func Sync() {
	mu.Lock()
	defer mu.Unlock()

	if fileOutput != nil {
		fileOutput.Close()
		fileOutput = nil
	}
	if fileOutputErr != nil {
		fileOutputErr.Close()
		fileOutputErr = nil
	}
	stdLogger = log.New(logOutput, "", 0)
	errLogger = log.New(errorOutput, "", 0)
}

// logMessage escreve uma mensagem de log com o nível especificado.
// depth é o número de frames entre o chamador original e esta função.
func logMessage(depth int, level Level, component string, format string, args ...interface{}) {
	mu.RLock()
	minLevel := logLevel
	withFile := includeFile
	tf := timeFormat
	out := stdLogger
	if level >= ERROR {
		out = errLogger
	}
	mu.RUnlock()

	if level < minLevel {
		return
	}

	timestamp := time.Now().Format(tf)

	var source string
	if withFile {
		if _, file, line, ok := runtime.Caller(depth); ok {
			source = fmt.Sprintf(" [%s:%d]", filepath.Base(file), line)
		}
	}

	var msg string
	if len(args) == 0 {
		msg = format
	} else {
		msg = fmt.Sprintf(format, args...)
	}
	if component != "" {
		msg = "[" + component + "] " + msg
	}

	prefix := fmt.Sprintf("%-5s", level.String())
	if out == nil {
		fmt.Fprintf(os.Stderr, "[%s] %s%s: %s\n", timestamp, prefix, source, msg)
	} else {
		out.Printf("[%s] %s%s: %s", timestamp, prefix, source, msg)
	}

	if level == FATAL {
		panic(msg)
	}
}

// Debug escreve mensagem de log com nível DEBUG
func Debug(msg string) {
	logMessage(2, DEBUG, "", "%s", msg)
}

// Debugf escreve mensagem de log formatada com nível DEBUG
func Debugf(format string, args ...interface{}) {
	logMessage(2, DEBUG, "", format, args...)
}

// Info escreve mensagem de log com nível INFO
func Info(msg string) {
	logMessage(2, INFO, "", "%s", msg)
}

// Infof escreve mensagem de log formatada com nível INFO
func Infof(format string, args ...interface{}) {
	logMessage(2, INFO, "", format, args...)
}

// Warn escreve mensagem de log com nível WARN
func Warn(msg string) {
	logMessage(2, WARN, "", "%s", msg)
}

// Warnf escreve mensagem de log formatada com nível WARN
func Warnf(format string, args ...interface{}) {
	logMessage(2, WARN, "", format, args...)
}

// Error escreve mensagem de log com nível ERROR
func Error(msg string, err error) {
	if err != nil {
		logMessage(2, ERROR, "", "%s: %v", msg, err)
	} else {
		logMessage(2, ERROR, "", "%s", msg)
	}
}

// Errorf escreve mensagem de log formatada com nível ERROR
func Errorf(format string, args ...interface{}) {
	logMessage(2, ERROR, "", format, args...)
}

// Fatal escreve mensagem de log com nível FATAL e encerra o programa
func Fatal(msg string, err error) {
	if err != nil {
		logMessage(2, FATAL, "", "%s: %v", msg, err)
	} else {
		logMessage(2, FATAL, "", "%s", msg)
	}
}

// Component é um logger que prefixa as mensagens com o nome do componente
type Component struct {
	name string
}

// With retorna um logger de componente
func With(name string) *Component {
	return &Component{name: name}
}

// Name retorna o nome do componente
func (c *Component) Name() string {
	return c.name
}

func (c *Component) Debugf(format string, args ...interface{}) {
	logMessage(2, DEBUG, c.name, format, args...)
}

func (c *Component) Infof(format string, args ...interface{}) {
	logMessage(2, INFO, c.name, format, args...)
}

func (c *Component) Warnf(format string, args ...interface{}) {
	logMessage(2, WARN, c.name, format, args...)
}

func (c *Component) Errorf(format string, args ...interface{}) {
	logMessage(2, ERROR, c.name, format, args...)
}
