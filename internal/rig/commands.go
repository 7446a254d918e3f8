package rig

import (
	"fmt"
	"math"
	"strings"

	"mcb_monitor/pkg/utils"
)

// Command é um comando da bancada com uma única codificação canônica.
// Encode retorna o payload já terminado por exatamente um '\n'.
type Command interface {
	Name() string
	Encode() (string, error)
}

// PowerFactorCommand é implementado pelos comandos que alteram a corrente
// alvo e o fator de potência do estimador
type PowerFactorCommand interface {
	Command
	PowerFactorState() (targetCurrent, powerFactor float64)
}

// SetPowerFactor ajusta corrente alvo e fator de potência (configuração R-XL)
type SetPowerFactor struct {
	Current     float64 `json:"current"`
	PowerFactor float64 `json:"powerFactor"`
}

func (c SetPowerFactor) Name() string { return "power_factor" }

func (c SetPowerFactor) Encode() (string, error) {
	if err := validatePowerFactor(c.Current, c.PowerFactor); err != nil {
		return "", err
	}
	return line(fmt.Sprintf("%s,%.3f", utils.FormatDecimal(c.Current), c.PowerFactor)), nil
}

func (c SetPowerFactor) PowerFactorState() (float64, float64) {
	return c.Current, c.PowerFactor
}

// StartShortCircuit inicia o ensaio de curto-circuito
type StartShortCircuit struct {
	Current     float64 `json:"current"`
	PowerFactor float64 `json:"powerFactor"`
}

func (c StartShortCircuit) Name() string { return "short_circuit" }

func (c StartShortCircuit) Encode() (string, error) {
	if err := validatePowerFactor(c.Current, c.PowerFactor); err != nil {
		return "", err
	}
	return line(utils.FormatDecimal(c.Current) + "," + utils.FormatDecimal(c.PowerFactor)), nil
}

func (c StartShortCircuit) PowerFactorState() (float64, float64) {
	return c.Current, c.PowerFactor
}

// StartTripTest inicia o ensaio de característica de disparo
type StartTripTest struct {
	Type   string  `json:"type"` // curva B, C ou D
	Rating float64 `json:"rating"`
}

func (c StartTripTest) Name() string { return "trip_test" }

func (c StartTripTest) Encode() (string, error) {
	curve := strings.ToUpper(strings.TrimSpace(c.Type))
	switch curve {
	case "B", "C", "D":
	default:
		return "", fmt.Errorf("%w: curva %q (esperado B, C ou D)", ErrInvalidCommand, c.Type)
	}
	if err := validatePositive("rating", c.Rating); err != nil {
		return "", err
	}
	return line(fmt.Sprintf("TEST:TRIP,TYPE:%s,RATING:%s", curve, utils.FormatNumber(c.Rating))), nil
}

// StartTemperatureTest inicia o ensaio de elevação de temperatura
type StartTemperatureTest struct {
	RatedCurrent float64 `json:"ratedCurrent"`
}

func (c StartTemperatureTest) Name() string { return "temperature_test" }

func (c StartTemperatureTest) Encode() (string, error) {
	if err := validatePositive("ratedCurrent", c.RatedCurrent); err != nil {
		return "", err
	}
	return line("TEST:TEMPERATURE,CURRENT:" + utils.FormatNumber(c.RatedCurrent)), nil
}

// StartDielectricTest inicia o ensaio dielétrico
type StartDielectricTest struct {
	Voltage  float64 `json:"voltage"`
	Duration float64 `json:"duration"` // segundos
}

func (c StartDielectricTest) Name() string { return "dielectric_test" }

func (c StartDielectricTest) Encode() (string, error) {
	if err := validatePositive("voltage", c.Voltage); err != nil {
		return "", err
	}
	if err := validatePositive("duration", c.Duration); err != nil {
		return "", err
	}
	return line(fmt.Sprintf("TEST:DIELECTRIC,VOLTAGE:%s,DURATION:%s",
		utils.FormatNumber(c.Voltage), utils.FormatNumber(c.Duration))), nil
}

// StartBreakingTimeTest inicia o ensaio de tempo de interrupção
type StartBreakingTimeTest struct {
	Current float64 `json:"current"`
}

func (c StartBreakingTimeTest) Name() string { return "breaking_time_test" }

func (c StartBreakingTimeTest) Encode() (string, error) {
	if err := validatePositive("current", c.Current); err != nil {
		return "", err
	}
	return line("TEST:BREAKING_TIME,CURRENT:" + utils.FormatNumber(c.Current)), nil
}

// StartContactResistanceTest inicia o ensaio de resistência de contato
type StartContactResistanceTest struct {
	Current float64 `json:"current"`
}

func (c StartContactResistanceTest) Name() string { return "contact_resistance_test" }

func (c StartContactResistanceTest) Encode() (string, error) {
	if err := validatePositive("current", c.Current); err != nil {
		return "", err
	}
	return line("TEST:CONTACT_RESISTANCE,CURRENT:" + utils.FormatNumber(c.Current)), nil
}

// ConfigureRL configura o circuito R-L da bancada
type ConfigureRL struct {
	Resistance float64 `json:"resistance"` // ohms
	Inductance float64 `json:"inductance"` // henries
}

func (c ConfigureRL) Name() string { return "config_rl" }

func (c ConfigureRL) Encode() (string, error) {
	if err := validateNonNegative("resistance", c.Resistance); err != nil {
		return "", err
	}
	if err := validateNonNegative("inductance", c.Inductance); err != nil {
		return "", err
	}
	return line(fmt.Sprintf("CONFIG:RL,R:%s,L:%s",
		utils.FormatNumber(c.Resistance), utils.FormatNumber(c.Inductance))), nil
}

// Simple é um comando sem parâmetros (STOP, RESET, STATUS, CALIBRATE)
type Simple string

const (
	Stop      Simple = "STOP"
	Reset     Simple = "RESET"
	Status    Simple = "STATUS"
	Calibrate Simple = "CALIBRATE"
)

func (c Simple) Name() string { return strings.ToLower(string(c)) }

func (c Simple) Encode() (string, error) {
	switch c {
	case Stop, Reset, Status, Calibrate:
		return line(string(c)), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCommand, string(c))
}

// Raw é um texto livre de uma linha, enviado como está
type Raw string

func (c Raw) Name() string { return "raw" }

func (c Raw) Encode() (string, error) {
	text := strings.TrimRight(string(c), "\r\n")
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: texto vazio", ErrInvalidCommand)
	}
	// Uma quebra no meio viraria dois comandos na bancada
	if strings.ContainsAny(text, "\r\n") {
		return "", fmt.Errorf("%w: texto com quebra de linha", ErrInvalidCommand)
	}
	return line(text), nil
}

// ParseCommand monta um comando a partir do nome e dos parâmetros recebidos
// por WebSocket ou REST
func ParseCommand(name string, params map[string]interface{}) (Command, error) {
	p := paramReader{params: params}

	var cmd Command
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "power_factor", "set_power_factor":
		cmd = SetPowerFactor{Current: p.number("current"), PowerFactor: p.number("powerFactor")}
	case "short_circuit":
		cmd = StartShortCircuit{Current: p.number("current"), PowerFactor: p.number("powerFactor")}
	case "trip_test":
		cmd = StartTripTest{Type: p.text("type"), Rating: p.number("rating")}
	case "temperature_test":
		cmd = StartTemperatureTest{RatedCurrent: p.number("ratedCurrent")}
	case "dielectric_test":
		cmd = StartDielectricTest{Voltage: p.number("voltage"), Duration: p.number("duration")}
	case "breaking_time_test":
		cmd = StartBreakingTimeTest{Current: p.number("current")}
	case "contact_resistance_test":
		cmd = StartContactResistanceTest{Current: p.number("current")}
	case "config_rl":
		cmd = ConfigureRL{Resistance: p.number("resistance"), Inductance: p.number("inductance")}
	case "stop":
		cmd = Stop
	case "reset":
		cmd = Reset
	case "status":
		cmd = Status
	case "calibrate":
		cmd = Calibrate
	case "raw":
		cmd = Raw(p.text("text"))
	default:
		return nil, fmt.Errorf("%w: comando desconhecido %q", ErrInvalidCommand, name)
	}

	if p.err != nil {
		return nil, p.err
	}
	return cmd, nil
}

// paramReader lê parâmetros JSON guardando o primeiro erro
type paramReader struct {
	params map[string]interface{}
	err    error
}

func (p *paramReader) number(key string) float64 {
	v, ok := p.params[key]
	if !ok {
		p.fail("parâmetro %q ausente", key)
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	p.fail("parâmetro %q deve ser numérico", key)
	return 0
}

func (p *paramReader) text(key string) string {
	v, ok := p.params[key].(string)
	if !ok {
		p.fail("parâmetro %q deve ser texto", key)
	}
	return v
}

func (p *paramReader) fail(format string, args ...interface{}) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidCommand}, args...)...)
	}
}

func validatePowerFactor(current, pf float64) error {
	if math.IsNaN(pf) || pf < 0 || pf > 1 {
		return fmt.Errorf("%w: fator de potência %v fora de [0, 1]", ErrInvalidCommand, pf)
	}
	return validateNonNegative("current", current)
}

func validatePositive(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return fmt.Errorf("%w: %s deve ser positivo (%v)", ErrInvalidCommand, name, v)
	}
	return nil
}

func validateNonNegative(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%w: %s não pode ser negativo (%v)", ErrInvalidCommand, name, v)
	}
	return nil
}

func line(s string) string {
	return strings.TrimRight(s, "\r\n") + "\n"
}
