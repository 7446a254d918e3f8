package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"mcb_monitor/pkg/utils"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7D56F4")).
		PaddingLeft(2)

	panelStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#7D56F4")).
		Padding(0, 2)

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))

	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB800")).Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555")).Bold(true)

	helpStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#626262")).
		PaddingTop(1).
		PaddingLeft(2)
)

type tickMsg time.Time

type model struct {
	feed    *feed
	refresh time.Duration
	snap    snapshot
	notice  string
}

func newModel(f *feed, refresh time.Duration) model {
	if refresh <= 0 {
		refresh = 100 * time.Millisecond
	}
	return model{feed: f, refresh: refresh, snap: f.snapshot()}
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd {
	return m.tick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			m.notice = m.sendResult("get_status", nil)
		case "x":
			m.notice = m.sendResult("send_command", map[string]interface{}{"command": "stop"})
		}
		return m, nil

	case tickMsg:
		// Redesenho no ritmo da tela, não das leituras
		m.snap = m.feed.snapshot()
		return m, m.tick()
	}
	return m, nil
}

func (m model) sendResult(msgType string, params map[string]interface{}) string {
	if err := m.feed.send(msgType, params); err != nil {
		return err.Error()
	}
	return "enviado: " + msgType
}

func (m model) View() string {
	s := m.snap
	var b strings.Builder

	b.WriteString(titleStyle.Render("⚡ MCB Monitor") + "\n\n")

	link := errorStyle.Render("offline")
	if s.Connected {
		link = okStyle.Render("online")
	}
	fmt.Fprintf(&b, "  %s %s   %s %s\n", labelStyle.Render("monitor:"), link,
		labelStyle.Render("bancada:"), statusStyle(s.Status).Render(s.Status))
	if s.SessionID != "" {
		fmt.Fprintf(&b, "  %s %s\n", labelStyle.Render("sessão:"), s.SessionID)
	}
	b.WriteString("\n")

	var lines []string
	if r := s.Reading; r != nil {
		cycle := warnStyle.Render("capturando")
		if r.CycleCaptured {
			cycle = okStyle.Render(fmt.Sprintf("capturado (%d pontos)", r.CycleSampleCount))
		}
		lines = append(lines,
			fmt.Sprintf("Tensão     %10s V", utils.FormatFloat(r.Voltage, 2)),
			fmt.Sprintf("Corrente   %10s A", utils.FormatFloat(r.Current, 2)),
			fmt.Sprintf("Offset DC  %10s", utils.FormatFloat(r.DCOffset, 1)),
			fmt.Sprintf("Tempo      %10s s", utils.FormatFloat(r.Timestamp, 4)),
			"Ciclo      "+cycle,
		)
	} else {
		lines = append(lines, labelStyle.Render("aguardando leituras..."))
	}
	lines = append(lines,
		fmt.Sprintf("Alvo       %10s A  fp %s",
			utils.FormatDecimal(s.PowerFactor.TargetCurrent), utils.FormatFloat(s.PowerFactor.PowerFactor, 3)),
		fmt.Sprintf("Recebidas  %10d", s.Received),
	)
	b.WriteString(panelStyle.Render(strings.Join(lines, "\n")) + "\n")

	if len(s.History) > 0 {
		b.WriteString("\n  " + sparkline(s.History) + "\n")
	}

	if len(s.Messages) > 0 {
		b.WriteString("\n" + labelStyle.Render("  mensagens da bancada:") + "\n")
		for _, msg := range s.Messages {
			b.WriteString("  " + msg + "\n")
		}
	}

	if s.LastError != "" {
		b.WriteString("\n  " + errorStyle.Render(s.LastError) + "\n")
	}
	if m.notice != "" {
		b.WriteString("\n  " + m.notice + "\n")
	}

	b.WriteString(helpStyle.Render("r status • x parar ensaio • q sair"))
	return b.String()
}

func statusStyle(label string) lipgloss.Style {
	switch {
	case label == "connected":
		return okStyle
	case strings.HasPrefix(label, "error"):
		return errorStyle
	}
	return warnStyle
}

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// sparkline desenha os valores normalizados entre mínimo e máximo
func sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	out := make([]rune, len(values))
	for i, v := range values {
		level := 0
		if hi > lo {
			level = int(math.Round((v - lo) / (hi - lo) * float64(len(sparkLevels)-1)))
		}
		out[i] = sparkLevels[level]
	}
	return string(out)
}
