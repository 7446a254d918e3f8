// Command rigtop mostra no terminal as leituras do monitor, consumindo o
// WebSocket /ws e redesenhando a tela no seu próprio ritmo.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "endereço WebSocket do monitor")
	refresh := flag.Duration("refresh", 100*time.Millisecond, "intervalo de redesenho")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFeed(*url)
	go f.run(ctx)

	p := tea.NewProgram(newModel(f, *refresh), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "erro: %v\n", err)
		os.Exit(1)
	}
}
