package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"mcb_monitor/internal/config"
	"mcb_monitor/pkg/logger"
)

var log = logger.With("discovery")

const (
	// ServiceDomain é o domínio para descoberta na rede
	ServiceDomain = "local."

	// ServiceType é o tipo anunciado pelo monitor
	ServiceType = "_mcbmonitor._tcp"

	// RigServiceType é o tipo anunciado pela bancada
	RigServiceType = "_mcbrig._tcp"
)

// ErrRigNotFound indica que nenhuma bancada respondeu dentro do prazo
var ErrRigNotFound = errors.New("nenhuma bancada encontrada na rede")

// RigEntry é uma bancada encontrada via mDNS
type RigEntry struct {
	Instance string   `json:"instance"`
	Address  string   `json:"address"`
	Text     []string `json:"text,omitempty"`
}

// DiscoveryService anuncia o monitor e procura bancadas na rede local
type DiscoveryService struct {
	server       *zeroconf.Server
	config       config.DiscoveryConfig
	mutex        sync.Mutex
	instanceName string
	port         int
	running      bool
	serverIP     string
}

// NewDiscoveryService cria um novo serviço de descoberta
func NewDiscoveryService(port int, cfg config.DiscoveryConfig) *DiscoveryService {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "mcb"
	}

	return &DiscoveryService{
		config:       cfg,
		port:         port,
		instanceName: fmt.Sprintf("%s-mcb-monitor", hostname),
	}
}

// Start registra o monitor via mDNS
func (s *DiscoveryService) Start() error {
	if !s.config.Enabled {
		log.Infof("Descoberta desabilitada por configuração")
		return nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return nil
	}

	ip, err := localIP()
	if err != nil {
		return fmt.Errorf("erro ao obter IP local: %w", err)
	}
	s.serverIP = ip

	server, err := zeroconf.Register(
		s.instanceName,
		ServiceType,
		ServiceDomain,
		s.port,
		[]string{
			"version=1.0",
			"ip=" + ip,
			"name=MCB Monitor",
		},
		nil,
	)
	if err != nil {
		return fmt.Errorf("erro ao registrar serviço de descoberta: %w", err)
	}

	s.server = server
	s.running = true

	log.Infof("Serviço de descoberta iniciado em %s:%d (mDNS: %s.%s)",
		ip, s.port, s.instanceName, ServiceType)
	return nil
}

// Stop remove o anúncio mDNS
func (s *DiscoveryService) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.running {
		return
	}
	if s.server != nil {
		s.server.Shutdown()
		s.server = nil
	}
	s.running = false
	log.Infof("Serviço de descoberta parado")
}

// Browse procura bancadas até o fim do prazo de busca
func (s *DiscoveryService) Browse(ctx context.Context) ([]RigEntry, error) {
	return s.browse(ctx, false)
}

// ResolveRig retorna host:porta da primeira bancada encontrada.
// É usado como resolvedor da conexão quando nenhum host está configurado.
func (s *DiscoveryService) ResolveRig(ctx context.Context) (string, error) {
	entries, err := s.browse(ctx, true)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", ErrRigNotFound
	}
	log.Infof("Bancada %q encontrada em %s", entries[0].Instance, entries[0].Address)
	return entries[0].Address, nil
}

func (s *DiscoveryService) browse(ctx context.Context, firstOnly bool) ([]RigEntry, error) {
	timeout := s.config.BrowseTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("erro ao criar resolvedor mDNS: %w", err)
	}

	found := make(chan *zeroconf.ServiceEntry, 8)
	if err := resolver.Browse(ctx, RigServiceType, ServiceDomain, found); err != nil {
		return nil, fmt.Errorf("erro ao procurar bancadas: %w", err)
	}

	var entries []RigEntry
	seen := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return entries, nil
		case entry, ok := <-found:
			if !ok {
				return entries, nil
			}
			rig, ok := toRigEntry(entry)
			if !ok || seen[rig.Address] {
				continue
			}
			seen[rig.Address] = true
			entries = append(entries, rig)
			if firstOnly {
				return entries, nil
			}
		}
	}
}

// toRigEntry converte uma resposta mDNS, preferindo IPv4
func toRigEntry(entry *zeroconf.ServiceEntry) (RigEntry, bool) {
	if entry == nil || entry.Port <= 0 {
		return RigEntry{}, false
	}

	var host string
	switch {
	case len(entry.AddrIPv4) > 0:
		host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		host = entry.AddrIPv6[0].String()
	case entry.HostName != "":
		host = strings.TrimSuffix(entry.HostName, ".")
	default:
		return RigEntry{}, false
	}

	return RigEntry{
		Instance: entry.Instance,
		Address:  net.JoinHostPort(host, strconv.Itoa(entry.Port)),
		Text:     entry.Text,
	}, true
}

// GetServerIP retorna o IP anunciado
func (s *DiscoveryService) GetServerIP() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.serverIP
}

// GetInstanceName retorna o nome da instância do serviço
func (s *DiscoveryService) GetInstanceName() string {
	return s.instanceName
}

// IsRunning verifica se o anúncio está ativo
func (s *DiscoveryService) IsRunning() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.running
}

// localIP obtém o primeiro IPv4 que não é loopback
func localIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}

	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String(), nil
			}
		}
	}
	return "", fmt.Errorf("não foi possível determinar o endereço IP local")
}
