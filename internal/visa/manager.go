package visa

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ResourceManager is the bus capability injected into the directory and the
// dispatcher.
type ResourceManager interface {
	ListResources(ctx context.Context) ([]string, error)
	Open(ctx context.Context, address string, opts OpenOptions) (Resource, error)
}

// Opener opens resources of one interface type.
type Opener interface {
	Open(ctx context.Context, addr Address, opts OpenOptions) (Resource, error)
}

// ResourceConfig is one statically configured resource.
type ResourceConfig struct {
	Address string
	Serial  SerialConfig
}

// ManagerConfig lists where instruments come from.
type ManagerConfig struct {
	Resources   []ResourceConfig
	SerialGlobs []string
	Simulated   []SimulatedInstrument
	DialTimeout time.Duration
}

// Manager is the default ResourceManager.
type Manager struct {
	cfg ManagerConfig

	mu      sync.RWMutex
	openers map[string]Opener
	sims    map[string]*simInstrument
}

var _ ResourceManager = (*Manager)(nil)

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	m := &Manager{
		cfg:     cfg,
		openers: make(map[string]Opener),
		sims:    make(map[string]*simInstrument, len(cfg.Simulated)),
	}
	for _, spec := range cfg.Simulated {
		key := strings.TrimSpace(spec.Address)
		if _, dup := m.sims[key]; dup {
			continue
		}
		m.sims[key] = newSimInstrument(spec)
	}
	m.Register(InterfaceTCPIP, socketOpener{dialTimeout: cfg.DialTimeout})
	m.Register(InterfaceASRL, serialOpener{settings: m.serialSettings})
	m.Register(InterfaceSIM, simOpener{lookup: m.simulated})
	return m
}

// Register installs or replaces the opener for an interface type.
func (m *Manager) Register(iface string, opener Opener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToUpper(strings.TrimSpace(iface))
	if _, found := m.openers[key]; found {
		log.Debug().Str("interface", key).Msg("visa.Manager.Register replacing opener")
	}
	m.openers[key] = opener
}

// ListResources returns ManagerAddress followed by configured resources,
// glob-discovered serial ports and simulated instruments, in that order and
// without duplicates.
func (m *Manager) ListResources(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []string{ManagerAddress}
	seen := map[string]struct{}{ManagerAddress: {}}
	add := func(addr string) {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			return
		}
		if _, ok := seen[addr]; ok {
			return
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}

	for _, res := range m.cfg.Resources {
		add(res.Address)
	}
	serialPorts, err := expandSerialGlobs(m.cfg.SerialGlobs)
	if err != nil {
		return nil, fmt.Errorf("visa: expand serial globs: %w", err)
	}
	for _, addr := range serialPorts {
		add(addr)
	}
	for _, sim := range m.cfg.Simulated {
		add(sim.Address)
	}
	return out, nil
}

// Open parses address and opens it through the registered opener. Every
// failure is reported as an *IOError.
func (m *Manager) Open(ctx context.Context, address string, opts OpenOptions) (Resource, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, ioError("open", address, err)
	}
	m.mu.RLock()
	opener, ok := m.openers[addr.Interface]
	m.mu.RUnlock()
	if !ok {
		return nil, ioError("open", address, ErrUnknownInterface)
	}
	res, err := opener.Open(ctx, addr, opts.withDefaults())
	if err != nil {
		return nil, ioError("open", address, err)
	}
	return res, nil
}

func (m *Manager) simulated(address string) (*simInstrument, bool) {
	inst, ok := m.sims[strings.TrimSpace(address)]
	return inst, ok
}

func (m *Manager) serialSettings(address string) SerialConfig {
	cfg := DefaultSerialConfig()
	for _, res := range m.cfg.Resources {
		if strings.TrimSpace(res.Address) != address {
			continue
		}
		if res.Serial.BaudRate > 0 {
			cfg.BaudRate = res.Serial.BaudRate
		}
		if res.Serial.DataBits > 0 {
			cfg.DataBits = res.Serial.DataBits
		}
		if res.Serial.StopBits > 0 {
			cfg.StopBits = res.Serial.StopBits
		}
	}
	return cfg
}
