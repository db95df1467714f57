// Package fakevisa provides a recording visa.ResourceManager for tests.
package fakevisa

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/danmuck/scpibridge/internal/visa"
)

var ErrInjected = errors.New("fakevisa: injected failure")

// Instrument scripts one fake resource. Nil errors succeed.
type Instrument struct {
	IDN      string
	Replies  map[string]string
	OpenErr  error
	WriteErr error
	ReadErr  error
	CloseErr error
}

// Calls is what one address has seen.
type Calls struct {
	Opens  int
	Closes int
	Writes []string
	Reads  int
}

type Manager struct {
	mu          sync.Mutex
	listing     []string
	listErr     error
	instruments map[string]*Instrument
	calls       map[string]*Calls
	lists       int
}

var _ visa.ResourceManager = (*Manager)(nil)

// New returns a manager whose listing is visa.ManagerAddress followed by the
// given addresses, in order.
func New() *Manager {
	return &Manager{
		listing:     []string{visa.ManagerAddress},
		instruments: make(map[string]*Instrument),
		calls:       make(map[string]*Calls),
	}
}

// Add lists address and scripts its behavior.
func (m *Manager) Add(address string, inst Instrument) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instruments[address]; !ok {
		m.listing = append(m.listing, address)
	}
	copyInst := inst
	m.instruments[address] = &copyInst
	return m
}

// Remove drops address from the listing.
func (m *Manager) Remove(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.instruments, address)
	for i, addr := range m.listing {
		if addr == address {
			m.listing = append(m.listing[:i], m.listing[i+1:]...)
			break
		}
	}
}

func (m *Manager) FailList(err error) {
	m.mu.Lock()
	m.listErr = err
	m.mu.Unlock()
}

func (m *Manager) ListCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lists
}

// Calls returns a copy of what address has seen.
func (m *Manager) Calls(address string) Calls {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[address]
	if !ok {
		return Calls{}
	}
	out := *c
	out.Writes = append([]string(nil), c.Writes...)
	return out
}

func (m *Manager) ListResources(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]string(nil), m.listing...), nil
}

func (m *Manager) Open(ctx context.Context, address string, _ visa.OpenOptions) (visa.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.callsLocked(address)
	c.Opens++
	inst, ok := m.instruments[address]
	if !ok {
		return nil, &visa.IOError{Op: "open", Address: address, Err: visa.ErrResourceNotFound}
	}
	if inst.OpenErr != nil {
		return nil, &visa.IOError{Op: "open", Address: address, Err: inst.OpenErr}
	}
	return &resource{m: m, address: address, inst: inst}, nil
}

func (m *Manager) callsLocked(address string) *Calls {
	c, ok := m.calls[address]
	if !ok {
		c = &Calls{}
		m.calls[address] = c
	}
	return c
}

type resource struct {
	m       *Manager
	address string
	inst    *Instrument
	last    string
}

func (r *resource) WriteLine(_ context.Context, line string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c := r.m.callsLocked(r.address)
	c.Writes = append(c.Writes, line)
	if r.inst.WriteErr != nil {
		return &visa.IOError{Op: "write", Address: r.address, Err: r.inst.WriteErr}
	}
	r.last = line
	return nil
}

func (r *resource) ReadLine(ctx context.Context) (string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.callsLocked(r.address).Reads++
	if r.inst.ReadErr != nil {
		return "", &visa.IOError{Op: "read", Address: r.address, Err: r.inst.ReadErr}
	}
	if strings.EqualFold(r.last, "*IDN?") && r.inst.IDN != "" {
		return r.inst.IDN, nil
	}
	if reply, ok := r.inst.Replies[r.last]; ok {
		return reply, nil
	}
	return "", &visa.IOError{Op: "read", Address: r.address, Err: visa.ErrTimeout}
}

func (r *resource) Close() error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.callsLocked(r.address).Closes++
	if r.inst.CloseErr != nil {
		return &visa.IOError{Op: "close", Address: r.address, Err: r.inst.CloseErr}
	}
	return nil
}
