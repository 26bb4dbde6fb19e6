// Package portmon tracks physical port state: link, speed, duplex and the
// administrative settings that LACP and the aggregator read.
package portmon

import (
	"sort"
	"sync"

	"github.com/hongkiaong/lacpd/pkg/util"
)

// Duplex values.
const (
	DuplexFull = "full"
	DuplexHalf = "half"
)

// Port is a snapshot of one physical port.
type Port struct {
	Name     string
	Number   uint16 // LACP port number, 1-based
	LinkUp   bool
	AdminUp  bool
	Speed    int // Mb/s
	Duplex   string
	Key      uint16 // administrative LACP key, 0 if unset
	Priority uint16 // LACP port priority, 0 for the default
	LAG      string // owning LAG name, empty if none
}

// Up reports whether the port is operationally up.
func (p Port) Up() bool { return p.AdminUp && p.LinkUp }

// LinkListener is notified of operational transitions.
type LinkListener interface {
	LinkChanged(port string, up bool)
}

// LinkListenerFunc adapts a function to LinkListener.
type LinkListenerFunc func(port string, up bool)

// LinkChanged calls f.
func (f LinkListenerFunc) LinkChanged(port string, up bool) { f(port, up) }

// Monitor owns the port table of one device.
type Monitor struct {
	mu        sync.RWMutex
	device    string
	ports     map[string]*Port
	listeners []LinkListener
}

// New creates an empty monitor.
func New(device string) *Monitor {
	return &Monitor{device: device, ports: make(map[string]*Port)}
}

// AddPort registers a port at boot. Ports persist for the device lifetime.
func (m *Monitor) AddPort(p Port) error {
	if p.Name == "" {
		return util.NewValidationError("port name is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ports[p.Name]; ok {
		return util.NewDuplicateIDError("port", p.Name)
	}
	if p.Number == 0 {
		p.Number = uint16(len(m.ports) + 1)
	}
	if p.Duplex == "" {
		p.Duplex = DuplexFull
	}
	m.ports[p.Name] = &p
	return nil
}

// Subscribe registers a listener for operational transitions.
func (m *Monitor) Subscribe(l LinkListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// SetLinkState records the physical link state.
func (m *Monitor) SetLinkState(name string, up bool) error {
	return m.update(name, func(p *Port) { p.LinkUp = up })
}

// SetAdminState implements "interface <port> up|down".
func (m *Monitor) SetAdminState(name string, enabled bool) error {
	return m.update(name, func(p *Port) { p.AdminUp = enabled })
}

// update applies fn and notifies listeners if the operational state changed.
func (m *Monitor) update(name string, fn func(p *Port)) error {
	m.mu.Lock()
	p, ok := m.ports[name]
	if !ok {
		m.mu.Unlock()
		return util.NewNotFoundError("port", name)
	}
	was := p.Up()
	fn(p)
	now := p.Up()
	listeners := append([]LinkListener(nil), m.listeners...)
	m.mu.Unlock()

	if was == now {
		return nil
	}
	util.WithPort(m.device, name).Infof("port %s", upDown(now))
	for _, l := range listeners {
		l.LinkChanged(name, now)
	}
	return nil
}

// IsUp reports whether the port is admin-enabled with link up.
func (m *Monitor) IsUp(name string) (bool, error) {
	p, err := m.Get(name)
	if err != nil {
		return false, err
	}
	return p.Up(), nil
}

// SetSpeed records the negotiated speed and duplex.
func (m *Monitor) SetSpeed(name string, mbps int, duplex string) error {
	if duplex != DuplexFull && duplex != DuplexHalf {
		return util.NewValidationError("duplex must be full or half")
	}
	return m.set(name, func(p *Port) {
		p.Speed = mbps
		p.Duplex = duplex
	})
}

// SetKey records the administrative LACP key.
func (m *Monitor) SetKey(name string, key uint16) error {
	return m.set(name, func(p *Port) { p.Key = key })
}

// SetPriority records the LACP port priority.
func (m *Monitor) SetPriority(name string, prio uint16) error {
	return m.set(name, func(p *Port) { p.Priority = prio })
}

// SetLAG records the owning LAG. An empty name clears it.
func (m *Monitor) SetLAG(name, lag string) error {
	return m.set(name, func(p *Port) { p.LAG = lag })
}

func (m *Monitor) set(name string, fn func(p *Port)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.ports[name]
	if !ok {
		return util.NewNotFoundError("port", name)
	}
	fn(p)
	return nil
}

// Get returns a copy of one port.
func (m *Monitor) Get(name string) (Port, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.ports[name]
	if !ok {
		return Port{}, util.NewNotFoundError("port", name)
	}
	return *p, nil
}

// Has reports whether a port exists.
func (m *Monitor) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.ports[name]
	return ok
}

// List returns all ports ordered by port number.
func (m *Monitor) List() []Port {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Port, 0, len(m.ports))
	for _, p := range m.ports {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func upDown(up bool) string {
	if up {
		return "up"
	}
	return "down"
}
