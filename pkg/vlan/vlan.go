// Package vlan binds 802.1Q VLANs to ports and LAGs. A target carries at most
// one untagged VLAN and has exactly one tagging mode per VLAN.
package vlan

import (
	"sort"
	"strconv"
	"sync"

	"github.com/hongkiaong/lacpd/pkg/util"
)

// Binding is one (target, tagging mode) association of a VLAN.
type Binding struct {
	Target string
	Tagged bool
}

// Mode returns "tagged" or "untagged".
func (b Binding) Mode() string {
	if b.Tagged {
		return "tagged"
	}
	return "untagged"
}

// VLAN is a snapshot of one VLAN and its bindings, ordered by target.
type VLAN struct {
	ID       int
	Bindings []Binding
}

// Manager owns the VLAN table of one device.
type Manager struct {
	mu     sync.RWMutex
	device string
	vlans  map[int]map[string]bool // vlan -> target -> tagged
}

// NewManager creates an empty VLAN table.
func NewManager(device string) *Manager {
	return &Manager{device: device, vlans: make(map[int]map[string]bool)}
}

// CreateVLAN creates a VLAN with no members.
func (m *Manager) CreateVLAN(id int) error {
	if err := util.ValidateVLANID(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vlans[id]; ok {
		return util.NewDuplicateIDError("vlan", strconv.Itoa(id))
	}
	m.vlans[id] = make(map[string]bool)
	util.WithDevice(m.device).Infof("created VLAN %d", id)
	return nil
}

// DeleteVLAN removes a VLAN and all of its bindings.
func (m *Manager) DeleteVLAN(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vlans[id]; !ok {
		return util.NewNotFoundError("vlan", strconv.Itoa(id))
	}
	delete(m.vlans, id)
	util.WithDevice(m.device).Infof("deleted VLAN %d", id)
	return nil
}

// Has reports whether a VLAN exists.
func (m *Manager) Has(id int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.vlans[id]
	return ok
}

// TagMembership binds target to a VLAN. Repeating an identical call is a
// no-op; switching an existing binding's mode updates it in place.
func (m *Manager) TagMembership(target string, id int, tagged bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.vlans[id]
	if !ok {
		return util.NewNotFoundError("vlan", strconv.Itoa(id))
	}
	if cur, bound := members[target]; bound && cur == tagged {
		return nil
	}
	if !tagged {
		if existing, ok := m.untaggedLocked(target); ok && existing != id {
			return util.NewVLANConflictError(target, id, existing)
		}
	}
	members[target] = tagged
	util.WithDevice(m.device).Infof("VLAN %d: %s %s", id, target, Binding{Tagged: tagged}.Mode())
	return nil
}

// RemoveMembership unbinds target from a VLAN.
func (m *Manager) RemoveMembership(target string, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.vlans[id]
	if !ok {
		return util.NewNotFoundError("vlan", strconv.Itoa(id))
	}
	if _, bound := members[target]; !bound {
		return util.NewNotFoundError("vlan member", strconv.Itoa(id)+"|"+target)
	}
	delete(members, target)
	return nil
}

// SetAccessVLAN makes id the target's only untagged VLAN, dropping any
// previous untagged binding in the same step.
func (m *Manager) SetAccessVLAN(target string, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.vlans[id]
	if !ok {
		return util.NewNotFoundError("vlan", strconv.Itoa(id))
	}
	if old, ok := m.untaggedLocked(target); ok && old != id {
		delete(m.vlans[old], target)
	}
	members[target] = false
	util.WithDevice(m.device).Infof("%s access VLAN %d", target, id)
	return nil
}

// InvalidateTarget drops every binding of a destroyed port or LAG.
func (m *Manager) InvalidateTarget(target string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, members := range m.vlans {
		delete(members, target)
	}
}

// UntaggedVLAN returns the target's untagged VLAN.
func (m *Manager) UntaggedVLAN(target string) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.untaggedLocked(target)
}

func (m *Manager) untaggedLocked(target string) (int, bool) {
	for id, members := range m.vlans {
		if tagged, ok := members[target]; ok && !tagged {
			return id, true
		}
	}
	return 0, false
}

// VLANsOf returns the sorted VLAN ids the target is bound to.
func (m *Manager) VLANsOf(target string) []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []int
	for id, members := range m.vlans {
		if _, ok := members[target]; ok {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// IsReachable reports whether both targets are bound to a common VLAN. A
// non-zero vlanA or vlanB restricts the common VLAN to that id.
func (m *Manager) IsReachable(vlanA int, targetA string, vlanB int, targetB string) bool {
	if vlanA != 0 && vlanB != 0 && vlanA != vlanB {
		return false
	}
	want := vlanA
	if want == 0 {
		want = vlanB
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, members := range m.vlans {
		if want != 0 && id != want {
			continue
		}
		_, a := members[targetA]
		_, b := members[targetB]
		if a && b {
			return true
		}
	}
	return false
}

// Classify maps a frame arriving on target to its VLAN. tag is the 802.1Q
// VID, 0 for untagged or priority-tagged frames.
func (m *Manager) Classify(target string, tag int) (int, bool) {
	if tag == 0 {
		return m.UntaggedVLAN(target)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if tagged, ok := m.vlans[tag][target]; ok && tagged {
		return tag, true
	}
	return 0, false
}

// Egress reports whether target carries the VLAN and whether frames leave
// tagged.
func (m *Manager) Egress(target string, id int) (tagged, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tagged, ok = m.vlans[id][target]
	return tagged, ok
}

// Members returns the VLAN's bindings ordered by target.
func (m *Manager) Members(id int) ([]Binding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members, ok := m.vlans[id]
	if !ok {
		return nil, util.NewNotFoundError("vlan", strconv.Itoa(id))
	}
	return sortedBindings(members), nil
}

// List returns every VLAN ordered by id.
func (m *Manager) List() []VLAN {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]VLAN, 0, len(m.vlans))
	for id, members := range m.vlans {
		out = append(out, VLAN{ID: id, Bindings: sortedBindings(members)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedBindings(members map[string]bool) []Binding {
	out := make([]Binding, 0, len(members))
	for target, tagged := range members {
		out = append(out, Binding{Target: target, Tagged: tagged})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}
