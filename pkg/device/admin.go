package device

import (
	"fmt"

	"github.com/hongkiaong/lacpd/pkg/aggregator"
	"github.com/hongkiaong/lacpd/pkg/forwarding"
	"github.com/hongkiaong/lacpd/pkg/lacp"
	"github.com/hongkiaong/lacpd/pkg/model"
	"github.com/hongkiaong/lacpd/pkg/util"
)

// LAGSettings are the parameters of lag create.
type LAGSettings struct {
	Mode lacp.Mode
	Rate lacp.Rate
	Hash forwarding.HashMode
	// Key overrides the actor key, which defaults to the LAG number.
	Key uint16
}

// SetInterfaceAdmin enables or disables a port.
func (d *Device) SetInterfaceAdmin(port string, up bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ports.SetAdminState(port, up); err != nil {
		return err
	}
	util.WithPort(d.name, port).Infof("admin %s", model.Status(up))
	d.commitLocked()
	return nil
}

// SetLinkState records the physical link state of a port.
func (d *Device) SetLinkState(port string, up bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ports.SetLinkState(port, up); err != nil {
		return err
	}
	d.commitLocked()
	return nil
}

// SetPortKey assigns an administrative LACP key to a port. A port with a key
// runs LACP even before it joins a LAG.
func (d *Device) SetPortKey(port string, key int) error {
	if key < 1 || key > 0xffff {
		return util.NewValidationError(fmt.Sprintf("LACP key %d out of range (1-65535)", key))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.lags.AssignKey(port, uint16(key)); err != nil {
		return err
	}
	if err := d.ports.SetKey(port, uint16(key)); err != nil {
		return err
	}
	util.WithPort(d.name, port).Infof("LACP key %d", key)
	d.commitLocked()
	return nil
}

// SetPortPriority sets the LACP port priority advertised by a port.
func (d *Device) SetPortPriority(port string, prio int) error {
	if prio < 1 || prio > 0xffff {
		return util.NewValidationError(fmt.Sprintf("LACP port priority %d out of range (1-65535)", prio))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ports.SetPriority(port, uint16(prio)); err != nil {
		return err
	}
	d.lags.SetPortPriority(port, uint16(prio))
	util.WithPort(d.name, port).Infof("LACP port priority %d", prio)
	d.commitLocked()
	return nil
}

// CreateLAG creates an empty LAG.
func (d *Device) CreateLAG(id string, s LAGSettings) (model.PortChannel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, err := d.lags.CreateLAG(id, s.Mode, aggregator.WithRate(s.Rate), aggregator.WithKey(s.Key))
	if err != nil {
		return model.PortChannel{}, err
	}
	d.fwd.SetHashMode(l.Name, s.Hash)
	d.commitLocked()
	return d.portChannelView(l), nil
}

// DeleteLAG removes a LAG, detaching its members and dropping its VLAN
// bindings.
func (d *Device) DeleteLAG(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	name, err := util.NormalizeLAGName(id)
	if err != nil {
		return err
	}
	members, err := d.lags.DeleteLAG(name)
	if err != nil {
		return err
	}
	d.fwd.RemoveLAG(name)
	d.vlans.InvalidateTarget(name)
	util.WithLAG(d.name, name).Infof("released members %v", members)
	d.commitLocked()
	return nil
}

// AddMember adds a port to a LAG. Ports with VLAN bindings of their own
// cannot join; their traffic would bypass the LAG's VLANs.
func (d *Device) AddMember(id, port string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	name, err := util.NormalizeLAGName(id)
	if err != nil {
		return err
	}
	if !d.ports.Has(port) {
		return util.NewNotFoundError("port", port)
	}
	if ids := d.vlans.VLANsOf(port); len(ids) > 0 {
		return util.NewIncompatibleMemberError(name, port,
			fmt.Sprintf("port is a member of VLAN %s", util.CompactRange(ids)))
	}
	if err := d.lags.AddMember(name, port); err != nil {
		return err
	}
	d.commitLocked()
	return nil
}

// RemoveMember removes a port from a LAG and stops its LACP timers.
func (d *Device) RemoveMember(id, port string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.lags.RemoveMember(id, port); err != nil {
		return err
	}
	d.commitLocked()
	return nil
}

// CreateVLAN creates a VLAN.
func (d *Device) CreateVLAN(id int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.vlans.CreateVLAN(id); err != nil {
		return err
	}
	d.commitLocked()
	return nil
}

// DeleteVLAN deletes a VLAN and its bindings.
func (d *Device) DeleteVLAN(id int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.vlans.DeleteVLAN(id); err != nil {
		return err
	}
	d.commitLocked()
	return nil
}

// TagVLANs binds a port or LAG to each VLAN in ids. Every VLAN must exist;
// nothing is bound if one does not.
func (d *Device) TagVLANs(target string, ids []int, tagged bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.resolveTarget(target)
	if err != nil {
		return err
	}
	v := &util.ValidationBuilder{}
	v.Add(len(ids) > 0, "no VLAN given")
	v.Add(tagged || len(ids) <= 1, fmt.Sprintf("%s can be untagged in one VLAN only", t))
	if err := v.Build(); err != nil {
		return err
	}
	for _, id := range ids {
		if !d.vlans.Has(id) {
			return util.NewNotFoundError("vlan", fmt.Sprint(id))
		}
	}
	for _, id := range ids {
		if err := d.vlans.TagMembership(t, id, tagged); err != nil {
			d.commitLocked()
			return err
		}
	}
	d.commitLocked()
	return nil
}

// UntagVLAN removes a port or LAG from a VLAN.
func (d *Device) UntagVLAN(target string, id int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.resolveTarget(target)
	if err != nil {
		return err
	}
	if err := d.vlans.RemoveMembership(t, id); err != nil {
		return err
	}
	d.commitLocked()
	return nil
}

// SetAccessVLAN moves a port or LAG to a new untagged VLAN.
func (d *Device) SetAccessVLAN(target string, id int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.resolveTarget(target)
	if err != nil {
		return err
	}
	if err := d.vlans.SetAccessVLAN(t, id); err != nil {
		return err
	}
	d.commitLocked()
	return nil
}

// resolveTarget maps a VLAN target to a LAG name or a standalone port.
// LAG members are configured through their LAG.
func (d *Device) resolveTarget(name string) (string, error) {
	if util.IsLAGName(name) {
		lag, err := util.NormalizeLAGName(name)
		if err != nil {
			return "", err
		}
		if !d.lags.HasLAG(lag) {
			return "", util.NewNotFoundError("lag", lag)
		}
		return lag, nil
	}
	p, err := d.ports.Get(name)
	if err != nil {
		return "", err
	}
	if p.LAG != "" {
		return "", util.NewValidationError(fmt.Sprintf("port %s is a member of %s; configure the LAG", name, p.LAG))
	}
	return name, nil
}
