package device

import (
	"github.com/hongkiaong/lacpd/pkg/aggregator"
	"github.com/hongkiaong/lacpd/pkg/model"
	"github.com/hongkiaong/lacpd/pkg/portmon"
	"github.com/hongkiaong/lacpd/pkg/util"
	"github.com/hongkiaong/lacpd/pkg/vlan"
)

// Snapshot returns the full published view of the device.
func (d *Device) Snapshot() *model.DeviceState {
	return &model.DeviceState{
		Device:       d.name,
		Interfaces:   d.Interfaces(),
		PortChannels: d.PortChannels(),
		VLANs:        d.VLANs(),
	}
}

// Interface returns the view of one port.
func (d *Device) Interface(name string) (model.Interface, error) {
	p, err := d.ports.Get(name)
	if err != nil {
		return model.Interface{}, err
	}
	return d.interfaceView(p), nil
}

// Interfaces returns every port ordered by port number.
func (d *Device) Interfaces() []model.Interface {
	ports := d.ports.List()
	out := make([]model.Interface, 0, len(ports))
	for _, p := range ports {
		out = append(out, d.interfaceView(p))
	}
	return out
}

// PortChannel returns the view of one LAG.
func (d *Device) PortChannel(id string) (model.PortChannel, error) {
	l, err := d.lags.GetLAG(id)
	if err != nil {
		return model.PortChannel{}, err
	}
	return d.portChannelView(l), nil
}

// PortChannels returns every LAG ordered by number.
func (d *Device) PortChannels() []model.PortChannel {
	lags := d.lags.ListLAGs()
	out := make([]model.PortChannel, 0, len(lags))
	for _, l := range lags {
		out = append(out, d.portChannelView(l))
	}
	return out
}

// VLAN returns the view of one VLAN.
func (d *Device) VLAN(id int) (model.VLAN, error) {
	bindings, err := d.vlans.Members(id)
	if err != nil {
		return model.VLAN{}, err
	}
	return vlanView(vlan.VLAN{ID: id, Bindings: bindings}), nil
}

// VLANs returns every VLAN ordered by id.
func (d *Device) VLANs() []model.VLAN {
	vlans := d.vlans.List()
	out := make([]model.VLAN, 0, len(vlans))
	for _, v := range vlans {
		out = append(out, vlanView(v))
	}
	return out
}

func (d *Device) interfaceView(p portmon.Port) model.Interface {
	i := model.Interface{
		Name:        p.Name,
		AdminStatus: model.Status(p.AdminUp),
		OperStatus:  model.Status(p.Up()),
		Speed:       p.Speed,
		Duplex:      p.Duplex,
		LACPKey:     int(p.Key),
		LACPPrio:    int(p.Priority),
		LAG:         p.LAG,
	}
	if p.LAG == "" {
		i.AccessVLAN, i.TrunkVLANs = d.l2Config(p.Name)
	}
	return i
}

func (d *Device) portChannelView(l aggregator.LAG) model.PortChannel {
	pc := model.PortChannel{
		Name:          l.Name,
		Mode:          l.Mode.String(),
		Rate:          l.Rate.String(),
		HashMode:      d.fwd.HashMode(l.Name).String(),
		Key:           int(l.Key),
		OperStatus:    string(l.State),
		Members:       make([]model.LACPMemberState, 0, len(l.Members)),
		ActiveMembers: l.ActivePorts(),
	}
	if !l.Partner.System.IsZero() {
		pc.PartnerSystem = l.Partner.System.String()
		pc.PartnerKey = int(l.Partner.Key)
	}
	for _, m := range l.Members {
		pc.Members = append(pc.Members, memberView(m))
	}
	pc.AccessVLAN, pc.TrunkVLANs = d.l2Config(l.Name)
	return pc
}

// l2Config splits a target's VLANs into its untagged VLAN and tagged VLANs.
func (d *Device) l2Config(target string) (int, []int) {
	access, _ := d.vlans.UntaggedVLAN(target)
	var trunk []int
	for _, id := range d.vlans.VLANsOf(target) {
		if id != access {
			trunk = append(trunk, id)
		}
	}
	return access, trunk
}

func memberView(m aggregator.Member) model.LACPMemberState {
	s := model.LACPMemberState{
		Interface: m.Port,
		LinkUp:    m.PortUp,
		Active:    m.Active,
	}
	if m.LACP.Port == "" {
		return s
	}
	st := m.LACP
	s.Selected = st.Selected
	s.RxState = st.Rx.String()
	s.MuxState = st.Mux.String()
	s.Reason = st.Latched
	s.ActorState = st.Actor.State.String()
	s.ActorSystem = st.Actor.System.String()
	s.ActorPort = int(st.Actor.Port)
	s.ActorKey = int(st.Actor.Key)
	s.ActorPrio = int(st.Actor.PortPriority)
	s.PartnerState = st.Partner.State.String()
	if !st.Partner.System.IsZero() {
		s.PartnerSystem = st.Partner.System.String()
	}
	s.PartnerPort = int(st.Partner.Port)
	s.PartnerKey = int(st.Partner.Key)
	s.PartnerPrio = int(st.Partner.PortPriority)
	return s
}

func vlanView(v vlan.VLAN) model.VLAN {
	out := model.VLAN{ID: v.ID, Name: util.VLANName(v.ID)}
	for _, b := range v.Bindings {
		if b.Tagged {
			out.TaggedMembers = append(out.TaggedMembers, b.Target)
		} else {
			out.UntaggedMembers = append(out.UntaggedMembers, b.Target)
		}
	}
	return out
}
