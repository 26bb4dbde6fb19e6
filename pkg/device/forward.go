package device

import (
	"github.com/hongkiaong/lacpd/pkg/forwarding"
	"github.com/hongkiaong/lacpd/pkg/util"
)

// Egress is a frame leaving the switch.
type Egress struct {
	Port  string
	Frame []byte
}

// Forward switches a data frame that arrived on ingress. The frame is
// classified into a VLAN and flooded to every other target of that VLAN;
// LAG targets send it on one active member chosen by flow hash. Frames that
// cannot be classified are dropped silently.
func (d *Device) Forward(ingress string, data []byte) ([]Egress, error) {
	port, err := d.ports.Get(ingress)
	if err != nil {
		return nil, err
	}
	if !port.Up() {
		return nil, nil
	}
	source := ingress
	if port.LAG != "" {
		if !d.collecting(port.LAG, ingress) {
			return nil, nil
		}
		source = port.LAG
	}

	f, err := forwarding.ParseFrame(data)
	if err != nil {
		return nil, util.NewValidationError(err.Error())
	}
	vid, ok := d.vlans.Classify(source, f.VLAN)
	if !ok {
		return nil, nil
	}
	bindings, err := d.vlans.Members(vid)
	if err != nil {
		return nil, nil
	}

	var out []Egress
	for _, b := range bindings {
		if b.Target == source {
			continue
		}
		egress, ok := d.egressPort(b.Target, data)
		if !ok {
			continue
		}
		frame, err := f.Encode(vid, b.Tagged)
		if err != nil {
			return nil, err
		}
		out = append(out, Egress{Port: egress, Frame: frame})
	}
	return out, nil
}

// egressPort returns the port a frame to target leaves on.
func (d *Device) egressPort(target string, data []byte) (string, bool) {
	if util.IsLAGName(target) {
		hash := forwarding.FlowHash(data, d.fwd.HashMode(target))
		port, err := d.fwd.ResolveEgress(target, hash)
		if err != nil {
			return "", false
		}
		return port, true
	}
	p, err := d.ports.Get(target)
	if err != nil || !p.Up() {
		return "", false
	}
	return target, true
}

// collecting reports whether a LAG member currently accepts frames.
func (d *Device) collecting(lag, port string) bool {
	for _, m := range d.fwd.Members(lag) {
		if m == port {
			return true
		}
	}
	return false
}

// ResolveEgress picks the member of a LAG that carries the flow of frame.
func (d *Device) ResolveEgress(id string, frame []byte) (string, error) {
	name, err := util.NormalizeLAGName(id)
	if err != nil {
		return "", err
	}
	if !d.lags.HasLAG(name) {
		return "", util.NewNotFoundError("lag", name)
	}
	return d.fwd.ResolveEgress(name, forwarding.FlowHash(frame, d.fwd.HashMode(name)))
}

// IsReachable reports whether two endpoints share a VLAN. Endpoints are
// ports or LAGs; a port inside a LAG stands for its LAG. A zero VLAN matches
// any.
func (d *Device) IsReachable(vlanA int, a string, vlanB int, b string) bool {
	ta, ok := d.endpoint(a)
	if !ok {
		return false
	}
	tb, ok := d.endpoint(b)
	if !ok {
		return false
	}
	return d.vlans.IsReachable(vlanA, ta, vlanB, tb)
}

func (d *Device) endpoint(name string) (string, bool) {
	if util.IsLAGName(name) {
		lag, err := util.NormalizeLAGName(name)
		return lag, err == nil
	}
	p, err := d.ports.Get(name)
	if err != nil {
		return "", false
	}
	if p.LAG != "" {
		return p.LAG, true
	}
	return name, true
}
