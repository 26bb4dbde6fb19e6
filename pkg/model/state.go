package model

// DeviceState is everything a device publishes: the admin configuration and
// the operational state of its ports, LAGs and VLANs.
type DeviceState struct {
	Device       string        `json:"device"`
	Interfaces   []Interface   `json:"interfaces"`
	PortChannels []PortChannel `json:"portchannels"`
	VLANs        []VLAN        `json:"vlans"`
}

// PortChannel returns the named LAG, or nil.
func (s *DeviceState) PortChannel(name string) *PortChannel {
	for i := range s.PortChannels {
		if s.PortChannels[i].Name == name {
			return &s.PortChannels[i]
		}
	}
	return nil
}

// Interface returns the named port, or nil.
func (s *DeviceState) Interface(name string) *Interface {
	for i := range s.Interfaces {
		if s.Interfaces[i].Name == name {
			return &s.Interfaces[i]
		}
	}
	return nil
}
