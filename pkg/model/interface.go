// Package model defines the JSON views of device state shared by the
// console, STATE_DB publication and lagctl.
package model

// Interface represents a physical port
type Interface struct {
	Name        string `json:"name"`
	AdminStatus string `json:"admin_status"` // up, down
	OperStatus  string `json:"oper_status"`  // up, down
	Speed       int    `json:"speed"`        // Mb/s
	Duplex      string `json:"duplex"`
	LACPKey     int    `json:"lacp_key,omitempty"`
	LACPPrio    int    `json:"lacp_port_priority,omitempty"`

	// Membership
	LAG string `json:"lag,omitempty"`

	// L2 configuration
	AccessVLAN int   `json:"access_vlan,omitempty"`
	TrunkVLANs []int `json:"trunk_vlans,omitempty"`
}

// IsUp reports whether the port is operationally up.
func (i *Interface) IsUp() bool {
	return i.OperStatus == "up"
}

// IsLAGMember returns true if this interface belongs to a LAG
func (i *Interface) IsLAGMember() bool {
	return i.LAG != ""
}

// Status renders a boolean as up/down.
func Status(up bool) string {
	if up {
		return "up"
	}
	return "down"
}
